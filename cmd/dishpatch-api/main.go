// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dishpatch/internal/config"
	httptransport "dishpatch/internal/http"
	"dishpatch/internal/infra"
	"dishpatch/internal/logger"
	"dishpatch/internal/maps"
	"dishpatch/internal/metrics"
	"dishpatch/internal/modules/auth"
	"dishpatch/internal/modules/notify"
	"dishpatch/internal/modules/order"
	"dishpatch/internal/modules/payment"
	"dishpatch/internal/modules/pricing"
	"dishpatch/internal/modules/verification"
)

func main() {
	log := logger.New("dishpatch")

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Error("DISHPATCH_JWT_SECRET is required")
		os.Exit(1)
	}
	if cfg.Gateway.SecretKey == "" {
		log.Error("DISHPATCH_GATEWAY_SECRET is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Error("connect db", "err", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	var eta notify.ETAEstimator
	if cfg.Maps.APIKey != "" {
		svc, err := maps.NewETAService(cfg.Maps.APIKey)
		if err != nil {
			log.Error("maps init", "err", err)
			os.Exit(1)
		}
		eta = svc
	}

	verificationSvc := verification.NewService(verification.NewStore(redisClient))
	deliveryCodes := verification.NewDeliveryCodes(verificationSvc, verification.CodePolicy{
		TTL:         cfg.Codes.DeliveryOC.TTL,
		MaxAttempts: cfg.Codes.DeliveryOC.MaxAttempts,
	})

	notifySvc := notify.NewService(notify.NewStore(redisClient), eta)
	pricingSvc := pricing.NewService(pricing.NewStore(dbPool))

	orderStore := order.NewStore(dbPool)
	orderSvc := order.NewService(orderStore, pricingSvc, deliveryCodes, notifySvc, log)

	gateway := payment.NewHTTPGateway(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey)
	paymentLocks := payment.NewLocks(redisClient, cfg.Payment.LockTTL, cfg.Payment.CacheTTL)
	paymentSvc := payment.NewService(payment.NewStore(dbPool), paymentLocks, orderStore, gateway, cfg.Gateway.SecretKey, log)

	authSvc := auth.NewService(auth.NewStore(dbPool), verificationSvc, nil, cfg, log)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Order:     orderSvc,
		Payment:   paymentSvc,
		Auth:      authSvc,
		Notify:    notifySvc,
		JWTSecret: cfg.Auth.JWTSecret,
		Log:       log,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("listening", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server", "err", err)
		os.Exit(1)
	}
}
