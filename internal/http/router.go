// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dishpatch/internal/http/handlers"
	"dishpatch/internal/http/middleware"
	"dishpatch/internal/modules/auth"
	"dishpatch/internal/modules/notify"
	"dishpatch/internal/modules/order"
	"dishpatch/internal/modules/payment"
	"dishpatch/internal/types"
)

type RouterDeps struct {
	Order     *order.Service
	Payment   *payment.Service
	Auth      *auth.Service
	Notify    *notify.Service
	JWTSecret string
	Log       *slog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.Logging(deps.Log))

	authHandler := handlers.NewAuthHandler(deps.Auth)
	r.POST("/api/auth/otp/request", authHandler.RequestOTP)
	r.POST("/api/auth/otp/verify", authHandler.VerifyOTP)
	r.POST("/api/auth/password/forgot", authHandler.ForgotPassword)
	r.POST("/api/auth/password/verify", authHandler.VerifyResetCode)
	r.POST("/api/auth/password/reset", authHandler.ResetPassword)

	paymentHandler := handlers.NewPaymentHandler(deps.Payment)
	// The gateway authenticates with its signature header, not a JWT.
	r.POST("/api/payments/webhook", paymentHandler.Webhook)

	authed := r.Group("/", middleware.Auth(deps.JWTSecret))

	orderHandler := handlers.NewOrderHandler(deps.Order)
	authed.POST("/api/orders", orderHandler.Create)
	authed.GET("/api/orders/:id", orderHandler.Get)
	authed.GET("/api/orders/:id/history", orderHandler.History)
	authed.POST("/api/orders/:id/transition", orderHandler.Transition)

	riderHandler := handlers.NewRiderHandler(deps.Order, deps.Notify)
	rider := authed.Group("/", middleware.RequireRole(types.RoleRider))
	rider.POST("/api/orders/:id/claim", riderHandler.Claim)
	rider.POST("/api/orders/:id/decline", riderHandler.Decline)
	rider.POST("/api/orders/:id/deliver", riderHandler.Deliver)
	rider.POST("/api/riders/availability", riderHandler.SetAvailability)
	authed.GET("/api/notifications/pending", riderHandler.Pending)

	vendor := authed.Group("/", middleware.RequireRole(types.RoleVendor, types.RoleAdmin))
	vendor.GET("/api/couriers/nearby", riderHandler.Nearby)
	vendor.GET("/api/couriers/eta", riderHandler.PickupETA)

	authed.POST("/api/orders/:id/pay", paymentHandler.CreateIntent)
	authed.POST("/api/payments/confirm", paymentHandler.Confirm)
	authed.GET("/api/orders/:id/payment", paymentHandler.Get)
	authed.POST("/api/orders/:id/refund", middleware.RequireRole(types.RoleAdmin), paymentHandler.Refund)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
