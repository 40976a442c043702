// README: Payment service tests (single-gateway-call property, settlement, refunds).
package payment

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"dishpatch/internal/modules/order"
	"dishpatch/internal/types"
)

const testWebhookSecret = "whsec_service_test"

// fakeGateway records calls so tests can assert how many times the real
// provider would have been hit.
type fakeGateway struct {
	initCalls   atomic.Int64
	refundCalls atomic.Int64
	verifyState VerifyResult
}

func (g *fakeGateway) Initialize(ctx context.Context, req InitializeRequest) (InitializeResult, error) {
	n := g.initCalls.Add(1)
	return InitializeResult{
		AuthorizationURL: fmt.Sprintf("https://checkout.example/%s/%d", req.Reference, n),
		ProviderRef:      "prov-" + req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (VerifyResult, error) {
	return g.verifyState, nil
}

func (g *fakeGateway) Refund(ctx context.Context, providerRef string, amount int64) error {
	g.refundCalls.Add(1)
	return nil
}

type paymentHarness struct {
	svc    *Service
	store  *Store
	orders *order.Store
	gw     *fakeGateway
}

func TestCreateIntentSingleGatewayCall(t *testing.T) {
	ctx := context.Background()
	h := setupPaymentTest(t)

	customer := types.Actor{ID: "c_intent", Role: types.RoleCustomer}
	o := seedOrder(t, h.orders, customer.ID)

	const callers = 8
	var wg sync.WaitGroup
	type outcome struct {
		res IntentResult
		err error
	}
	results := make(chan outcome, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.svc.CreateIntent(ctx, o.ID, customer)
			results <- outcome{res, err}
		}()
	}
	wg.Wait()
	close(results)

	var url string
	won := 0
	for out := range results {
		switch out.err {
		case nil:
			won++
			if url == "" {
				url = out.res.AuthorizationURL
			} else if out.res.AuthorizationURL != url {
				t.Fatalf("diverging authorization URLs: %q vs %q", url, out.res.AuthorizationURL)
			}
		case ErrConflict:
			// Lost the lock race before the winner cached; the retry below
			// must resolve from cache.
		default:
			t.Fatalf("unexpected error: %v", out.err)
		}
	}
	if won < 1 {
		t.Fatalf("expected at least one caller to get an intent")
	}
	if got := h.gw.initCalls.Load(); got != 1 {
		t.Fatalf("gateway initialized %d times, want exactly 1", got)
	}

	// Any retry now settles from the cache without touching the gateway.
	res, err := h.svc.CreateIntent(ctx, o.ID, customer)
	if err != nil {
		t.Fatalf("retry after race: %v", err)
	}
	if res.AuthorizationURL != url {
		t.Fatalf("retry returned %q, want cached %q", res.AuthorizationURL, url)
	}
	if got := h.gw.initCalls.Load(); got != 1 {
		t.Fatalf("retry re-hit the gateway (%d calls)", got)
	}
}

func TestCreateIntentOwnership(t *testing.T) {
	ctx := context.Background()
	h := setupPaymentTest(t)

	owner := types.Actor{ID: "c_owner_pay", Role: types.RoleCustomer}
	o := seedOrder(t, h.orders, owner.ID)

	stranger := types.Actor{ID: "c_stranger", Role: types.RoleCustomer}
	if _, err := h.svc.CreateIntent(ctx, o.ID, stranger); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for non-owner, got %v", err)
	}
	rider := types.Actor{ID: "r_pay", Role: types.RoleRider}
	if _, err := h.svc.CreateIntent(ctx, o.ID, rider); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for rider, got %v", err)
	}
	if _, err := h.svc.CreateIntent(ctx, "missing-order", owner); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for unknown order, got %v", err)
	}
}

func TestWebhookSettlesOnce(t *testing.T) {
	ctx := context.Background()
	h := setupPaymentTest(t)

	customer := types.Actor{ID: "c_settle", Role: types.RoleCustomer}
	o := seedOrder(t, h.orders, customer.ID)

	res, err := h.svc.CreateIntent(ctx, o.ID, customer)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	body := webhookBody(t, "charge.success", res.Reference, o.TotalAmount.Amount, o.TotalAmount.Currency)

	// Bad signature never reaches settlement.
	if err := h.svc.HandleWebhook(ctx, body, signBody(body, "wrong")); err != ErrSignature {
		t.Fatalf("expected ErrSignature, got %v", err)
	}

	if err := h.svc.HandleWebhook(ctx, body, signBody(body, testWebhookSecret)); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	p, err := h.store.GetByReference(ctx, res.Reference)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.Status != StatusSuccessful {
		t.Fatalf("payment status = %s, want successful", p.Status)
	}

	settled, err := h.orders.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if settled.PaymentStatus != order.PaymentSuccessful {
		t.Fatalf("order payment_status = %s, want successful", settled.PaymentStatus)
	}
	if settled.Status != order.StatusAccepted {
		t.Fatalf("order status = %s, want accepted after settlement", settled.Status)
	}
	version := settled.StatusVersion

	// Replay is a no-op.
	if err := h.svc.HandleWebhook(ctx, body, signBody(body, testWebhookSecret)); err != nil {
		t.Fatalf("replay: %v", err)
	}
	replayed, _ := h.orders.Get(ctx, o.ID)
	if replayed.StatusVersion != version {
		t.Fatalf("replay advanced status_version from %d to %d", version, replayed.StatusVersion)
	}
}

func TestWebhookAmountMismatchFails(t *testing.T) {
	ctx := context.Background()
	h := setupPaymentTest(t)

	customer := types.Actor{ID: "c_mismatch", Role: types.RoleCustomer}
	o := seedOrder(t, h.orders, customer.ID)

	res, err := h.svc.CreateIntent(ctx, o.ID, customer)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	// Off by far more than one minor unit.
	body := webhookBody(t, "charge.success", res.Reference, o.TotalAmount.Amount-500, o.TotalAmount.Currency)
	if err := h.svc.HandleWebhook(ctx, body, signBody(body, testWebhookSecret)); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	p, err := h.store.GetByReference(ctx, res.Reference)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.Status != StatusFailed {
		t.Fatalf("payment status = %s, want failed on amount mismatch", p.Status)
	}
	got, _ := h.orders.Get(ctx, o.ID)
	if got.Status != order.StatusPending {
		t.Fatalf("order status = %s, want still pending", got.Status)
	}
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	h := setupPaymentTest(t)

	customer := types.Actor{ID: "c_refund", Role: types.RoleCustomer}
	admin := types.Actor{ID: "a_refund", Role: types.RoleAdmin}
	o := seedOrder(t, h.orders, customer.ID)

	res, err := h.svc.CreateIntent(ctx, o.ID, customer)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	// Refunding an unsettled payment is refused.
	if err := h.svc.Refund(ctx, o.ID, admin); err != ErrNotPaid {
		t.Fatalf("expected ErrNotPaid before settlement, got %v", err)
	}

	body := webhookBody(t, "charge.success", res.Reference, o.TotalAmount.Amount, o.TotalAmount.Currency)
	if err := h.svc.HandleWebhook(ctx, body, signBody(body, testWebhookSecret)); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	if err := h.svc.Refund(ctx, o.ID, customer); err != order.ErrForbidden {
		t.Fatalf("expected ErrForbidden for non-admin, got %v", err)
	}

	if err := h.svc.Refund(ctx, o.ID, admin); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if got := h.gw.refundCalls.Load(); got != 1 {
		t.Fatalf("gateway refunded %d times, want 1", got)
	}

	p, err := h.store.GetByOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.Status != StatusRefunded {
		t.Fatalf("payment status = %s, want refunded", p.Status)
	}
	got, _ := h.orders.Get(ctx, o.ID)
	if got.Status != order.StatusCancelled {
		t.Fatalf("order status = %s, want cancelled after refund", got.Status)
	}
}

func webhookBody(t *testing.T, event, reference string, amount int64, currency string) []byte {
	t.Helper()
	payload := map[string]any{
		"event": event,
		"data": map[string]any{
			"reference": reference,
			"status":    "success",
			"amount":    amount,
			"currency":  currency,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal webhook body: %v", err)
	}
	return body
}

func seedOrder(t *testing.T, orders *order.Store, customerID types.ID) *order.Order {
	t.Helper()
	now := time.Now()
	o := &order.Order{
		ID:            types.ID(uuid.NewString()),
		CustomerID:    customerID,
		VendorID:      "v_pay",
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		TotalAmount:   types.Money{Amount: 4500, Currency: "NGN"},
		DeliveryFee:   types.Money{Amount: 500, Currency: "NGN"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := orders.Create(context.Background(), o); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

func setupPaymentTest(t *testing.T) *paymentHarness {
	t.Helper()

	dsn := os.Getenv("DISHPATCH_TEST_DSN")
	if dsn == "" {
		t.Skip("DISHPATCH_TEST_DSN not set; skipping DB-backed tests")
	}
	redisAddr := os.Getenv("DISHPATCH_TEST_REDIS")
	if redisAddr == "" {
		t.Skip("DISHPATCH_TEST_REDIS not set; skipping redis-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE order_history, payments, orders"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	gw := &fakeGateway{}
	store := NewStore(db)
	orders := order.NewStore(db)
	locks := NewLocks(rdb, 30*time.Second, 10*time.Minute)
	svc := NewService(store, locks, orders, gw, testWebhookSecret, nil)

	return &paymentHarness{svc: svc, store: store, orders: orders, gw: gw}
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	path := filepath.Join(root, "migrations", "0001_init.sql")
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cleaned := stripSQLComments(string(content))
	for _, stmt := range splitSQL(cleaned) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
