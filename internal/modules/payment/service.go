// README: Payment service: idempotent lock-guarded intent creation, webhook settlement, refunds.
package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"dishpatch/internal/metrics"
	"dishpatch/internal/modules/order"
	"dishpatch/internal/types"
)

type Service struct {
	store  *Store
	locks  *Locks
	orders *order.Store
	gw     Gateway
	secret string
	log    *slog.Logger
}

func NewService(store *Store, locks *Locks, orders *order.Store, gw Gateway, webhookSecret string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, locks: locks, orders: orders, gw: gw, secret: webhookSecret, log: log}
}

// CreateIntent initializes a payment with the gateway exactly once per order,
// no matter how many duplicate or concurrent requests arrive. The cache
// absorbs client retries; the advisory lock bounds the gateway call; losing
// the lock race surfaces as ErrConflict rather than blocking.
func (s *Service) CreateIntent(ctx context.Context, orderID types.ID, actor types.Actor) (IntentResult, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return IntentResult{}, ErrNotFound
	}
	// Ownership and state checks collapse to not-found so callers cannot
	// probe other customers' orders.
	if actor.Role != types.RoleAdmin && (actor.Role != types.RoleCustomer || o.CustomerID != actor.ID) {
		return IntentResult{}, ErrNotFound
	}
	if o.Status != order.StatusPending || o.PaymentStatus != order.PaymentPending {
		return IntentResult{}, ErrNotFound
	}

	if res, ok, err := s.locks.CachedResult(ctx, orderID); err != nil {
		return IntentResult{}, err
	} else if ok {
		metrics.PaymentInitsTotal.WithLabelValues("cached").Inc()
		return res, nil
	}

	acquired, err := s.locks.Acquire(ctx, orderID)
	if err != nil {
		return IntentResult{}, err
	}
	if !acquired {
		// Another request holds the lock. It may have finished already, so
		// check the cache once more before telling the caller to retry.
		if res, ok, err := s.locks.CachedResult(ctx, orderID); err == nil && ok {
			metrics.PaymentInitsTotal.WithLabelValues("cached").Inc()
			return res, nil
		}
		metrics.PaymentInitsTotal.WithLabelValues("conflict").Inc()
		return IntentResult{}, ErrConflict
	}
	defer s.locks.Release(ctx, orderID)

	reference := uuid.NewString()
	init, err := s.gw.Initialize(ctx, InitializeRequest{
		Reference: reference,
		Amount:    o.TotalAmount.Amount,
		Currency:  o.TotalAmount.Currency,
	})
	if err != nil {
		metrics.PaymentInitsTotal.WithLabelValues("error").Inc()
		return IntentResult{}, err
	}

	p := &Payment{
		ID:               types.ID(uuid.NewString()),
		OrderID:          orderID,
		Reference:        reference,
		ProviderRef:      init.ProviderRef,
		AuthorizationURL: init.AuthorizationURL,
		Amount:           o.TotalAmount,
		Status:           StatusPending,
	}
	if err := s.store.UpsertPending(ctx, p); err != nil {
		return IntentResult{}, err
	}

	res := IntentResult{Reference: reference, AuthorizationURL: init.AuthorizationURL}
	if err := s.locks.CacheResult(ctx, orderID, res); err != nil {
		s.log.Error("cache payment init", "order_id", orderID, "err", err)
	}
	metrics.PaymentInitsTotal.WithLabelValues("gateway").Inc()
	return res, nil
}

// webhookEvent is the subset of the gateway's webhook payload we act on.
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"data"`
}

// HandleWebhook settles a payment from a gateway webhook. The signature is
// checked before any state change; replays of an already-settled payment are
// no-ops.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !VerifySignature(rawBody, signature, s.secret) {
		metrics.WebhooksTotal.WithLabelValues("rejected").Inc()
		return ErrSignature
	}

	var evt webhookEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		metrics.WebhooksTotal.WithLabelValues("rejected").Inc()
		return ErrSignature
	}

	success := strings.HasSuffix(evt.Event, ".success") || evt.Data.Status == "success"
	return s.settle(ctx, evt.Data.Reference, evt.Data.Amount, evt.Data.Currency, success)
}

// Confirm is the client-initiated settlement path: it asks the gateway for
// the transaction state instead of trusting the caller.
func (s *Service) Confirm(ctx context.Context, reference string) error {
	v, err := s.gw.Verify(ctx, reference)
	if err != nil {
		return err
	}
	return s.settle(ctx, reference, v.Amount, v.Currency, v.Status == "success")
}

func (s *Service) settle(ctx context.Context, reference string, amount int64, currency string, success bool) error {
	p, err := s.store.GetByReference(ctx, reference)
	if err != nil {
		return err
	}

	// Re-verify the settled amount against what we asked for, tolerating a
	// difference of one smallest currency unit.
	if success && !p.Amount.WithinMinorUnit(types.Money{Amount: amount, Currency: currency}) {
		s.log.Warn("webhook amount mismatch",
			"reference", reference, "expected", p.Amount.Amount, "got", amount)
		success = false
	}

	settled, err := s.store.Settle(ctx, reference, success)
	if err != nil {
		return err
	}
	if !settled {
		metrics.WebhooksTotal.WithLabelValues("replayed").Inc()
		return nil
	}
	metrics.WebhooksTotal.WithLabelValues("settled").Inc()
	return nil
}

// Refund reverses a successful payment: gateway refund first, then payment
// and order flip together in one transaction.
func (s *Service) Refund(ctx context.Context, orderID types.ID, actor types.Actor) error {
	if actor.Role != types.RoleAdmin {
		return order.ErrForbidden
	}
	p, err := s.store.GetByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if p.Status != StatusSuccessful {
		return ErrNotPaid
	}

	if err := s.gw.Refund(ctx, p.ProviderRef, p.Amount.Amount); err != nil {
		return err
	}
	ok, err := s.store.MarkRefunded(ctx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		// The gateway refund went through but another writer settled the row
		// meanwhile; surface it for reconciliation.
		s.log.Error("refund recorded at gateway but payment row not successful", "order_id", orderID)
		return ErrNotPaid
	}
	s.locks.InvalidateCache(ctx, orderID)
	return nil
}

// GetByOrder exposes the payment row for the order's owner and admins.
func (s *Service) GetByOrder(ctx context.Context, orderID types.ID, actor types.Actor) (*Payment, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, ErrNotFound
	}
	if actor.Role != types.RoleAdmin && o.CustomerID != actor.ID {
		return nil, ErrNotFound
	}
	return s.store.GetByOrder(ctx, orderID)
}
