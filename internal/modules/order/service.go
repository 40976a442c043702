// README: Order service implements the fulfillment state machine and the first-rider-wins claim.
package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"dishpatch/internal/metrics"
	"dishpatch/internal/types"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrForbidden         = errors.New("role not permitted for this transition")
	ErrPrecondition      = errors.New("order has no assigned rider")
	ErrConflict          = errors.New("already claimed or not claimable")
	ErrBadRequest        = errors.New("bad request")
)

// Pricing quotes the delivery fee added to an order at checkout.
type Pricing interface {
	Quote(ctx context.Context, distanceKm float64, currency string) (types.Money, error)
}

// Dispatcher fans a state change out to the affected actors. Dispatch is
// best-effort: failures are logged and never fail the transition.
type Dispatcher interface {
	OrderChanged(ctx context.Context, o *Order, e *HistoryEntry) error
}

// DeliveryCodes is the slice of the verification service the order flow
// needs for the customer/rider handoff code.
type DeliveryCodes interface {
	IssueDeliveryCode(ctx context.Context, orderID, riderID, vendorID types.ID) (string, error)
	VerifyDeliveryCode(ctx context.Context, orderID, riderID, vendorID types.ID, code string) error
	DeleteDeliveryCode(ctx context.Context, orderID, riderID, vendorID types.ID) error
}

type Service struct {
	store      *Store
	pricing    Pricing
	codes      DeliveryCodes
	dispatcher Dispatcher
	log        *slog.Logger
}

func NewService(store *Store, pricing Pricing, codes DeliveryCodes, dispatcher Dispatcher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, pricing: pricing, codes: codes, dispatcher: dispatcher, log: log}
}

type CreateCommand struct {
	CustomerID types.ID
	VendorID   types.ID
	Amount     int64
	Currency   string
	DistanceKm float64
}

type TransitionCommand struct {
	OrderID types.ID
	Actor   types.Actor
	Target  Status
	Note    string
}

type ClaimCommand struct {
	OrderID types.ID
	Rider   types.Actor
}

type DeclineCommand struct {
	OrderID types.ID
	Rider   types.Actor
}

type DeliverCommand struct {
	OrderID types.ID
	Rider   types.Actor
	Code    string
}

// Create checks out a new pending order, quoting the delivery fee when a
// pricing service is wired.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.CustomerID == "" || cmd.VendorID == "" || cmd.Amount <= 0 || cmd.Currency == "" {
		return nil, ErrBadRequest
	}

	fee := types.Money{Amount: 0, Currency: cmd.Currency}
	if s.pricing != nil {
		if m, err := s.pricing.Quote(ctx, cmd.DistanceKm, cmd.Currency); err == nil {
			fee = m
		}
	}

	now := time.Now()
	o := &Order{
		ID:            newID(),
		CustomerID:    cmd.CustomerID,
		VendorID:      cmd.VendorID,
		Status:        StatusPending,
		StatusVersion: 0,
		PaymentStatus: PaymentPending,
		TotalAmount:   types.Money{Amount: cmd.Amount + fee.Amount, Currency: cmd.Currency},
		DeliveryFee:   fee,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	cid := cmd.CustomerID
	_ = s.store.AppendHistory(ctx, &HistoryEntry{
		OrderID:   o.ID,
		Status:    StatusPending,
		ActorType: types.RoleCustomer,
		ActorID:   &cid,
		Note:      "created",
		CreatedAt: now,
	})
	return o, nil
}

// Transition validates a requested status change against the transition and
// role tables, then applies it with a guarded update. The status write and
// the history entry commit in one transaction.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, cmd.Target) {
		metrics.TransitionsRejectedTotal.Inc()
		return nil, ErrInvalidTransition
	}
	if !RoleMayRequest(cmd.Actor.Role, cmd.Target) {
		return nil, ErrForbidden
	}
	// A customer may only cancel while the vendor has not yet accepted.
	if cmd.Actor.Role == types.RoleCustomer && cmd.Target == StatusCancelled && o.Status != StatusPending {
		return nil, ErrForbidden
	}
	if cmd.Target == StatusOutForDelivery && o.RiderID == nil {
		return nil, ErrPrecondition
	}

	ok, err := s.store.Transition(ctx, o, cmd.Target, cmd.Actor, cmd.Note)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	metrics.TransitionsTotal.WithLabelValues(string(cmd.Target)).Inc()

	updated, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, updated, cmd.Target, cmd.Actor, cmd.Note)
	return updated, nil
}

// Claim assigns the calling rider to the order if no rider beat them to it.
// The winner also receives the delivery handoff code, issued idempotently so
// retries within the TTL see the same code.
func (s *Service) Claim(ctx context.Context, cmd ClaimCommand) (*Order, error) {
	if cmd.Rider.Role != types.RoleRider {
		return nil, ErrForbidden
	}
	if _, err := s.store.Get(ctx, cmd.OrderID); err != nil {
		return nil, err
	}

	ok, err := s.store.ClaimRider(ctx, cmd.OrderID, cmd.Rider.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.ClaimsTotal.WithLabelValues("lost").Inc()
		return nil, ErrConflict
	}
	metrics.ClaimsTotal.WithLabelValues("won").Inc()

	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	if s.codes != nil {
		code, err := s.codes.IssueDeliveryCode(ctx, o.ID, cmd.Rider.ID, o.VendorID)
		if err != nil {
			s.log.Error("issue delivery code", "order_id", o.ID, "err", err)
		} else if err := s.store.SetDeliveryCode(ctx, o.ID, code); err != nil {
			s.log.Error("persist delivery code", "order_id", o.ID, "err", err)
		} else {
			o.DeliveryCode = &code
		}
	}

	s.dispatch(ctx, o, StatusOutForDelivery, cmd.Rider, "claimed")
	return o, nil
}

// Decline re-opens a claimed order: the assigned rider steps back, the order
// returns to preparing with no rider, and the old handoff code is discarded.
func (s *Service) Decline(ctx context.Context, cmd DeclineCommand) (*Order, error) {
	if cmd.Rider.Role != types.RoleRider {
		return nil, ErrForbidden
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.DeclineRider(ctx, cmd.OrderID, cmd.Rider.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	if s.codes != nil {
		if err := s.codes.DeleteDeliveryCode(ctx, o.ID, cmd.Rider.ID, o.VendorID); err != nil {
			s.log.Error("delete delivery code", "order_id", o.ID, "err", err)
		}
	}

	updated, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, updated, StatusPreparing, cmd.Rider, "declined")
	return updated, nil
}

// Deliver completes the handoff: the rider submits the code shown by the
// customer; on a match the order transitions to delivered and the persisted
// code is cleared.
func (s *Service) Deliver(ctx context.Context, cmd DeliverCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if cmd.Rider.Role != types.RoleRider || o.RiderID == nil || *o.RiderID != cmd.Rider.ID {
		return nil, ErrForbidden
	}
	if !CanTransition(o.Status, StatusDelivered) {
		return nil, ErrInvalidTransition
	}

	if s.codes != nil {
		if err := s.codes.VerifyDeliveryCode(ctx, o.ID, cmd.Rider.ID, o.VendorID, cmd.Code); err != nil {
			return nil, err
		}
	}

	ok, err := s.store.Transition(ctx, o, StatusDelivered, cmd.Rider, "delivered")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	metrics.TransitionsTotal.WithLabelValues(string(StatusDelivered)).Inc()

	updated, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, updated, StatusDelivered, cmd.Rider, "delivered")
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) History(ctx context.Context, id types.ID) ([]HistoryEntry, error) {
	return s.store.History(ctx, id)
}

func (s *Service) dispatch(ctx context.Context, o *Order, status Status, actor types.Actor, note string) {
	if s.dispatcher == nil {
		return
	}
	aid := actorIDPtr(actor)
	e := &HistoryEntry{
		OrderID:   o.ID,
		Status:    status,
		ActorType: actor.Role,
		ActorID:   aid,
		Note:      note,
		CreatedAt: time.Now(),
	}
	if err := s.dispatcher.OrderChanged(ctx, o, e); err != nil {
		s.log.Error("notification dispatch", "order_id", o.ID, "status", status, "err", err)
	}
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
