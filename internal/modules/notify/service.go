// README: Notification dispatcher; best-effort fan-out with a durable pending-queue fallback.
package notify

import (
	"context"
	"fmt"
	"time"

	"dishpatch/internal/modules/order"
	"dishpatch/internal/types"
)

// ETAEstimator enriches rider-bound notifications with a travel estimate.
// Optional; a nil estimator simply omits the ETA.
type ETAEstimator interface {
	Estimate(ctx context.Context, origin, destination string) (time.Duration, string, error)
}

type Service struct {
	store *Store
	eta   ETAEstimator
}

func NewService(store *Store, eta ETAEstimator) *Service {
	return &Service{store: store, eta: eta}
}

// OrderChanged implements order.Dispatcher: it queues a role-appropriate
// message for every actor on the order. Delivery is best-effort; the caller
// logs failures and never fails the transition.
func (s *Service) OrderChanged(ctx context.Context, o *order.Order, e *order.HistoryEntry) error {
	now := time.Now()
	events := []Event{
		{
			Kind:      "order_status",
			OrderID:   o.ID,
			Recipient: o.CustomerID,
			Role:      types.RoleCustomer,
			Status:    string(e.Status),
			Message:   customerMessage(e.Status),
			CreatedAt: now,
		},
		{
			Kind:      "order_status",
			OrderID:   o.ID,
			Recipient: o.VendorID,
			Role:      types.RoleVendor,
			Status:    string(e.Status),
			Message:   vendorMessage(e.Status),
			CreatedAt: now,
		},
	}
	if o.RiderID != nil {
		events = append(events, Event{
			Kind:      "order_status",
			OrderID:   o.ID,
			Recipient: *o.RiderID,
			Role:      types.RoleRider,
			Status:    string(e.Status),
			Message:   riderMessage(e.Status),
			CreatedAt: now,
		})
	}

	var firstErr error
	for _, evt := range events {
		if err := s.store.PushPending(ctx, evt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Pending drains an actor's queued notifications.
func (s *Service) Pending(ctx context.Context, actor types.Actor) ([]Event, error) {
	return s.store.DrainPending(ctx, actor.Role, actor.ID)
}

// SetAvailability adds or removes a courier from the availability pool.
func (s *Service) SetAvailability(ctx context.Context, rider types.Actor, available bool, pos types.Point) error {
	if available {
		return s.store.AddCourier(ctx, rider.ID, pos)
	}
	return s.store.RemoveCourier(ctx, rider.ID)
}

// Nearby lists available couriers within radiusKm of the point.
func (s *Service) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	return s.store.NearbyCouriers(ctx, p, radiusKm)
}

// PickupETA estimates the courier's travel to the vendor when an estimator
// is configured.
func (s *Service) PickupETA(ctx context.Context, origin, destination string) (string, error) {
	if s.eta == nil {
		return "", nil
	}
	d, human, err := s.eta.Estimate(ctx, origin, destination)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (%s)", d.Round(time.Minute), human), nil
}

func customerMessage(st order.Status) string {
	switch st {
	case order.StatusAccepted:
		return "your order was accepted"
	case order.StatusPreparing:
		return "your order is being prepared"
	case order.StatusOutForDelivery:
		return "your order is out for delivery"
	case order.StatusDelivered:
		return "your order was delivered"
	case order.StatusCancelled:
		return "your order was cancelled"
	}
	return "order update"
}

func vendorMessage(st order.Status) string {
	switch st {
	case order.StatusPending:
		return "new order received"
	case order.StatusOutForDelivery:
		return "a rider picked up the order"
	case order.StatusCancelled:
		return "order cancelled"
	}
	return "order update"
}

func riderMessage(st order.Status) string {
	switch st {
	case order.StatusOutForDelivery:
		return "delivery assigned to you"
	case order.StatusPreparing:
		return "delivery unassigned"
	case order.StatusCancelled:
		return "delivery cancelled"
	}
	return "order update"
}
