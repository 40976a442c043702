// README: Order aggregate, status machine and role permission tables.
package order

import (
	"time"

	"dishpatch/internal/types"
)

type Status string

const (
	StatusNone           Status = "none"
	StatusPending        Status = "pending"
	StatusAccepted       Status = "accepted"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentSuccessful PaymentStatus = "successful"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

type Order struct {
	ID            types.ID
	CustomerID    types.ID
	VendorID      types.ID
	RiderID       *types.ID
	Status        Status
	StatusVersion int
	PaymentStatus PaymentStatus
	TotalAmount   types.Money
	DeliveryFee   types.Money
	// DeliveryCode is the one-time handoff code shown to the customer and
	// entered by the rider; non-nil only while the order is out for delivery.
	DeliveryCode *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HistoryEntry is one row of the append-only per-order audit trail.
type HistoryEntry struct {
	ID        int64
	OrderID   types.ID
	Status    Status
	ActorType types.Role
	ActorID   *types.ID
	Note      string
	CreatedAt time.Time
}

// AllowedTransitions represents the order status flow as code. Delivered and
// cancelled are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPending:        {StatusAccepted, StatusCancelled},
	StatusAccepted:       {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// RoleMayRequest reports whether the role is allowed to request the target
// status at all. The customer's pending-only cancellation window is enforced
// separately in the service.
func RoleMayRequest(role types.Role, target Status) bool {
	switch role {
	case types.RoleAdmin, types.RoleSystem:
		return true
	case types.RoleVendor:
		return target == StatusAccepted || target == StatusPreparing || target == StatusCancelled
	case types.RoleRider:
		return target == StatusOutForDelivery || target == StatusDelivered
	case types.RoleCustomer:
		return target == StatusCancelled
	}
	return false
}
