// README: Payment aggregate and error kinds.
package payment

import (
	"errors"
	"time"

	"dishpatch/internal/types"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

// Payment is the single payment row an order may carry. At most one pending
// payment exists per order at any time (unique order_id).
type Payment struct {
	ID               types.ID
	OrderID          types.ID
	Reference        string
	ProviderRef      string
	AuthorizationURL string
	Amount           types.Money
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

var (
	ErrNotFound  = errors.New("payment not found")
	ErrConflict  = errors.New("payment initialization in progress")
	ErrUpstream  = errors.New("payment gateway call failed")
	ErrSignature = errors.New("invalid webhook signature")
	ErrNotPaid   = errors.New("no successful payment to refund")
)

// IntentResult is what both the fast path and the gateway path hand back to
// the client.
type IntentResult struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
}
