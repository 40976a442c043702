// README: Notification event emitted on order state changes.
package notify

import (
	"time"

	"dishpatch/internal/types"
)

type Event struct {
	Kind      string     `json:"kind"`
	OrderID   types.ID   `json:"order_id"`
	Recipient types.ID   `json:"recipient"`
	Role      types.Role `json:"role"`
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	ETA       string     `json:"eta,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
