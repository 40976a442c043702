// README: Order handlers for checkout, lookup and status transitions.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dishpatch/internal/http/middleware"
	"dishpatch/internal/modules/order"
	"dishpatch/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type createOrderReq struct {
	VendorID   string  `json:"vendor_id" validate:"required"`
	Amount     int64   `json:"amount" validate:"required,gt=0"`
	Currency   string  `json:"currency" validate:"required,len=3"`
	DistanceKm float64 `json:"distance_km" validate:"gte=0"`
}

type transitionReq struct {
	Target string `json:"target" validate:"required"`
	Note   string `json:"note"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	if actor.Role != types.RoleCustomer {
		writeError(c, http.StatusForbidden, "only customers can checkout")
		return
	}
	var req createOrderReq
	if !bind(c, &req) {
		return
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		CustomerID: actor.ID,
		VendorID:   types.ID(req.VendorID),
		Amount:     req.Amount,
		Currency:   req.Currency,
		DistanceKm: req.DistanceKm,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, orderResponse(actor, o))
}

func (h *OrderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	o, err := h.order.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	actor, _ := middleware.ActorFrom(c)
	if !mayView(actor, o) {
		writeError(c, http.StatusNotFound, order.ErrNotFound.Error())
		return
	}
	writeJSON(c, http.StatusOK, orderResponse(actor, o))
}

func (h *OrderHandler) History(c *gin.Context) {
	id := c.Param("id")
	o, err := h.order.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	actor, _ := middleware.ActorFrom(c)
	if !mayView(actor, o) {
		writeError(c, http.StatusNotFound, order.ErrNotFound.Error())
		return
	}
	entries, err := h.order.History(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": id, "history": entries})
}

func (h *OrderHandler) Transition(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var req transitionReq
	if !bind(c, &req) {
		return
	}
	o, err := h.order.Transition(c.Request.Context(), order.TransitionCommand{
		OrderID: types.ID(c.Param("id")),
		Actor:   actor,
		Target:  order.Status(req.Target),
		Note:    req.Note,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderResponse(actor, o))
}

func mayView(actor types.Actor, o *order.Order) bool {
	switch actor.Role {
	case types.RoleAdmin:
		return true
	case types.RoleCustomer:
		return o.CustomerID == actor.ID
	case types.RoleVendor:
		return o.VendorID == actor.ID
	case types.RoleRider:
		return o.RiderID == nil || *o.RiderID == actor.ID
	}
	return false
}

// orderResponse shapes the API view of an order. The delivery code is shown
// only to the customer (and admins); the rider must obtain it from the
// customer in person.
func orderResponse(actor types.Actor, o *order.Order) gin.H {
	resp := gin.H{
		"order_id":       o.ID,
		"customer_id":    o.CustomerID,
		"vendor_id":      o.VendorID,
		"status":         o.Status,
		"payment_status": o.PaymentStatus,
		"total_amount":   o.TotalAmount.Amount,
		"delivery_fee":   o.DeliveryFee.Amount,
		"currency":       o.TotalAmount.Currency,
		"created_at":     o.CreatedAt,
		"updated_at":     o.UpdatedAt,
	}
	if o.RiderID != nil {
		resp["rider_id"] = *o.RiderID
	}
	if o.DeliveryCode != nil && (actor.Role == types.RoleCustomer || actor.Role == types.RoleAdmin) {
		resp["delivery_code"] = *o.DeliveryCode
	}
	return resp
}
