// README: Rider handlers: claim, decline, deliver, availability, pending notifications.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dishpatch/internal/http/middleware"
	"dishpatch/internal/modules/notify"
	"dishpatch/internal/modules/order"
	"dishpatch/internal/types"
)

type RiderHandler struct {
	order  *order.Service
	notify *notify.Service
}

func NewRiderHandler(orderSvc *order.Service, notifySvc *notify.Service) *RiderHandler {
	return &RiderHandler{order: orderSvc, notify: notifySvc}
}

type deliverReq struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type availabilityReq struct {
	Available bool    `json:"available"`
	Lat       float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng       float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Claim races the calling rider for the order. Losing the race is a 409 the
// client may retry against another order.
func (h *RiderHandler) Claim(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	o, err := h.order.Claim(c.Request.Context(), order.ClaimCommand{
		OrderID: types.ID(c.Param("id")),
		Rider:   actor,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderResponse(actor, o))
}

func (h *RiderHandler) Decline(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	o, err := h.order.Decline(c.Request.Context(), order.DeclineCommand{
		OrderID: types.ID(c.Param("id")),
		Rider:   actor,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderResponse(actor, o))
}

func (h *RiderHandler) Deliver(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var req deliverReq
	if !bind(c, &req) {
		return
	}
	o, err := h.order.Deliver(c.Request.Context(), order.DeliverCommand{
		OrderID: types.ID(c.Param("id")),
		Rider:   actor,
		Code:    req.Code,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderResponse(actor, o))
}

func (h *RiderHandler) SetAvailability(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var req availabilityReq
	if !bind(c, &req) {
		return
	}
	err := h.notify.SetAvailability(c.Request.Context(), actor, req.Available, types.Point{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"available": req.Available})
}

type nearbyReq struct {
	Lat      float64 `form:"lat" validate:"gte=-90,lte=90"`
	Lng      float64 `form:"lng" validate:"gte=-180,lte=180"`
	RadiusKm float64 `form:"radius_km" validate:"gt=0,lte=50"`
}

// Nearby lists available couriers around a point, nearest first. Vendors use
// it to judge whether an order is worth accepting.
func (h *RiderHandler) Nearby(c *gin.Context) {
	var req nearbyReq
	if !bindQuery(c, &req) {
		return
	}
	ids, err := h.notify.Nearby(c.Request.Context(), types.Point{Lat: req.Lat, Lng: req.Lng}, req.RadiusKm)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"couriers": ids})
}

type etaReq struct {
	Origin      string `form:"origin" validate:"required"`
	Destination string `form:"destination" validate:"required"`
}

// PickupETA estimates courier travel between two addresses. Returns an empty
// estimate when no maps client is configured.
func (h *RiderHandler) PickupETA(c *gin.Context) {
	var req etaReq
	if !bindQuery(c, &req) {
		return
	}
	eta, err := h.notify.PickupETA(c.Request.Context(), req.Origin, req.Destination)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"eta": eta})
}

// Pending drains the caller's queued notifications (any role).
func (h *RiderHandler) Pending(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	events, err := h.notify.Pending(c.Request.Context(), actor)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": events})
}
