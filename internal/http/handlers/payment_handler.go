// README: Payment handlers: intent creation, confirmation, webhook, refund.
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"dishpatch/internal/http/middleware"
	"dishpatch/internal/modules/payment"
	"dishpatch/internal/types"
)

type PaymentHandler struct {
	payment *payment.Service
}

func NewPaymentHandler(svc *payment.Service) *PaymentHandler {
	return &PaymentHandler{payment: svc}
}

type confirmReq struct {
	Reference string `json:"reference" validate:"required"`
}

// CreateIntent initializes (or returns the cached) payment intent for an order.
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	res, err := h.payment.CreateIntent(c.Request.Context(), types.ID(c.Param("id")), actor)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

// Confirm lets the client trigger settlement after returning from the
// gateway's checkout page; the gateway is still the source of truth.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req confirmReq
	if !bind(c, &req) {
		return
	}
	if err := h.payment.Confirm(c.Request.Context(), req.Reference); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"confirmed": true})
}

// Webhook is the gateway's settlement callback. It reads the raw body so the
// signature covers exactly the bytes sent.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "unreadable body")
		return
	}
	if err := h.payment.HandleWebhook(c.Request.Context(), raw, c.GetHeader("x-signature")); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"received": true})
}

func (h *PaymentHandler) Refund(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	if err := h.payment.Refund(c.Request.Context(), types.ID(c.Param("id")), actor); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"refunded": true})
}

func (h *PaymentHandler) Get(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	p, err := h.payment.GetByOrder(c.Request.Context(), types.ID(c.Param("id")), actor)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"order_id":  p.OrderID,
		"reference": p.Reference,
		"amount":    p.Amount.Amount,
		"currency":  p.Amount.Currency,
		"status":    p.Status,
	})
}
