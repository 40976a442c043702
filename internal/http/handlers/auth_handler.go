// README: Auth handlers for OTP login and password reset.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dishpatch/internal/modules/auth"
	"dishpatch/internal/validation"
)

type AuthHandler struct {
	auth *auth.Service
}

func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{auth: svc}
}

type phoneReq struct {
	Phone string `json:"phone" validate:"required,min=7"`
}

type verifyOTPReq struct {
	Phone string `json:"phone" validate:"required,min=7"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type resetPasswordReq struct {
	Phone       string `json:"phone" validate:"required,min=7"`
	Token       string `json:"token" validate:"required,len=64,hexadecimal"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

func (h *AuthHandler) RequestOTP(c *gin.Context) {
	var req phoneReq
	if !bind(c, &req) {
		return
	}
	if err := h.auth.RequestLoginOTP(c.Request.Context(), req.Phone); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"sent": true})
}

func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPReq
	if !bind(c, &req) {
		return
	}
	token, err := h.auth.VerifyLoginOTP(c.Request.Context(), req.Phone, req.Code)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"token": token})
}

func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req phoneReq
	if !bind(c, &req) {
		return
	}
	if err := h.auth.ForgotPassword(c.Request.Context(), req.Phone); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"sent": true})
}

func (h *AuthHandler) VerifyResetCode(c *gin.Context) {
	var req verifyOTPReq
	if !bind(c, &req) {
		return
	}
	token, err := h.auth.VerifyResetCode(c.Request.Context(), req.Phone, req.Code)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"reset_token": token})
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordReq
	if !bind(c, &req) {
		return
	}
	if err := h.auth.ResetPassword(c.Request.Context(), req.Phone, req.Token, req.NewPassword); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"updated": true})
}

// bind decodes the JSON body and validates the struct tags, writing the 400
// itself on failure.
func bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return validateBound(c, out)
}

// bindQuery is bind for query-string parameters.
func bindQuery(c *gin.Context, out any) bool {
	if err := c.ShouldBindQuery(out); err != nil {
		writeError(c, http.StatusBadRequest, "invalid query")
		return false
	}
	return validateBound(c, out)
}

func validateBound(c *gin.Context, out any) bool {
	if err := validation.Struct(out); err != nil {
		writeJSON(c, http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"fields": validation.ErrorsToMap(err),
		})
		return false
	}
	return true
}
