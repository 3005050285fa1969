package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"creatorlink-api/internal/service"
)

// VerificationHandler mantiene dependencias para endpoints de verificacion.
type VerificationHandler struct {
	logger    *zap.Logger
	verifServ *service.VerificationService
	otpTTL    int
}

// NewVerificationHandler crea una instancia con dependencias necesarias.
// otpTTLHours se usa solo para el campo informativo expires_in.
func NewVerificationHandler(logger *zap.Logger, verifServ *service.VerificationService, otpTTLHours int) *VerificationHandler {
	if otpTTLHours <= 0 {
		otpTTLHours = 24
	}
	return &VerificationHandler{
		logger:    logger,
		verifServ: verifServ,
		otpTTL:    otpTTLHours,
	}
}

// VerifyEmail maneja POST /auth/verify-email.
func (h *VerificationHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	_, err := h.verifServ.Confirm(c.Request.Context(), req.Token)
	if err != nil {
		if errors.Is(err, service.ErrCodeInvalidOrExpired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired verification token"})
			return
		}
		h.logger.Error("verify email failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify email"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Email verified successfully",
		"verified": true,
	})
}

// ResendVerification maneja POST /auth/resend-verification.
func (h *VerificationHandler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid resend request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.verifServ.Resend(c.Request.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		case errors.Is(err, service.ErrAlreadyVerified):
			c.JSON(http.StatusBadRequest, gin.H{"error": "email is already verified"})
			return
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusBadRequest, gin.H{"error": "too many resend requests, please try again later"})
			return
		default:
			h.logger.Error("resend verification failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resend verification"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Verification email sent successfully",
		"expires_in": fmt.Sprintf("%d hours", h.otpTTL),
	})
}
