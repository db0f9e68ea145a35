package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medicare/internal/models"
	"medicare/internal/services"
)

type AuthHandler struct {
	otp *services.OTPService
	log *zap.Logger
}

func NewAuthHandler(otp *services.OTPService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{otp: otp, log: log}
}

// @Summary      Request a login code
// @Description  Emails a 6-digit one-time code valid for 10 minutes
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.SendOTPRequest  true  "Email and optional user type"
// @Success      200   {object}  Envelope
// @Failure      400   {object}  Envelope
// @Failure      429   {object}  Envelope
// @Failure      500   {object}  Envelope
// @Router       /auth/send-otp [post]
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req models.SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Valid email address is required")
		return
	}

	err := h.otp.Issue(c.Request.Context(), req.Email, req.UserType)
	switch {
	case err == nil:
		respond(c, http.StatusOK, "Verification code sent to your email", nil)
	case errors.Is(err, services.ErrInvalidEmail):
		fail(c, http.StatusBadRequest, "Valid email address is required")
	case errors.Is(err, services.ErrDispatchFailed):
		fail(c, http.StatusInternalServerError, "Failed to send verification code. Please try again.")
	default:
		h.log.Error("[auth][send-otp] failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Failed to send verification code. Please try again.")
	}
}
