package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medicare/internal/models"
	"medicare/internal/services"
)

// LoginResponse is returned on a successful code check.
type LoginResponse struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      sessionOwner `json:"user"`
}

type sessionOwner struct {
	ID       int    `json:"id"`
	Email    string `json:"email"`
	UserType string `json:"user_type"`
}

// @Summary      Verify a login code
// @Description  Exchanges a valid code for a 24h bearer token. Three wrong codes lock the pending code.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.VerifyOTPRequest  true  "Email and code"
// @Success      200   {object}  LoginResponse
// @Failure      400   {object}  Envelope
// @Failure      500   {object}  Envelope
// @Router       /auth/verify-otp [post]
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req models.VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Email and OTP are required")
		return
	}

	res, err := h.otp.Verify(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOTPRequired):
			fail(c, http.StatusBadRequest, "Email and OTP are required")
		case errors.Is(err, services.ErrOTPNotFound):
			fail(c, http.StatusBadRequest, "No OTP found for this email")
		case errors.Is(err, services.ErrOTPExpired):
			fail(c, http.StatusBadRequest, "OTP has expired. Please request a new one.")
		case errors.Is(err, services.ErrOTPLocked):
			fail(c, http.StatusBadRequest, "Too many failed attempts. Please request a new OTP.")
		case errors.Is(err, services.ErrOTPInvalid):
			fail(c, http.StatusBadRequest, "Invalid verification code")
		default:
			h.log.Error("[auth][verify-otp] failed", zap.Error(err))
			fail(c, http.StatusInternalServerError, "Failed to verify OTP")
		}
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Success:   true,
		Message:   "Login successful",
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User: sessionOwner{
			ID:       res.Account.ID,
			Email:    res.Account.Email,
			UserType: res.Account.UserType,
		},
	})
}
