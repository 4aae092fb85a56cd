package handler

import (
	"encoding/json"
	"net/http"

	"github.com/stello/stello-api/internal/application/otp"
	"github.com/stello/stello-api/internal/domain"
)

// PasswordHandler handles the password-reset OTP flow.
type PasswordHandler struct {
	otps otp.Service
}

func NewPasswordHandler(otps otp.Service) *PasswordHandler {
	return &PasswordHandler{otps: otps}
}

func (h *PasswordHandler) SendResetOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.PasswordResetOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.otps.RequestPasswordReset(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "password reset OTP sent successfully"})
}

func (h *PasswordHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.otps.ResetPassword(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "password reset successfully"})
}
