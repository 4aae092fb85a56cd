package handler

import (
	"encoding/json"
	"net/http"

	"github.com/stello/stello-api/internal/application/account"
	"github.com/stello/stello-api/internal/application/otp"
	"github.com/stello/stello-api/internal/config"
	"github.com/stello/stello-api/internal/domain"
	"github.com/stello/stello-api/internal/transport/http/middleware"
)

// AuthHandler handles registration, login, logout and the email-verification
// flow.
type AuthHandler struct {
	accounts account.Service
	otps     otp.Service
	cfg      *config.Config
}

func NewAuthHandler(accounts account.Service, otps otp.Service, cfg *config.Config) *AuthHandler {
	return &AuthHandler{accounts: accounts, otps: otps, cfg: cfg}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	setSessionCookie(w, h.cfg, res.Token)
	writeJSON(w, http.StatusCreated, Envelope{
		Success:  true,
		Message:  "user registered successfully",
		Redirect: res.Redirect,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	// Cookie is set whether or not the email is verified; the token is only
	// echoed in the body once verification is done.
	setSessionCookie(w, h.cfg, res.Token)
	if res.NeedsVerification {
		writeJSON(w, http.StatusOK, Envelope{
			Success:  true,
			Message:  "user logged in successfully",
			Redirect: res.Redirect,
		})
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Success: true,
		Message: "user logged in successfully",
		Token:   res.Token,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	clearSessionCookie(w, h.cfg)
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "logged out successfully"})
}

func (h *AuthHandler) ResendEmailVerification(w http.ResponseWriter, r *http.Request) {
	var req domain.ResendVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.otps.ResendVerification(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "email verification OTP sent successfully"})
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.otps.VerifyEmail(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "email verified successfully"})
}

// Me returns the authenticated user's account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, err := h.accounts.Get(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
