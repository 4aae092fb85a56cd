package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stello/stello-api/internal/domain"
)

// Envelope is the generic response wrapper. Every endpoint answers with it:
// success flips false on errors, redirect carries the next-step hint, token is
// only populated for verified logins.
type Envelope struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Token    string `json:"token,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Envelope{Success: false, Message: msg})
}

// httpError maps a service error to the transport surface. Expected failures
// are all 400s with the operation's message; anything else is a 500 carrying
// a generic message so no store or driver detail leaks to the client.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidOTP):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
