// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	PrincipalID string    `json:"principal_id"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetRequestResponse struct {
	ExpiresAt  time.Time `json:"expires_at"`
	BlockUntil time.Time `json:"block_until"`
	Warning    string    `json:"warning,omitempty"`
}

type resetConsumeRequest struct {
	Token                string `json:"token"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:       result.Token,
		ExpiresAt:   result.ExpiresAt,
		PrincipalID: result.PrincipalID,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), bearerToken(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requestReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.resets.RequestReset(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := resetRequestResponse{ExpiresAt: result.ExpiresAt, BlockUntil: result.BlockUntil}
	if result.Warning != nil {
		resp.Warning = result.Warning.Error()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// consumeReset accepts the token in the body or, for links opened from the
// reset email, in the query string.
func (h *Handler) consumeReset(w http.ResponseWriter, r *http.Request) {
	var req resetConsumeRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}
	if err := h.resets.ConsumeReset(r.Context(), req.Token, req.Password, req.PasswordConfirmation); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const maxBodyBytes = 1 << 20

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest(err, "request body is not valid JSON")
	}
	return nil
}
