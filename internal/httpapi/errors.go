// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/samber/oops"

	"github.com/finlife/identity/internal/access"
	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/internal/token"
	"github.com/finlife/identity/pkg/errutil"
)

// CodeBadRequest marks a body or path parameter that could not be decoded.
const CodeBadRequest = "HTTP_BAD_REQUEST"

type errorBody struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	RetryAfterMinutes *int   `json:"retry_after_minutes,omitempty"`
	Rule              string `json:"rule,omitempty"`
	Field             string `json:"field,omitempty"`
}

var statusByCode = map[string]int{
	auth.CodeInvalidCredentials:   http.StatusUnauthorized,
	auth.CodeTokenRequired:        http.StatusUnauthorized,
	token.CodeMalformed:           http.StatusUnauthorized,
	token.CodeExpired:             http.StatusUnauthorized,
	token.CodeRevoked:             http.StatusUnauthorized,
	auth.CodeAccountLocked:        http.StatusLocked,
	auth.CodeAccountDisabled:      http.StatusForbidden,
	access.CodeDenied:             http.StatusForbidden,
	access.CodeForbiddenMutation:  http.StatusForbidden,
	auth.CodeResetBlockNotExpired: http.StatusTooManyRequests,
	auth.CodeResetInvalidToken:    http.StatusBadRequest,
	auth.CodeResetInvalidInput:    http.StatusBadRequest,
	auth.CodePasswordInvalid:      http.StatusBadRequest,
	auth.CodePasswordReused:       http.StatusBadRequest,
	auth.CodeInvalidInput:         http.StatusBadRequest,
	access.CodeInvalidInput:       http.StatusBadRequest,
	CodeBadRequest:                http.StatusBadRequest,
	auth.CodeNotFound:             http.StatusNotFound,
	auth.CodeResetNotFound:        http.StatusNotFound,
	access.CodeNotFound:           http.StatusNotFound,
	access.CodeConflict:           http.StatusConflict,
	auth.CodeEmailTaken:           http.StatusConflict,
}

// statusFor maps an error code to an HTTP status. Unknown codes are 500.
func statusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	if strings.HasSuffix(code, "_NOT_FOUND") {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errutil.Code(err)
	status := statusFor(code)

	body := errorBody{Code: code, Message: err.Error()}
	if status == http.StatusInternalServerError {
		if code == "" {
			body.Code = "INTERNAL_ERROR"
		}
		body.Message = "internal server error"
		errutil.LogErrorContext(r.Context(), h.logger, "request failed", err)
	}
	if n, ok := auth.RemainingAttempts(err); ok {
		body.RemainingAttempts = &n
	}
	if m, ok := auth.RetryAfterMinutes(err); ok {
		body.RetryAfterMinutes = &m
		if d, ok := auth.RetryAfter(err); ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(d.Seconds()+0.999)))
		}
	}
	if rule, field, ok := auth.ViolatedRule(err); ok {
		body.Rule = string(rule)
		body.Field = field
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

func badRequest(err error, msg string) error {
	return oops.Code(CodeBadRequest).Wrapf(err, "%s", msg)
}
