// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/finlife/identity/internal/access"
	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/internal/logging"
	"github.com/finlife/identity/internal/token"
	"github.com/finlife/identity/pkg/errutil"
)

type actorKey struct{}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = ulid.Make().String()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if h.metrics != nil {
			h.metrics.RecordHTTPRequest(r.Method, status)
		}
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			h.logger.ErrorContext(r.Context(), "http request completed", attrs...)
		case status >= 400:
			h.logger.WarnContext(r.Context(), "http request completed", attrs...)
		default:
			h.logger.DebugContext(r.Context(), "http request completed", attrs...)
		}
	})
}

// authenticate validates the bearer token and resolves the acting principal.
// Revoked, malformed and expired tokens are rejected with 401, as are tokens
// of principals deleted, disabled or locked since issue.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			h.writeError(w, r, oops.Code(auth.CodeTokenRequired).Errorf("bearer token is required"))
			return
		}
		claims, err := h.auth.Validate(r.Context(), raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		id, err := ulid.Parse(claims.Subject)
		if err != nil {
			h.writeError(w, r, oops.Code(token.CodeMalformed).With("subject", claims.Subject).Wrap(token.ErrMalformed))
			return
		}
		actor, err := h.access.ActorFor(r.Context(), id)
		if err != nil {
			if errutil.HasCode(err, access.CodeNotFound) {
				// The principal was deleted after the token was issued.
				err = oops.Code(token.CodeRevoked).With("subject", claims.Subject).Wrap(token.ErrRevoked)
			}
			h.writeError(w, r, err)
			return
		}
		if !actor.Active {
			h.writeError(w, r, oops.Code(token.CodeRevoked).
				With("subject", claims.Subject).
				With("reason", "principal inactive").
				Wrap(token.ErrRevoked))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

func actorFrom(ctx context.Context) access.Actor {
	a, _ := ctx.Value(actorKey{}).(access.Actor)
	return a
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
