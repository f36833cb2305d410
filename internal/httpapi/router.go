// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

// Package httpapi exposes authentication, password reset and access
// management over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/finlife/identity/internal/access"
	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/internal/token"
)

// Authenticator issues, validates and revokes bearer tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*auth.AuthResult, error)
	Logout(ctx context.Context, raw string) error
	Validate(ctx context.Context, raw string) (token.Claims, error)
}

// PasswordResetter runs the password reset flow.
type PasswordResetter interface {
	RequestReset(ctx context.Context, email string) (*auth.ResetRequestResult, error)
	ConsumeReset(ctx context.Context, tokenValue, password, confirmation string) error
}

// AccessManager applies role, permission and user operations for an actor.
type AccessManager interface {
	ActorFor(ctx context.Context, principalID ulid.ULID) (access.Actor, error)
	CreatePermissions(ctx context.Context, a access.Actor, names []string) ([]*access.Permission, error)
	UpdatePermission(ctx context.Context, a access.Actor, id ulid.ULID, newName string) (*access.Permission, error)
	DeletePermission(ctx context.Context, a access.Actor, id ulid.ULID) error
	ListPermissions(ctx context.Context, a access.Actor) ([]*access.Permission, error)
	CreateRoles(ctx context.Context, a access.Actor, specs []access.RoleSpec) ([]*access.Role, error)
	UpdateRole(ctx context.Context, a access.Actor, id ulid.ULID, spec access.RoleSpec) (*access.Role, error)
	SetRolePermissions(ctx context.Context, a access.Actor, id ulid.ULID, permissionIDs []ulid.ULID) (*access.Role, error)
	DeleteRole(ctx context.Context, a access.Actor, id ulid.ULID) error
	ListRoles(ctx context.Context, a access.Actor) ([]*access.Role, error)
	ListUsers(ctx context.Context, a access.Actor) ([]*auth.Principal, error)
	CreateUser(ctx context.Context, a access.Actor, acct auth.NewAccount) (*auth.ProvisionResult, error)
	ChangeUserRoles(ctx context.Context, a access.Actor, principalID ulid.ULID, roleIDs []ulid.ULID) error
	RemoveUser(ctx context.Context, a access.Actor, principalID ulid.ULID) (access.RemovalMode, error)
}

// RequestRecorder counts served requests.
type RequestRecorder interface {
	RecordHTTPRequest(method string, status int)
}

// Deps holds the services behind the API.
type Deps struct {
	Auth   Authenticator
	Resets PasswordResetter
	Access AccessManager
	// Metrics is optional.
	Metrics RequestRecorder
	Logger  *slog.Logger
}

// Handler serves the API.
type Handler struct {
	auth    Authenticator
	resets  PasswordResetter
	access  AccessManager
	metrics RequestRecorder
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) (*Handler, error) {
	switch {
	case deps.Auth == nil:
		return nil, oops.Errorf("authenticator is required")
	case deps.Resets == nil:
		return nil, oops.Errorf("password resetter is required")
	case deps.Access == nil:
		return nil, oops.Errorf("access manager is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:    deps.Auth,
		resets:  deps.Resets,
		access:  deps.Access,
		metrics: deps.Metrics,
		logger:  logger,
	}, nil
}

// Router returns the route tree. Login, logout and the password reset routes
// are reachable without a validated token; everything else needs one.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", h.login)
		r.Post("/auth/logout", h.logout)
		r.Post("/password-reset/request", h.requestReset)
		r.Post("/password-reset/reset", h.consumeReset)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Get("/permissions", h.listPermissions)
			r.Post("/permissions", h.createPermissions)
			r.Put("/permissions/{id}", h.updatePermission)
			r.Delete("/permissions/{id}", h.deletePermission)

			r.Get("/roles", h.listRoles)
			r.Post("/roles", h.createRoles)
			r.Put("/roles/{id}", h.updateRole)
			r.Put("/roles/{id}/permissions", h.setRolePermissions)
			r.Delete("/roles/{id}", h.deleteRole)

			r.Get("/users", h.listUsers)
			r.Post("/users", h.createUser)
			r.Put("/users/{id}/roles", h.changeUserRoles)
			r.Delete("/users/{id}", h.removeUser)
		})
	})
	return r
}
