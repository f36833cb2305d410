// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/finlife/identity/internal/access"
	"github.com/finlife/identity/internal/auth"
)

type permissionView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type roleView struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	PermissionIDs []string  `json:"permission_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type userView struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Enabled     bool       `json:"enabled"`
	Locked      bool       `json:"locked"`
	RoleIDs     []string   `json:"role_ids"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	DateOfBirth string     `json:"date_of_birth,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type namesRequest struct {
	Names []string `json:"names"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type roleRequest struct {
	Name          string   `json:"name"`
	PermissionIDs []string `json:"permission_ids"`
}

type rolesRequest struct {
	Roles []roleRequest `json:"roles"`
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

type createUserRequest struct {
	Email       string   `json:"email"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	DateOfBirth string   `json:"date_of_birth"`
	Phone       string   `json:"phone"`
	CPF         string   `json:"cpf"`
	RoleIDs     []string `json:"role_ids"`
}

type createUserResponse struct {
	User    userView `json:"user"`
	Warning string   `json:"warning,omitempty"`
}

type removeUserResponse struct {
	Mode string `json:"mode"`
}

const dateLayout = "2006-01-02"

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.access.ListPermissions(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(perms, toPermissionView))
}

func (h *Handler) createPermissions(w http.ResponseWriter, r *http.Request) {
	var req namesRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	perms, err := h.access.CreatePermissions(r.Context(), actorFrom(r.Context()), req.Names)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapSlice(perms, toPermissionView))
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req nameRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	perm, err := h.access.UpdatePermission(r.Context(), actorFrom(r.Context()), id, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPermissionView(perm))
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.access.DeletePermission(r.Context(), actorFrom(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.access.ListRoles(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(roles, toRoleView))
}

func (h *Handler) createRoles(w http.ResponseWriter, r *http.Request) {
	var req rolesRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	specs := make([]access.RoleSpec, 0, len(req.Roles))
	for _, rr := range req.Roles {
		spec, err := rr.spec()
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		specs = append(specs, spec)
	}
	roles, err := h.access.CreateRoles(r.Context(), actorFrom(r.Context()), specs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapSlice(roles, toRoleView))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req roleRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	spec, err := req.spec()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	role, err := h.access.UpdateRole(r.Context(), actorFrom(r.Context()), id, spec)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleView(role))
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req idsRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	permIDs, err := parseIDs(req.IDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	role, err := h.access.SetRolePermissions(r.Context(), actorFrom(r.Context()), id, permIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleView(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.access.DeleteRole(r.Context(), actorFrom(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.access.ListUsers(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(users, toUserView))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	acct, err := req.account()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.access.CreateUser(r.Context(), actorFrom(r.Context()), acct)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := createUserResponse{User: toUserView(result.Principal)}
	if result.Warning != nil {
		resp.Warning = result.Warning.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) changeUserRoles(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req idsRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	roleIDs, err := parseIDs(req.IDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.access.ChangeUserRoles(r.Context(), actorFrom(r.Context()), id, roleIDs); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mode, err := h.access.RemoveUser(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, removeUserResponse{Mode: mode.String()})
}

func (rr roleRequest) spec() (access.RoleSpec, error) {
	ids, err := parseIDs(rr.PermissionIDs)
	if err != nil {
		return access.RoleSpec{}, err
	}
	return access.RoleSpec{Name: rr.Name, PermissionIDs: ids}, nil
}

func (req createUserRequest) account() (auth.NewAccount, error) {
	roleIDs, err := parseIDs(req.RoleIDs)
	if err != nil {
		return auth.NewAccount{}, err
	}
	acct := auth.NewAccount{
		Email:   req.Email,
		RoleIDs: roleIDs,
		Profile: auth.Profile{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
			CPF:       req.CPF,
		},
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse(dateLayout, req.DateOfBirth)
		if err != nil {
			return auth.NewAccount{}, badRequest(err, "date_of_birth must be YYYY-MM-DD")
		}
		acct.Profile.DateOfBirth = &dob
	}
	return acct, nil
}

func pathID(r *http.Request) (ulid.ULID, error) {
	raw := chi.URLParam(r, "id")
	id, err := ulid.Parse(raw)
	if err != nil {
		return ulid.ULID{}, badRequest(err, "invalid id "+raw)
	}
	return id, nil
}

func parseIDs(raw []string) ([]ulid.ULID, error) {
	ids := make([]ulid.ULID, 0, len(raw))
	for _, s := range raw {
		id, err := ulid.Parse(s)
		if err != nil {
			return nil, badRequest(err, "invalid id "+s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func mapSlice[T, V any](in []T, fn func(T) V) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}

func idStrings(ids []ulid.ULID) []string {
	return mapSlice(ids, ulid.ULID.String)
}

func toPermissionView(p *access.Permission) permissionView {
	return permissionView{ID: p.ID.String(), Name: p.Name, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
}

func toRoleView(r *access.Role) roleView {
	return roleView{
		ID:            r.ID.String(),
		Name:          r.Name,
		PermissionIDs: idStrings(r.PermissionIDs),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toUserView(p *auth.Principal) userView {
	v := userView{
		ID:        p.ID.String(),
		Email:     p.Email,
		Enabled:   p.Enabled,
		Locked:    p.Locked,
		RoleIDs:   idStrings(p.RoleIDs),
		FirstName: p.Profile.FirstName,
		LastName:  p.Profile.LastName,
		Phone:     p.Profile.Phone,
		LastLogin: p.Login.LastLogin,
		CreatedAt: p.CreatedAt,
	}
	if p.Profile.DateOfBirth != nil {
		v.DateOfBirth = p.Profile.DateOfBirth.Format(dateLayout)
	}
	return v
}
