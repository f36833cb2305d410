// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package access

import (
	"log/slog"
	"slices"

	"github.com/oklog/ulid/v2"
)

// Tier classifies an actor for mutation rules.
type Tier int

// Tiers.
const (
	TierOther Tier = iota
	TierManager
	TierAdministrator
)

func (t Tier) String() string {
	switch t {
	case TierAdministrator:
		return "administrator"
	case TierManager:
		return "manager"
	default:
		return "other"
	}
}

// Actor is the principal performing an operation, with its role names and
// the permission names those roles grant.
type Actor struct {
	PrincipalID ulid.ULID
	Roles       []string
	Permissions []string
	// Active is false when the principal is disabled or locked.
	Active bool
}

// Classify returns the actor's tier.
func Classify(a Actor) Tier {
	switch {
	case slices.Contains(a.Roles, RoleAdmin):
		return TierAdministrator
	case slices.Contains(a.Roles, RoleManager):
		return TierManager
	default:
		return TierOther
	}
}

// IsAdmin reports whether the actor holds ROLE_ADMIN.
func (a Actor) IsAdmin() bool {
	return Classify(a) == TierAdministrator
}

// HasPermission reports whether any of the actor's permissions matches
// required. Actor permissions may be patterns such as "user:*".
func HasPermission(a Actor, required string) bool {
	for _, p := range a.Permissions {
		if p == required {
			return true
		}
		g, err := CompilePattern(p)
		if err != nil {
			slog.Warn("ignoring invalid permission pattern",
				"principal_id", a.PrincipalID.String(),
				"pattern", p,
				"error", err)
			continue
		}
		if g.Match(required) {
			return true
		}
	}
	return false
}
