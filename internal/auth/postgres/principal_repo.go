// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

// Package postgres provides PostgreSQL implementations of the auth
// repositories and the token denylist.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/internal/store"
)

const principalColumns = `
	p.id, p.email, p.password_hash, p.enabled, p.locked,
	p.attempts, p.last_login, p.reset_attempts, p.reset_block_until,
	p.first_name, p.last_name, p.date_of_birth, p.phone, p.cpf,
	p.created_at, p.updated_at,
	COALESCE((SELECT array_agg(pr.role_id ORDER BY pr.role_id)
	          FROM principal_roles pr WHERE pr.principal_id = p.id), '{}')`

// PrincipalRepository implements auth.PrincipalRepository using PostgreSQL.
type PrincipalRepository struct {
	pool store.Pool
}

// NewPrincipalRepository creates a new PrincipalRepository.
func NewPrincipalRepository(pool store.Pool) *PrincipalRepository {
	return &PrincipalRepository{pool: pool}
}

// Create stores a new principal, its role assignments and its first password
// history entry in one transaction.
func (r *PrincipalRepository) Create(ctx context.Context, p *auth.Principal) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("PRINCIPAL_CREATE_FAILED").With("operation", "begin").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
		INSERT INTO principals (
			id, email, password_hash, enabled, locked, attempts,
			first_name, last_name, date_of_birth, phone, cpf,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		p.ID.String(),
		p.Email,
		p.PasswordHash,
		p.Enabled,
		p.Locked,
		p.Login.Attempts,
		p.Profile.FirstName,
		p.Profile.LastName,
		p.Profile.DateOfBirth,
		p.Profile.Phone,
		p.Profile.CPF,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if store.IsUniqueViolation(err) {
		return oops.Code("PRINCIPAL_EMAIL_TAKEN").
			With("email", p.Email).
			Wrap(auth.ErrEmailTaken)
	}
	if err != nil {
		return oops.Code("PRINCIPAL_CREATE_FAILED").
			With("operation", "insert principal").
			With("id", p.ID.String()).
			Wrap(err)
	}
	if err := insertRoles(ctx, tx, p.ID, p.RoleIDs); err != nil {
		return oops.Code("PRINCIPAL_CREATE_FAILED").
			With("operation", "insert principal roles").
			With("id", p.ID.String()).
			Wrap(err)
	}
	if err := insertHistory(ctx, tx, auth.NewPasswordHistoryEntry(p.ID, p.PasswordHash, p.CreatedAt)); err != nil {
		return oops.Code("PRINCIPAL_CREATE_FAILED").
			With("operation", "insert password history").
			With("id", p.ID.String()).
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("PRINCIPAL_CREATE_FAILED").
			With("operation", "commit").
			With("id", p.ID.String()).
			Wrap(err)
	}
	return nil
}

func insertRoles(ctx context.Context, tx pgx.Tx, principalID ulid.ULID, roleIDs []ulid.ULID) error {
	for _, roleID := range roleIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO principal_roles (principal_id, role_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, principalID.String(), roleID.String()); err != nil {
			return err
		}
	}
	return nil
}

// GetByID retrieves a principal by ID.
func (r *PrincipalRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals p WHERE p.id = $1`, id.String())

	p, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PRINCIPAL_GET_BY_ID_FAILED").
			With("operation", "get principal by id").
			With("id", id.String()).
			Wrap(err)
	}
	return p, nil
}

// GetByEmail retrieves a principal by email (case-insensitive).
func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals p WHERE LOWER(p.email) = LOWER($1)`, email)

	p, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PRINCIPAL_GET_BY_EMAIL_FAILED").
			With("operation", "get principal by email").
			With("email", email).
			Wrap(err)
	}
	return p, nil
}

// List returns all principals ordered by creation.
func (r *PrincipalRepository) List(ctx context.Context) ([]*auth.Principal, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+principalColumns+` FROM principals p ORDER BY p.created_at, p.id`)
	if err != nil {
		return nil, oops.Code("PRINCIPAL_LIST_FAILED").With("operation", "list principals").Wrap(err)
	}
	defer rows.Close()

	var out []*auth.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, oops.Code("PRINCIPAL_LIST_FAILED").With("operation", "scan principal").Wrap(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("PRINCIPAL_LIST_FAILED").With("operation", "iterate principals").Wrap(err)
	}
	return out, nil
}

// IncrementLoginAttempts adds a failed attempt in a single statement. The
// lock is set on the statement that reaches maxAttempts and is never cleared
// here.
func (r *PrincipalRepository) IncrementLoginAttempts(ctx context.Context, id ulid.ULID, maxAttempts int) (int, bool, error) {
	var (
		attempts int
		locked   bool
	)
	err := r.pool.QueryRow(ctx, `
		UPDATE principals SET
			attempts = attempts + 1,
			locked = locked OR attempts + 1 >= $2,
			updated_at = now()
		WHERE id = $1
		RETURNING attempts, locked
	`, id.String(), maxAttempts).Scan(&attempts, &locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, false, oops.Code("PRINCIPAL_INCREMENT_ATTEMPTS_FAILED").
			With("operation", "increment login attempts").
			With("id", id.String()).
			Wrap(err)
	}
	return attempts, locked, nil
}

// ResetLoginAttempts sets the attempt counter to 0.
func (r *PrincipalRepository) ResetLoginAttempts(ctx context.Context, id ulid.ULID) error {
	return r.exec(ctx, "reset login attempts", id, `
		UPDATE principals SET attempts = 0, updated_at = now() WHERE id = $1
	`, id.String())
}

// RecordLogin stores the last successful login time.
func (r *PrincipalRepository) RecordLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	return r.exec(ctx, "record login", id, `
		UPDATE principals SET last_login = $2, updated_at = now() WHERE id = $1
	`, id.String(), at)
}

// AdvanceResetBlock moves the reset block forward only when the current block
// has elapsed at now. The condition and the increment are one statement, so
// two concurrent requests cannot both advance it.
func (r *PrincipalRepository) AdvanceResetBlock(ctx context.Context, id ulid.ULID, now time.Time) (auth.LoginState, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE principals SET
			reset_attempts = reset_attempts + 1,
			reset_block_until = $2::timestamptz + (reset_attempts + 1) * interval '1 minute',
			updated_at = now()
		WHERE id = $1 AND (reset_block_until IS NULL OR reset_block_until <= $2)
		RETURNING attempts, last_login, reset_attempts, reset_block_until
	`, id.String(), now)
	state, err := scanLoginState(row)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return auth.LoginState{}, oops.Code("PRINCIPAL_ADVANCE_RESET_BLOCK_FAILED").
			With("operation", "advance reset block").
			With("id", id.String()).
			Wrap(err)
	}

	row = r.pool.QueryRow(ctx, `
		SELECT attempts, last_login, reset_attempts, reset_block_until
		FROM principals WHERE id = $1
	`, id.String())
	state, err = scanLoginState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.LoginState{}, oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return auth.LoginState{}, oops.Code("PRINCIPAL_ADVANCE_RESET_BLOCK_FAILED").
			With("operation", "read reset block").
			With("id", id.String()).
			Wrap(err)
	}
	return state, oops.Code("PRINCIPAL_RESET_BLOCKED").
		With("id", id.String()).
		With("reset_block_until", state.ResetBlockUntil).
		Wrap(auth.ErrResetBlocked)
}

// CompletePasswordReset commits a reset in one transaction. Deleting the
// token row is the claim: a concurrent transaction spending the same token
// blocks on the row and then finds it gone.
func (r *PrincipalRepository) CompletePasswordReset(ctx context.Context, c auth.PasswordChange) error {
	id := c.PrincipalID.String()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("PRINCIPAL_RESET_FAILED").With("operation", "begin").With("id", id).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var claimed string
	err = tx.QueryRow(ctx, `
		DELETE FROM password_reset_tokens
		WHERE token_hash = $1 AND principal_id = $2 AND expires_at >= $3
		RETURNING id
	`, c.TokenHash, id, c.At).Scan(&claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("RESET_TOKEN_SPENT").
			With("principal_id", id).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("PRINCIPAL_RESET_FAILED").With("operation", "claim reset token").With("id", id).Wrap(err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM password_reset_tokens WHERE principal_id = $1`, id); err != nil {
		return oops.Code("PRINCIPAL_RESET_FAILED").With("operation", "delete reset tokens").With("id", id).Wrap(err)
	}

	result, err := tx.Exec(ctx, `
		UPDATE principals SET
			password_hash = $2,
			locked = FALSE,
			enabled = TRUE,
			attempts = 0,
			reset_attempts = 0,
			updated_at = now()
		WHERE id = $1
	`, id, c.PasswordHash)
	if err != nil {
		return oops.Code("PRINCIPAL_RESET_FAILED").With("operation", "update principal").With("id", id).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PRINCIPAL_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}

	if err := insertHistory(ctx, tx, auth.NewPasswordHistoryEntry(c.PrincipalID, c.PasswordHash, c.At)); err != nil {
		return oops.Code("PRINCIPAL_RESET_FAILED").With("operation", "insert password history").With("id", id).Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("PRINCIPAL_RESET_FAILED").With("operation", "commit").With("id", id).Wrap(err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, entry *auth.PasswordHistoryEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO password_history (id, principal_id, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, entry.ID.String(), entry.PrincipalID.String(), entry.PasswordHash, entry.CreatedAt)
	return err //nolint:wrapcheck // callers wrap with the operation
}

func (r *PrincipalRepository) exec(ctx context.Context, operation string, id ulid.ULID, sql string, args ...any) error {
	result, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return oops.Code("PRINCIPAL_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanPrincipal scans principalColumns. Callers handle pgx.ErrNoRows.
func scanPrincipal(row pgx.Row) (*auth.Principal, error) {
	var (
		idStr      string
		p          auth.Principal
		blockUntil *time.Time
		roleIDs    []string
	)
	err := row.Scan(
		&idStr,
		&p.Email,
		&p.PasswordHash,
		&p.Enabled,
		&p.Locked,
		&p.Login.Attempts,
		&p.Login.LastLogin,
		&p.Login.ResetAttempts,
		&blockUntil,
		&p.Profile.FirstName,
		&p.Profile.LastName,
		&p.Profile.DateOfBirth,
		&p.Profile.Phone,
		&p.Profile.CPF,
		&p.CreatedAt,
		&p.UpdatedAt,
		&roleIDs,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	if p.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("PRINCIPAL_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if blockUntil != nil {
		p.Login.ResetBlockUntil = *blockUntil
	}
	if p.RoleIDs, err = parseIDs(roleIDs); err != nil {
		return nil, oops.Code("PRINCIPAL_INVALID_ROLE_ID").With("id", idStr).Wrap(err)
	}
	return &p, nil
}

func scanLoginState(row pgx.Row) (auth.LoginState, error) {
	var (
		state      auth.LoginState
		blockUntil *time.Time
	)
	if err := row.Scan(&state.Attempts, &state.LastLogin, &state.ResetAttempts, &blockUntil); err != nil {
		return auth.LoginState{}, err
	}
	if blockUntil != nil {
		state.ResetBlockUntil = *blockUntil
	}
	return state, nil
}

func parseIDs(raw []string) ([]ulid.ULID, error) {
	ids := make([]ulid.ULID, 0, len(raw))
	for _, s := range raw {
		id, err := ulid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Compile-time interface check.
var _ auth.PrincipalRepository = (*PrincipalRepository)(nil)
