// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/pkg/errutil"
)

var principalRowColumns = []string{
	"id", "email", "password_hash", "enabled", "locked",
	"attempts", "last_login", "reset_attempts", "reset_block_until",
	"first_name", "last_name", "date_of_birth", "phone", "cpf",
	"created_at", "updated_at", "role_ids",
}

func principalRow(id ulid.ULID, roleIDs ...string) *pgxmock.Rows {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if roleIDs == nil {
		roleIDs = []string{}
	}
	return pgxmock.NewRows(principalRowColumns).AddRow(
		id.String(), "ana@example.com", "$argon2id$hash", true, false,
		2, (*time.Time)(nil), 1, &now,
		"Ana", "Souza", (*time.Time)(nil), "11999990000", "12345678909",
		now, now, roleIDs,
	)
}

func TestPrincipalRepository_GetByID(t *testing.T) {
	id := ulid.Make()
	roleID := ulid.Make()

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantCode  string
		check     func(t *testing.T, p *auth.Principal)
	}{
		{
			name: "found with roles",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("FROM principals p WHERE p.id").
					WithArgs(id.String()).
					WillReturnRows(principalRow(id, roleID.String()))
			},
			check: func(t *testing.T, p *auth.Principal) {
				assert.Equal(t, id, p.ID)
				assert.Equal(t, "ana@example.com", p.Email)
				assert.Equal(t, 2, p.Login.Attempts)
				assert.Equal(t, 1, p.Login.ResetAttempts)
				assert.False(t, p.Login.ResetBlockUntil.IsZero())
				assert.Nil(t, p.Login.LastLogin)
				assert.Equal(t, "Ana Souza", p.Profile.FullName())
				assert.Equal(t, []ulid.ULID{roleID}, p.RoleIDs)
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("FROM principals p WHERE p.id").
					WithArgs(id.String()).
					WillReturnRows(pgxmock.NewRows(principalRowColumns))
			},
			wantCode: "PRINCIPAL_NOT_FOUND",
		},
		{
			name: "query failure",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("FROM principals p WHERE p.id").
					WithArgs(id.String()).
					WillReturnError(errors.New("connection reset"))
			},
			wantCode: "PRINCIPAL_GET_BY_ID_FAILED",
		},
		{
			name: "corrupt role id",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("FROM principals p WHERE p.id").
					WithArgs(id.String()).
					WillReturnRows(principalRow(id, "not-a-ulid"))
			},
			wantCode: "PRINCIPAL_INVALID_ROLE_ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			p, err := NewPrincipalRepository(mock).GetByID(context.Background(), id)
			if tt.wantCode != "" {
				errutil.AssertErrorCode(t, err, tt.wantCode)
				if tt.wantCode == "PRINCIPAL_NOT_FOUND" {
					assert.ErrorIs(t, err, auth.ErrNotFound)
				}
			} else {
				require.NoError(t, err)
				tt.check(t, p)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPrincipalRepository_GetByEmail_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("LOWER\\(p.email\\) = LOWER").
		WithArgs("nobody@example.com").
		WillReturnRows(pgxmock.NewRows(principalRowColumns))

	_, err = NewPrincipalRepository(mock).GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	errutil.AssertErrorContext(t, err, "email", "nobody@example.com")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func principalInsertArgs(p *auth.Principal) []any {
	return []any{
		p.ID.String(), p.Email, p.PasswordHash, p.Enabled, p.Locked, p.Login.Attempts,
		p.Profile.FirstName, p.Profile.LastName, p.Profile.DateOfBirth, p.Profile.Phone, p.Profile.CPF,
		p.CreatedAt, p.UpdatedAt,
	}
}

func TestPrincipalRepository_Create(t *testing.T) {
	roleID := ulid.Make()
	p, err := auth.NewPrincipal("ana@example.com", "$argon2id$hash", auth.Profile{FirstName: "Ana"}, []ulid.ULID{roleID})
	require.NoError(t, err)

	t.Run("inserts principal, roles and first history entry", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO principals").
			WithArgs(principalInsertArgs(p)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO principal_roles").
			WithArgs(p.ID.String(), roleID.String()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO password_history").
			WithArgs(pgxmock.AnyArg(), p.ID.String(), p.PasswordHash, p.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		require.NoError(t, NewPrincipalRepository(mock).Create(context.Background(), p))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO principals").
			WithArgs(principalInsertArgs(p)...).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
		mock.ExpectRollback()

		err = NewPrincipalRepository(mock).Create(context.Background(), p)
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
		errutil.AssertErrorCode(t, err, "PRINCIPAL_EMAIL_TAKEN")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("role insert failure rolls back", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO principals").
			WithArgs(principalInsertArgs(p)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO principal_roles").
			WithArgs(p.ID.String(), roleID.String()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation})
		mock.ExpectRollback()

		err = NewPrincipalRepository(mock).Create(context.Background(), p)
		errutil.AssertErrorCode(t, err, "PRINCIPAL_CREATE_FAILED")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("history insert failure rolls back", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO principals").
			WithArgs(principalInsertArgs(p)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO principal_roles").
			WithArgs(p.ID.String(), roleID.String()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO password_history").
			WithArgs(pgxmock.AnyArg(), p.ID.String(), p.PasswordHash, p.CreatedAt).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err = NewPrincipalRepository(mock).Create(context.Background(), p)
		errutil.AssertErrorCode(t, err, "PRINCIPAL_CREATE_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "insert password history")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPrincipalRepository_IncrementLoginAttempts(t *testing.T) {
	id := ulid.Make()

	t.Run("returns new count and lock", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("attempts = attempts \\+ 1").
			WithArgs(id.String(), 6).
			WillReturnRows(pgxmock.NewRows([]string{"attempts", "locked"}).AddRow(6, true))

		attempts, locked, err := NewPrincipalRepository(mock).IncrementLoginAttempts(context.Background(), id, 6)
		require.NoError(t, err)
		assert.Equal(t, 6, attempts)
		assert.True(t, locked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown principal", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("attempts = attempts \\+ 1").
			WithArgs(id.String(), 6).
			WillReturnRows(pgxmock.NewRows([]string{"attempts", "locked"}))

		_, _, err = NewPrincipalRepository(mock).IncrementLoginAttempts(context.Background(), id, 6)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPrincipalRepository_AdvanceResetBlock(t *testing.T) {
	id := ulid.Make()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stateColumns := []string{"attempts", "last_login", "reset_attempts", "reset_block_until"}

	t.Run("advances when elapsed", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		until := now.Add(3 * time.Minute)
		mock.ExpectQuery("reset_attempts = reset_attempts \\+ 1").
			WithArgs(id.String(), now).
			WillReturnRows(pgxmock.NewRows(stateColumns).AddRow(0, (*time.Time)(nil), 3, &until))

		state, err := NewPrincipalRepository(mock).AdvanceResetBlock(context.Background(), id, now)
		require.NoError(t, err)
		assert.Equal(t, 3, state.ResetAttempts)
		assert.Equal(t, until, state.ResetBlockUntil)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("blocked returns current state", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		until := now.Add(90 * time.Second)
		mock.ExpectQuery("reset_attempts = reset_attempts \\+ 1").
			WithArgs(id.String(), now).
			WillReturnRows(pgxmock.NewRows(stateColumns))
		mock.ExpectQuery("SELECT attempts, last_login, reset_attempts, reset_block_until").
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(stateColumns).AddRow(0, (*time.Time)(nil), 2, &until))

		state, err := NewPrincipalRepository(mock).AdvanceResetBlock(context.Background(), id, now)
		assert.ErrorIs(t, err, auth.ErrResetBlocked)
		assert.Equal(t, 2, state.ResetAttempts)
		assert.Equal(t, until, state.ResetBlockUntil)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown principal", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("reset_attempts = reset_attempts \\+ 1").
			WithArgs(id.String(), now).
			WillReturnRows(pgxmock.NewRows(stateColumns))
		mock.ExpectQuery("SELECT attempts, last_login, reset_attempts, reset_block_until").
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(stateColumns))

		_, err = NewPrincipalRepository(mock).AdvanceResetBlock(context.Background(), id, now)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPrincipalRepository_Updates(t *testing.T) {
	id := ulid.Make()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		pattern  string
		args     []any
		rows     int64
		execErr  error
		run      func(r *PrincipalRepository) error
		wantCode string
	}{
		{
			name:    "reset attempts",
			pattern: "SET attempts = 0",
			args:    []any{id.String()},
			rows:    1,
			run:     func(r *PrincipalRepository) error { return r.ResetLoginAttempts(context.Background(), id) },
		},
		{
			name:    "record login",
			pattern: "SET last_login",
			args:    []any{id.String(), at},
			rows:    1,
			run:     func(r *PrincipalRepository) error { return r.RecordLogin(context.Background(), id, at) },
		},
		{
			name:     "missing principal",
			pattern:  "SET attempts = 0",
			args:     []any{id.String()},
			rows:     0,
			run:      func(r *PrincipalRepository) error { return r.ResetLoginAttempts(context.Background(), id) },
			wantCode: "PRINCIPAL_NOT_FOUND",
		},
		{
			name:     "exec failure",
			pattern:  "SET last_login",
			args:     []any{id.String(), at},
			execErr:  errors.New("deadlock detected"),
			run:      func(r *PrincipalRepository) error { return r.RecordLogin(context.Background(), id, at) },
			wantCode: "PRINCIPAL_UPDATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			exp := mock.ExpectExec(tt.pattern).WithArgs(tt.args...)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("UPDATE", tt.rows))
			}

			err = tt.run(NewPrincipalRepository(mock))
			if tt.wantCode == "" {
				assert.NoError(t, err)
			} else {
				errutil.AssertErrorCode(t, err, tt.wantCode)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPrincipalRepository_CompletePasswordReset(t *testing.T) {
	id := ulid.Make()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	change := auth.PasswordChange{PrincipalID: id, TokenHash: "tok-hash", PasswordHash: "$argon2id$new", At: at}

	expectClaim := func(mock pgxmock.PgxPoolIface) *pgxmock.ExpectedQuery {
		return mock.ExpectQuery("DELETE FROM password_reset_tokens WHERE token_hash").
			WithArgs("tok-hash", id.String(), at)
	}
	expectDeleteOthers := func(mock pgxmock.PgxPoolIface) *pgxmock.ExpectedExec {
		return mock.ExpectExec("DELETE FROM password_reset_tokens WHERE principal_id").
			WithArgs(id.String())
	}
	expectUpdate := func(mock pgxmock.PgxPoolIface) *pgxmock.ExpectedExec {
		return mock.ExpectExec("locked = FALSE").
			WithArgs(id.String(), "$argon2id$new")
	}
	expectHistory := func(mock pgxmock.PgxPoolIface) *pgxmock.ExpectedExec {
		return mock.ExpectExec("INSERT INTO password_history").
			WithArgs(pgxmock.AnyArg(), id.String(), "$argon2id$new", at)
	}
	claimed := func() *pgxmock.Rows { return pgxmock.NewRows([]string{"id"}).AddRow(ulid.Make().String()) }

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		wantCode  string
	}{
		{
			name: "commits every step",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				expectClaim(mock).WillReturnRows(claimed())
				expectDeleteOthers(mock).WillReturnResult(pgxmock.NewResult("DELETE", 1))
				expectUpdate(mock).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				expectHistory(mock).WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "token already spent",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				expectClaim(mock).WillReturnRows(pgxmock.NewRows([]string{"id"}))
				mock.ExpectRollback()
			},
			wantErr:  auth.ErrNotFound,
			wantCode: "RESET_TOKEN_SPENT",
		},
		{
			name: "principal gone",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				expectClaim(mock).WillReturnRows(claimed())
				expectDeleteOthers(mock).WillReturnResult(pgxmock.NewResult("DELETE", 0))
				expectUpdate(mock).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
				mock.ExpectRollback()
			},
			wantErr:  auth.ErrNotFound,
			wantCode: "PRINCIPAL_NOT_FOUND",
		},
		{
			name: "history insert failure rolls back the reset",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				expectClaim(mock).WillReturnRows(claimed())
				expectDeleteOthers(mock).WillReturnResult(pgxmock.NewResult("DELETE", 1))
				expectUpdate(mock).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				expectHistory(mock).WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			wantCode: "PRINCIPAL_RESET_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			err = NewPrincipalRepository(mock).CompletePasswordReset(context.Background(), change)
			if tt.wantCode == "" {
				require.NoError(t, err)
			} else {
				errutil.AssertErrorCode(t, err, tt.wantCode)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPrincipalRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a, b := ulid.Make(), ulid.Make()
	rows := principalRow(a)
	now := time.Now().UTC()
	rows.AddRow(
		b.String(), "bo@example.com", "h", false, true,
		6, &now, 0, (*time.Time)(nil),
		"", "", (*time.Time)(nil), "", "",
		now, now, []string{},
	)
	mock.ExpectQuery("ORDER BY p.created_at").WillReturnRows(rows)

	list, err := NewPrincipalRepository(mock).List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a, list[0].ID)
	assert.True(t, list[1].Locked)
	assert.True(t, list[1].Login.ResetBlockUntil.IsZero())
	assert.NotNil(t, list[1].Login.LastLogin)
	assert.NoError(t, mock.ExpectationsWereMet())
}
