// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlife/identity/pkg/errutil"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "identity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noEnv() []string { return nil }

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(LoadOptions{Environ: func() []string {
		return []string{"IDENTITY_DATABASE__URL=postgres://localhost/identity"}
	}})
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, BackendPostgres, cfg.Store)
	assert.Equal(t, 6, cfg.Auth.MaxLoginAttempts)
	assert.Equal(t, 30*time.Minute, cfg.ResetExpiration())
	ttl, err := cfg.TokenTTL()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, ttl)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, `
store: memory
revocation:
  backend: redis
redis:
  url: redis://localhost:6379/0
auth:
  max_login_attempts: 4
http:
  addr: ":7000"
jwt:
  ttl: 2h
`)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("http-addr", ":8080", "")
	flags.String("log-format", "json", "")
	require.NoError(t, flags.Parse([]string{"--log-format=text"}))

	cfg, err := Load(LoadOptions{
		File:  path,
		Flags: flags,
		Environ: func() []string {
			return []string{"IDENTITY_AUTH__MAX_LOGIN_ATTEMPTS=9", "UNRELATED=1"}
		},
	})
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Store)
	assert.Equal(t, BackendRedis, cfg.Revocation.Backend)
	// env overrides the file
	assert.Equal(t, 9, cfg.Auth.MaxLoginAttempts)
	// an unchanged flag keeps the file value
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	// a changed flag overrides everything
	assert.Equal(t, "text", cfg.Log.Format)
	ttl, err := cfg.TokenTTL()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, ttl)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantKey string
	}{
		{
			name: "unknown key",
			yaml: "stoer: memory\n",
		},
		{
			name: "wrong type",
			yaml: "auth:\n  max_login_attempts: many\n",
		},
		{
			name:    "redis without url",
			yaml:    "store: memory\nrevocation:\n  backend: redis\n",
			wantKey: "redis.url",
		},
		{
			name:    "postgres without url",
			yaml:    "store: postgres\n",
			wantKey: "database.url",
		},
		{
			name:    "bad ttl",
			yaml:    "store: memory\nrevocation:\n  backend: memory\njwt:\n  ttl: forever\n",
			wantKey: "jwt.ttl",
		},
		{
			name:    "memory store with postgres revocations",
			yaml:    "store: memory\n",
			wantKey: "database.url",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(LoadOptions{File: writeFile(t, tt.yaml), Environ: noEnv})
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			if tt.wantKey != "" {
				errutil.AssertErrorContext(t, err, "key", tt.wantKey)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(LoadOptions{File: filepath.Join(t.TempDir(), "missing.yaml"), Environ: noEnv})
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, SchemaID, schema["$id"])
	assert.NotContains(t, schema, "required")

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"log", "http", "grpc", "metrics", "database", "store", "revocation", "redis", "jwt", "auth", "reset", "mail", "seed"} {
		assert.Contains(t, props, key)
	}
}

func TestValidateYAML_EmptyDocument(t *testing.T) {
	assert.NoError(t, ValidateYAML([]byte("")))
	assert.NoError(t, ValidateYAML([]byte("# only a comment\n")))
}
