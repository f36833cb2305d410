// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package main

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finlife/identity/internal/config"
)

const testSecret = "c2VjcmV0LXNlY3JldC1zZWNyZXQtc2VjcmV0LTEyMzQ="

// testConfig loads the configuration from defaults and env entries only.
func testConfig(t *testing.T, env ...string) *config.Config {
	t.Helper()
	base := []string{
		"IDENTITY_STORE=memory",
		"IDENTITY_REVOCATION__BACKEND=memory",
		"IDENTITY_JWT__SECRET=" + testSecret,
		"IDENTITY_METRICS__ADDR=",
		"IDENTITY_HTTP__ADDR=127.0.0.1:0",
		"IDENTITY_GRPC__ADDR=127.0.0.1:0",
	}
	cfg, err := config.Load(config.LoadOptions{
		Environ: func() []string { return append(base, env...) },
	})
	require.NoError(t, err)
	return cfg
}

// syncBuffer is a bytes.Buffer safe for a writer and a reader goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// lineAfter returns the rest of the first line of out that follows prefix.
func lineAfter(t *testing.T, out, prefix string) string {
	t.Helper()
	_, rest, ok := strings.Cut(out, prefix)
	require.True(t, ok, "output has no %q:\n%s", prefix, out)
	line, _, _ := strings.Cut(rest, "\n")
	return strings.TrimSpace(line)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
