// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

// Package errutil holds helpers for inspecting, logging and asserting oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at ERROR level with its oops code and context, if any.
// Extra attrs are appended after the error attributes.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	logAt(context.Background(), logger, slog.LevelError, msg, err, attrs...)
}

// LogWarn is LogError at WARN level. Use it for best-effort failures that do
// not change the outcome of the surrounding operation.
func LogWarn(logger *slog.Logger, msg string, err error, attrs ...any) {
	logAt(context.Background(), logger, slog.LevelWarn, msg, err, attrs...)
}

// LogErrorContext is LogError carrying ctx to the handler (trace correlation).
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	logAt(ctx, logger, slog.LevelError, msg, err, attrs...)
}

func logAt(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	fields := make([]any, 0, 6+len(attrs))
	if oopsErr, ok := oops.AsOops(err); ok {
		fields = append(fields, "error", oopsErr.Error())
		if code := oopsErr.Code(); code != nil {
			fields = append(fields, "code", code)
		}
		if errCtx := oopsErr.Context(); len(errCtx) > 0 {
			fields = append(fields, "context", errCtx)
		}
	} else {
		fields = append(fields, "error", err)
	}
	fields = append(fields, attrs...)
	logger.Log(ctx, level, msg, fields...)
}
