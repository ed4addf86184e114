// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package logger provides a structured logger based on log/slog.
package logger

import (
	"io"
	"log/slog"

	"github.com/absmach/smppgate/pkg/errors"
)

var errInvalidLogLevel = errors.New("unrecognized log level")

// New returns a JSON slog logger writing to w at the given level.
// Supported levels are debug, info, warn and error.
func New(w io.Writer, levelText string) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelText)); err != nil {
		return &slog.Logger{}, errors.Wrap(errInvalidLogLevel, err)
	}

	logHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})

	return slog.New(logHandler), nil
}
