// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/absmach/smppgate/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	cases := []struct {
		desc  string
		level string
		err   bool
	}{
		{desc: "debug level", level: "debug"},
		{desc: "info level", level: "info"},
		{desc: "warn level", level: "warn"},
		{desc: "error level", level: "error"},
		{desc: "uppercase level", level: "INFO"},
		{desc: "unknown level", level: "trace", err: true},
		{desc: "empty level", level: "", err: true},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := logger.New(&bytes.Buffer{}, tc.level)
			if tc.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New(&buf, "warn")
	require.NoError(t, err)

	log.Info("below threshold")
	assert.Zero(t, buf.Len())

	log.Warn("at threshold", "reason", "test")
	require.NotZero(t, buf.Len())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "at threshold", entry["msg"])
	assert.Equal(t, "test", entry["reason"])
}
