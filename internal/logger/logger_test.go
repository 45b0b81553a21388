package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogs подменяет логгер процесса JSON-логгером в буфер
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLogger()
	log = New("production", &buf)
	t.Cleanup(func() { log = prev })
	return &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestFromContext_AddsPaymentFields(t *testing.T) {
	buf := captureLogs(t)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithCorrelationID(ctx, "ws_CO_191220191020363925")
	CtxWithError(ctx, "callback failed", errors.New("store down"), "provider", "mpesa")

	entry := lastEntry(t, buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "ws_CO_191220191020363925", entry["correlation_id"])
	assert.Equal(t, "store down", entry["error"])
	assert.Equal(t, "mpesa", entry["provider"])
	assert.NotContains(t, entry, "user_id")
}

func TestWorkerLog_Levels(t *testing.T) {
	buf := captureLogs(t)

	WorkerLog("payment_sweeper", "expire", 0, nil)
	assert.Empty(t, buf.String(), "пустой проход в production не пишется")

	WorkerLog("payment_sweeper", "expire", 3, nil)
	entry := lastEntry(t, buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.EqualValues(t, 3, entry["affected"])

	WorkerLog("payment_sweeper", "replay", 0, errors.New("db gone"))
	entry = lastEntry(t, buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "db gone", entry["error"])
}
