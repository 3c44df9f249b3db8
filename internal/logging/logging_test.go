package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "debug", Format: "json"}, &buf).With(String("component", "test"))

	log.Info(context.Background(), "trace finished",
		String("cable", "A"),
		Int("strand", 3),
		Float64("loss_db", 11.5),
		Bool("connected", true),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "trace finished", rec["msg"])
	assert.Equal(t, "test", rec["component"])
	assert.Equal(t, "A", rec["cable"])
	assert.EqualValues(t, 3, rec["strand"])
	assert.EqualValues(t, 11.5, rec["loss_db"])
	assert.Equal(t, true, rec["connected"])
	assert.Equal(t, "boom", rec["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "warn"}, &buf)

	log.Info(context.Background(), "dropped")
	assert.Zero(t, buf.Len())

	log.Warn(context.Background(), "kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestEnsureRequestIDIsStable(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	ctx2, id2 := EnsureRequestID(ctx)
	assert.Equal(t, id, id2)
	assert.Equal(t, id, RequestIDFromContext(ctx2))
}

func TestLoggerFromContextFallback(t *testing.T) {
	fallback := Noop()
	assert.Equal(t, fallback, LoggerFromContext(context.Background(), fallback))

	var buf bytes.Buffer
	stored := NewWithWriter(Config{}, &buf)
	ctx := ContextWithLogger(context.Background(), stored)
	assert.Same(t, stored, LoggerFromContext(ctx, fallback))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg := ConfigFromEnv(Config{Level: "info", Format: "text"})
	assert.Equal(t, Config{Level: "debug", Format: "json"}, cfg)
}
