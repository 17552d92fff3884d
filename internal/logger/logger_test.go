package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-market/internal/config"
)

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LogConfig{Level: "info", Format: "json", Service: "marketd"}, &buf)

	log.Debug().Msg("hidden")
	log.Info().Int64("work_id", 7).Msg("work created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "marketd", entry["service"])
	assert.Equal(t, "work created", entry["message"])
	assert.EqualValues(t, 7, entry["work_id"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestStackMarshaling(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LogConfig{Level: "debug"}, &buf)
	log.Error().Stack().Err(errors.New("journal broke")).Msg("append failed")
	assert.Contains(t, buf.String(), `"stack":`)
	assert.Contains(t, buf.String(), `"service":"celerix-market"`)
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LogConfig{Level: "bogus", Format: "console"}, &buf)
	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
