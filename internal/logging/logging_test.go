package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(Config{Level: "debug", Format: "json"}, &buf), "archive")

	log.Debug().Int64("id", 7).Msg("saved")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "archive", entry["component"])
	assert.Equal(t, "saved", entry["message"])
	assert.EqualValues(t, 7, entry["id"])
	assert.Contains(t, entry, "time")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json"}, &buf)

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	log := New(Config{Level: "loud"}, &bytes.Buffer{})
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{}, &buf)
	log.Info().Str("path", "a.md").Msg("written")
	assert.Contains(t, buf.String(), "written")
	assert.Contains(t, buf.String(), "path=a.md")
}
