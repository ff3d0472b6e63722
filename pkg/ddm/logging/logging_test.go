package logging

import (
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]log.Level{
		"debug":   log.DebugLevel,
		"info":    log.InfoLevel,
		"":        log.InfoLevel,
		"warn":    log.WarnLevel,
		"warning": log.WarnLevel,
		"ERROR":   log.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.ErrorIs(t, err, ErrInvalidLevel)
}

func TestInitAndGet(t *testing.T) {
	require.NoError(t, Init(Config{
		Level:      "warn",
		Components: map[string]string{"scan": "debug"},
	}))

	assert.Equal(t, log.DebugLevel, Get("scan").GetLevel())
	assert.Equal(t, log.WarnLevel, Get("other").GetLevel())

	t.Run("bad component level rejected", func(t *testing.T) {
		err := Init(Config{Level: "info", Components: map[string]string{"x": "shout"}})
		assert.ErrorIs(t, err, ErrInvalidLevel)
	})
}
