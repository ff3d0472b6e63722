package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.met")

	f, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	t.Run("existing file refused", func(t *testing.T) {
		_, err := Create(path)
		assert.ErrorIs(t, err, ErrExists)
	})
}

func TestTarget(t *testing.T) {
	t.Parallel()

	t.Run("empty path means stdout", func(t *testing.T) {
		t.Parallel()
		w, closeFn, err := Target("")
		require.NoError(t, err)
		assert.Equal(t, os.Stdout, w)
		assert.NoError(t, closeFn())
	})

	t.Run("path creates a file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "x")
		w, closeFn, err := Target(path)
		require.NoError(t, err)
		_, err = w.Write([]byte("data"))
		require.NoError(t, err)
		require.NoError(t, closeFn())
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "data", string(data))
	})
}

func TestBanners(t *testing.T) {
	// Not parallel: mutates the package color flag.
	DisableColor()
	assert.Equal(t, "ok", GoodBanner("ok"))
	assert.Equal(t, "warn", NoticeBanner("warn"))
	assert.Equal(t, "bad", BadBanner("bad"))
}
