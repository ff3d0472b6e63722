package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIgnore(t *testing.T) {
	t.Parallel()

	t.Run("empty keeps every axis", func(t *testing.T) {
		t.Parallel()
		opt, err := ParseIgnore("")
		require.NoError(t, err)
		assert.Equal(t, FullCompare(), opt)
	})

	t.Run("comma separated", func(t *testing.T) {
		t.Parallel()
		opt, err := ParseIgnore("perm,owner,mtime")
		require.NoError(t, err)
		assert.Equal(t, ContentOnly(), opt)
	})

	t.Run("space separated", func(t *testing.T) {
		t.Parallel()
		opt, err := ParseIgnore("size hash symlink")
		require.NoError(t, err)
		assert.Equal(t, MetadataOnly(), opt)
	})

	t.Run("all disables everything", func(t *testing.T) {
		t.Parallel()
		opt, err := ParseIgnore("all")
		require.NoError(t, err)
		assert.Equal(t, CompareOpt{}, opt)
	})

	t.Run("unknown token fails", func(t *testing.T) {
		t.Parallel()
		_, err := ParseIgnore("perm,bogus")
		assert.ErrorContains(t, err, "bogus")
	})
}

func TestCompare(t *testing.T) {
	t.Parallel()

	base := sampleFile()

	t.Run("type and path always compared", func(t *testing.T) {
		t.Parallel()
		other := base
		other.Path = "g.txt"
		assert.False(t, Compare(&base, &other, CompareOpt{}))
		other = base
		other.Type = Directory
		assert.False(t, Compare(&base, &other, CompareOpt{}))
	})

	t.Run("masked axes are ignored", func(t *testing.T) {
		t.Parallel()
		other := base
		other.Perm = 0o600
		other.User = "eve"
		other.Mtime++
		assert.True(t, Compare(&base, &other, ContentOnly()))
		assert.False(t, Compare(&base, &other, FullCompare()))
	})

	t.Run("hash skipped when either side empty", func(t *testing.T) {
		t.Parallel()
		noHash := base
		noHash.Hash = ""
		assert.True(t, Compare(&base, &noHash, FullCompare()))

		conflict := base
		conflict.Hash = "0000000000000000000000000000000000000000"
		assert.False(t, Compare(&base, &conflict, FullCompare()))
	})

	t.Run("bit rot signature", func(t *testing.T) {
		t.Parallel()
		// Content changed, metadata identical: MetadataOnly matches while
		// FullCompare does not.
		rotten := base
		rotten.Hash = "1111111111111111111111111111111111111111"
		assert.True(t, Compare(&base, &rotten, MetadataOnly()))
		assert.False(t, Compare(&base, &rotten, FullCompare()))
	})
}
