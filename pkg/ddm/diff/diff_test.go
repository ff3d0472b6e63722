package diff

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/ddm/pkg/ddm/element"
	"github.com/jamesainslie/ddm/pkg/ddm/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanDir(t *testing.T, top string) *tree.Tree {
	t.Helper()
	tr := tree.New()
	require.NoError(t, tr.ScanDirectory(top, tree.ComputeHash))
	return tr
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiff2Empty(t *testing.T) {
	t.Parallel()

	a := scanDir(t, t.TempDir())
	b := scanDir(t, t.TempDir())
	assert.Empty(t, Diff2(a, b, element.FullCompare()))
}

func TestDiff2Idempotence(t *testing.T) {
	t.Parallel()

	top := t.TempDir()
	writeFile(t, filepath.Join(top, "f.txt"), "hello")
	require.NoError(t, os.Mkdir(filepath.Join(top, "sub"), 0o755))
	writeFile(t, filepath.Join(top, "sub", "x"), "x")

	tr := scanDir(t, top)
	assert.Empty(t, Diff2(tr, tr, element.FullCompare()))
	assert.Empty(t, Diff2(tr, tr, element.CompareOpt{}))
	assert.Empty(t, Diff3(tr, tr, tr, element.FullCompare()))
}

func TestDiff2AddedFile(t *testing.T) {
	t.Parallel()

	aTop, bTop := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(bTop, "f.txt"), "hello")

	lines := Diff2(scanDir(t, aTop), scanDir(t, bTop), element.FullCompare())
	require.Len(t, lines, 1)
	assert.Nil(t, lines[0][0])
	require.NotNil(t, lines[0][1])
	assert.Equal(t, "f.txt", lines[0][1].Path)
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", lines[0][1].Hash)

	t.Run("printing uses the absent sentinel", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write2(&buf, lines))
		text := buf.String()
		assert.True(t, strings.HasPrefix(text, "- /dev/null\n+ -rw-"), text)
		assert.True(t, strings.HasSuffix(text, "f.txt\n\n"), text)
	})
}

func TestDiff2Symmetry(t *testing.T) {
	t.Parallel()

	aTop, bTop := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(aTop, "only-a"), "a")
	writeFile(t, filepath.Join(aTop, "both"), "same")
	writeFile(t, filepath.Join(bTop, "both"), "diff!")
	writeFile(t, filepath.Join(bTop, "only-b"), "b")

	a, b := scanDir(t, aTop), scanDir(t, bTop)
	ab := Diff2(a, b, element.FullCompare())
	ba := Diff2(b, a, element.FullCompare())
	require.Len(t, ab, 3)
	require.Len(t, ba, 3)

	key := func(d Line2) string {
		if d[0] != nil {
			return d[0].Path
		}
		return d[1].Path
	}
	swapped := map[string]Line2{}
	for _, d := range ba {
		swapped[key(d)] = d
	}
	for _, d := range ab {
		other, ok := swapped[key(d)]
		require.True(t, ok, key(d))
		assert.Equal(t, d[0], other[1])
		assert.Equal(t, d[1], other[0])
	}
}

func TestDiff2Pruning(t *testing.T) {
	t.Parallel()

	aTop, bTop := t.TempDir(), t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(aTop, "sub"), 0o755))
	for _, name := range []string{"x", "y", "z"} {
		writeFile(t, filepath.Join(aTop, "sub", name), name)
	}

	lines := Diff2(scanDir(t, aTop), scanDir(t, bTop), element.FullCompare())
	// The whole missing subtree is one line for its root, none for the
	// descendants.
	require.Len(t, lines, 1)
	require.NotNil(t, lines[0][0])
	assert.Equal(t, "sub", lines[0][0].Path)
	assert.Nil(t, lines[0][1])
}

func TestDiff2RecursesEqualDirectories(t *testing.T) {
	t.Parallel()

	aTop, bTop := t.TempDir(), t.TempDir()
	for _, top := range []string{aTop, bTop} {
		require.NoError(t, os.Mkdir(filepath.Join(top, "sub"), 0o755))
	}
	writeFile(t, filepath.Join(aTop, "sub", "x"), "one")
	writeFile(t, filepath.Join(bTop, "sub", "x"), "two!")

	lines := Diff2(scanDir(t, aTop), scanDir(t, bTop), element.FullCompare())
	var paths []string
	for _, d := range lines {
		paths = append(paths, d[0].Path)
	}
	// The differing descendant surfaces; sub itself may differ too via
	// its mtime, but x must be there.
	assert.Contains(t, paths, "sub/x")
}

func TestDiff2Masked(t *testing.T) {
	t.Parallel()

	aTop, bTop := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(aTop, "f"), "same")
	writeFile(t, filepath.Join(bTop, "f"), "same")
	require.NoError(t, os.Chmod(filepath.Join(bTop, "f"), 0o600))

	a, b := scanDir(t, aTop), scanDir(t, bTop)
	full := Diff2(a, b, element.FullCompare())
	assert.NotEmpty(t, full)

	opt, err := element.ParseIgnore("perm,mtime")
	require.NoError(t, err)
	assert.Empty(t, Diff2(a, b, opt))
}

func TestDiff3(t *testing.T) {
	t.Parallel()

	mk := func(content string) *tree.Tree {
		top := t.TempDir()
		writeFile(t, filepath.Join(top, "f"), content)
		// Pin mode and mtime so only content differs.
		require.NoError(t, os.Chmod(filepath.Join(top, "f"), 0o644))
		tr := scanDir(t, top)
		require.NoError(t, tr.SetMtime("f", 1000))
		return tr
	}
	same1, same2, other := mk("equal"), mk("equal"), mk("other")

	t.Run("one disagreeing side is reported once", func(t *testing.T) {
		lines := Diff3(same1, same2, other, element.FullCompare())
		require.Len(t, lines, 1)
		d := lines[0]
		require.NotNil(t, d[0])
		require.NotNil(t, d[1])
		require.NotNil(t, d[2])
		assert.True(t, element.Equal(d[0], d[1]))
		assert.False(t, element.Equal(d[1], d[2]))
	})

	t.Run("printing uses a b c prefixes", func(t *testing.T) {
		lines := Diff3(same1, same2, other, element.FullCompare())
		var buf bytes.Buffer
		require.NoError(t, Write3(&buf, lines))
		text := buf.String()
		assert.Contains(t, text, "a -rw-")
		assert.Contains(t, text, "\nb -rw-")
		assert.Contains(t, text, "\nc -rw-")
	})
}

func TestDiff3MissingSide(t *testing.T) {
	t.Parallel()

	aTop, bTop, cTop := t.TempDir(), t.TempDir(), t.TempDir()
	for _, top := range []string{bTop, cTop} {
		require.NoError(t, os.Mkdir(filepath.Join(top, "sub"), 0o755))
		writeFile(t, filepath.Join(top, "sub", "x"), "x")
	}
	// b and c agree; a lacks the whole subtree.
	writeFile(t, filepath.Join(bTop, "sub", "only-b"), "b")

	a, b, c := scanDir(t, aTop), scanDir(t, bTop), scanDir(t, cTop)
	normalizeMtimes(t, b)
	normalizeMtimes(t, c)
	lines := Diff3(a, b, c, element.FullCompare())

	var subLine, onlyBLine *Line3
	for i := range lines {
		p := linePath(lines[i])
		switch p {
		case "sub":
			subLine = &lines[i]
		case "sub/only-b":
			onlyBLine = &lines[i]
		case "sub/x":
			t.Errorf("sub/x equal on both remaining sides, must not be reported")
		}
	}
	// The missing directory is one line with the a slot absent...
	require.NotNil(t, subLine)
	assert.Nil(t, (*subLine)[0])
	// ...and the recursion degenerates to a 2-way between b and c, lifted
	// back with the absent slot preserved.
	require.NotNil(t, onlyBLine)
	assert.Nil(t, (*onlyBLine)[0])
	assert.NotNil(t, (*onlyBLine)[1])
	assert.Nil(t, (*onlyBLine)[2])
}

func linePath(d Line3) string {
	for _, e := range d {
		if e != nil {
			return e.Path
		}
	}
	return ""
}

func normalizeMtimes(t *testing.T, tr *tree.Tree) {
	t.Helper()
	for p := range tr.Index() {
		require.NoError(t, tr.SetMtime(p, 1000))
	}
}
