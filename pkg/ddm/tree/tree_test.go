package tree

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/ddm/pkg/ddm/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// mkFixture builds the standard test tree:
//
//	sub/        (directory)
//	  x.txt     "xx"
//	  y.txt     "yy"
//	f.txt       "hello"
//	link -> f.txt
func mkFixture(t *testing.T) string {
	t.Helper()
	top := t.TempDir()
	writeFile(t, filepath.Join(top, "f.txt"), "hello")
	require.NoError(t, os.Mkdir(filepath.Join(top, "sub"), 0o755))
	writeFile(t, filepath.Join(top, "sub", "x.txt"), "xx")
	writeFile(t, filepath.Join(top, "sub", "y.txt"), "yy")
	require.NoError(t, os.Symlink("f.txt", filepath.Join(top, "link")))
	stampTimes(t, top)
	return top
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// stampTimes gives every entry a fixed, distinct mtime so comparisons are
// deterministic. Directories are stamped after their content.
func stampTimes(t *testing.T, top string) {
	t.Helper()
	base := time.Date(2022, 5, 1, 18, 40, 0, 0, time.UTC)
	stamp := func(rel string, offset int) {
		mt := base.Add(time.Duration(offset) * time.Second).Unix()
		ts := []unix.Timespec{{Nsec: unix.UTIME_OMIT}, {Sec: mt}}
		require.NoError(t, unix.UtimesNanoAt(unix.AT_FDCWD,
			filepath.Join(top, filepath.FromSlash(rel)), ts, unix.AT_SYMLINK_NOFOLLOW))
	}
	stamp("f.txt", 1)
	stamp("sub/x.txt", 2)
	stamp("sub/y.txt", 3)
	stamp("link", 4)
	stamp("sub", 5)
}

func scanFixture(t *testing.T, top string, opt ScanOpt) *Tree {
	t.Helper()
	tr := New()
	require.NoError(t, tr.ScanDirectory(top, opt))
	return tr
}

// checkIndexCoherence verifies the tree/index invariant: every node
// reachable from the roots has exactly one index entry keyed by its path,
// and nothing else is indexed. Sibling lists must be sorted.
func checkIndexCoherence(t *testing.T, tr *Tree) {
	t.Helper()
	reachable := map[string]*Node{}
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for i, n := range nodes {
			if i > 0 {
				prev := nodes[i-1].Element()
				assert.True(t, element.Less(prev, n.Element()) || prev.Path == n.Element().Path,
					"children out of order: %s before %s", prev.Path, n.Element().Path)
			}
			_, dup := reachable[n.Element().Path]
			require.False(t, dup, "node %s reachable twice", n.Element().Path)
			reachable[n.Element().Path] = n
			walk(n.Children())
		}
	}
	walk(tr.Roots())
	require.Len(t, tr.Index(), len(reachable))
	for p, n := range reachable {
		assert.Same(t, n, tr.Index()[p], "index entry for %s", p)
	}
}

func TestScanDirectory(t *testing.T) {
	t.Parallel()

	top := mkFixture(t)
	tr := scanFixture(t, top, ComputeHash)

	t.Run("directories sort first", func(t *testing.T) {
		var names []string
		for _, n := range tr.Roots() {
			names = append(names, n.Element().Path)
		}
		assert.Equal(t, []string{"sub", "f.txt", "link"}, names)
	})

	t.Run("index is coherent", func(t *testing.T) {
		checkIndexCoherence(t, tr)
		assert.Len(t, tr.Index(), 5)
	})

	t.Run("regular files get size and hash", func(t *testing.T) {
		e, ok := tr.Search("f.txt")
		require.True(t, ok)
		assert.Equal(t, element.Regular, e.Type)
		assert.Equal(t, int64(5), e.Size)
		assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", e.Hash)
	})

	t.Run("symlink target recorded verbatim", func(t *testing.T) {
		e, ok := tr.Search("link")
		require.True(t, ok)
		assert.Equal(t, element.Symlink, e.Type)
		assert.Equal(t, "f.txt", e.Target)
	})

	t.Run("search miss", func(t *testing.T) {
		_, ok := tr.Search("nope")
		assert.False(t, ok)
	})

	t.Run("non-directory top fails", func(t *testing.T) {
		err := New().ScanDirectory(filepath.Join(top, "f.txt"), ComputeHash)
		assert.ErrorContains(t, err, "not a directory")
	})
}

func TestScanOmitHash(t *testing.T) {
	t.Parallel()

	top := mkFixture(t)
	tr := scanFixture(t, top, OmitHash)
	e, ok := tr.Search("f.txt")
	require.True(t, ok)
	assert.Empty(t, e.Hash)
	assert.Equal(t, int64(5), e.Size)

	t.Run("omitted hash still compares equal", func(t *testing.T) {
		full := scanFixture(t, top, ComputeHash)
		fe, _ := full.Search("f.txt")
		assert.True(t, element.Equal(&fe, &e))
	})

	t.Run("compute missing hashes fills the gap", func(t *testing.T) {
		require.NoError(t, tr.ComputeMissingHashes())
		e, _ := tr.Search("f.txt")
		assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", e.Hash)
	})
}

func TestScanWarnings(t *testing.T) {
	t.Parallel()

	t.Run("multiple hardlinks", func(t *testing.T) {
		t.Parallel()
		top := t.TempDir()
		writeFile(t, filepath.Join(top, "a"), "data")
		require.NoError(t, os.Link(filepath.Join(top, "a"), filepath.Join(top, "b")))

		var warnings []string
		tr := New()
		tr.SetWarningCallback(func(msg string) { warnings = append(warnings, msg) })
		require.NoError(t, tr.ScanDirectory(top, OmitHash))

		require.Len(t, warnings, 2)
		assert.Contains(t, warnings[0], "hardlinks")
	})

	t.Run("unsupported file type", func(t *testing.T) {
		t.Parallel()
		top := t.TempDir()
		require.NoError(t, unix.Mkfifo(filepath.Join(top, "fifo"), 0o644))

		var warnings []string
		tr := New()
		tr.SetWarningCallback(func(msg string) { warnings = append(warnings, msg) })
		require.NoError(t, tr.ScanDirectory(top, OmitHash))

		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "unsupported file type")
		e, ok := tr.Search("fifo")
		require.True(t, ok, "unknown entries stay in the tree")
		assert.Equal(t, element.Unknown, e.Type)
	})
}

func TestMetadataRoundTrip(t *testing.T) {
	t.Parallel()

	top := mkFixture(t)
	tr := scanFixture(t, top, ComputeHash)

	var buf bytes.Buffer
	require.NoError(t, tr.WriteTo(&buf))

	t.Run("block structure", func(t *testing.T) {
		text := buf.String()
		assert.False(t, strings.HasPrefix(text, "\n"))
		assert.False(t, strings.HasSuffix(text, "\n\n"))
		// One top-level block, one for sub.
		assert.Equal(t, 2, len(strings.Split(strings.TrimRight(text, "\n"), "\n\n")))
	})

	back := New()
	require.NoError(t, back.ReadFrom(bytes.NewReader(buf.Bytes()), "roundtrip"))
	checkIndexCoherence(t, back)
	require.Len(t, back.Index(), len(tr.Index()))
	for p, n := range tr.Index() {
		got, ok := back.Search(p)
		require.True(t, ok, p)
		assert.True(t, element.Equal(n.Element(), &got), "element %s", p)
	}

	t.Run("write is stable", func(t *testing.T) {
		var again bytes.Buffer
		require.NoError(t, back.WriteTo(&again))
		assert.Equal(t, buf.String(), again.String())
	})
}

func TestReadFromErrors(t *testing.T) {
	t.Parallel()

	const (
		dirLine  = "drwxr-xr-x u g 2022-05-01 18:40:00 +0000 sub"
		topFile  = "-rw-r--r-- u g 2022-05-01 18:40:00 +0000 5 * f.txt"
		subFile  = "-rw-r--r-- u g 2022-05-01 18:40:00 +0000 2 * sub/x.txt"
		deepFile = "-rw-r--r-- u g 2022-05-01 18:40:00 +0000 2 * other/x.txt"
	)

	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "different paths grouped",
			content: topFile + "\n" + subFile + "\n",
			wantErr: "different paths grouped",
		},
		{
			name:    "duplicate path",
			content: topFile + "\n" + topFile + "\n",
			wantErr: "duplicate path",
		},
		{
			name:    "first block not top level",
			content: subFile + "\n",
			wantErr: "top level",
		},
		{
			name:    "unknown parent",
			content: dirLine + "\n" + topFile + "\n\n" + deepFile + "\n",
			wantErr: "not preceded",
		},
		{
			name:    "two blocks for one parent",
			content: dirLine + "\n\n" + subFile + "\n\n" + "-rw-r--r-- u g 2022-05-01 18:40:00 +0000 2 * sub/y.txt" + "\n",
			wantErr: "duplicate noncontiguous directory content",
		},
		{
			name:    "parent not a directory",
			content: topFile + "\n\n" + "-rw-r--r-- u g 2022-05-01 18:40:00 +0000 1 * f.txt/x" + "\n",
			wantErr: "not a directory",
		},
		{
			name:    "parse failure carries location",
			content: "garbage\n",
			wantErr: "meta.txt",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := New().ReadFrom(strings.NewReader(tc.content), "meta.txt")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("directory block attaches cleanly", func(t *testing.T) {
		t.Parallel()
		content := dirLine + "\n\n" + subFile + "\n"
		err := New().ReadFrom(strings.NewReader(content), "")
		assert.NoError(t, err)
	})
}

func TestReadMetadataMissingFile(t *testing.T) {
	t.Parallel()

	err := New().ReadMetadata(filepath.Join(t.TempDir(), "absent.met"))
	assert.ErrorContains(t, err, "file not found")
}
