package posixfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesainslie/ddm/pkg/ddm/element"
)

func TestLstat(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, []byte("hello"), 0o640); err != nil {
		t.Fatal(err)
	}
	// Chmod is immune to the umask, unlike the create mode.
	if err := os.Chmod(file, 0o640); err != nil {
		t.Fatal(err)
	}

	st, err := Lstat(file)
	if err != nil {
		t.Fatalf("Lstat() error = %v", err)
	}
	if st.Type != element.Regular {
		t.Errorf("Type = %v, want Regular", st.Type)
	}
	if st.Perm != 0o640 {
		t.Errorf("Perm = %o, want 640", st.Perm)
	}
	if st.Size != 5 {
		t.Errorf("Size = %d, want 5", st.Size)
	}
	if st.HardLinks != 1 {
		t.Errorf("HardLinks = %d, want 1", st.HardLinks)
	}

	t.Run("directory", func(t *testing.T) {
		st, err := Lstat(dir)
		if err != nil {
			t.Fatal(err)
		}
		if st.Type != element.Directory {
			t.Errorf("Type = %v, want Directory", st.Type)
		}
	})

	t.Run("symlink not followed", func(t *testing.T) {
		link := filepath.Join(dir, "l")
		if err := os.Symlink("f", link); err != nil {
			t.Fatal(err)
		}
		st, err := Lstat(link)
		if err != nil {
			t.Fatal(err)
		}
		if st.Type != element.Symlink {
			t.Errorf("Type = %v, want Symlink", st.Type)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		if _, err := Lstat(filepath.Join(dir, "ghost")); err == nil {
			t.Error("Lstat() of missing path succeeded")
		}
	})
}

func TestLutimes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Lutimes(file, 1234567890); err != nil {
		t.Fatalf("Lutimes() error = %v", err)
	}
	st, err := Lstat(file)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mtime != 1234567890 {
		t.Errorf("Mtime = %d, want 1234567890", st.Mtime)
	}

	t.Run("symlink preserved", func(t *testing.T) {
		link := filepath.Join(dir, "l")
		if err := os.Symlink("f", link); err != nil {
			t.Fatal(err)
		}
		if err := Lutimes(link, 1000); err != nil {
			t.Fatal(err)
		}
		lst, err := Lstat(link)
		if err != nil {
			t.Fatal(err)
		}
		if lst.Mtime != 1000 {
			t.Errorf("link Mtime = %d, want 1000", lst.Mtime)
		}
		fst, err := Lstat(file)
		if err != nil {
			t.Fatal(err)
		}
		if fst.Mtime != 1234567890 {
			t.Errorf("target Mtime changed to %d", fst.Mtime)
		}
	})
}

func TestCopyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("payload"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Errorf("content = %q", data)
	}
	st, err := Lstat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if st.Perm != 0o600 {
		t.Errorf("Perm = %o, want 600", st.Perm)
	}

	t.Run("existing destination refused", func(t *testing.T) {
		if err := CopyFile(src, dst); err == nil {
			t.Error("overwrite succeeded")
		}
	})

	t.Run("non-regular source refused", func(t *testing.T) {
		if err := CopyFile(dir, filepath.Join(dir, "dircopy")); err == nil {
			t.Error("directory copy succeeded")
		}
	})
}

func TestRemoveAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(filepath.Join(sub, "deep"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "deep", "f"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	count, err := RemoveAll(sub)
	if err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if _, err := os.Lstat(sub); !os.IsNotExist(err) {
		t.Error("subtree still present")
	}
}

func TestLookupCaches(t *testing.T) {
	t.Parallel()

	uid := uint32(os.Getuid())
	name := LookupUser(uid)
	if name == "" {
		t.Fatal("LookupUser returned empty name")
	}
	// The reverse direction resolves through the cache seeded above.
	back, err := LookupUID(name)
	if err != nil {
		t.Fatalf("LookupUID(%q) error = %v", name, err)
	}
	if back != uid {
		t.Errorf("LookupUID = %d, want %d", back, uid)
	}

	t.Run("unknown uid falls back to decimal", func(t *testing.T) {
		if got := LookupUser(4294967200); got != "4294967200" {
			t.Errorf("LookupUser = %q, want decimal fallback", got)
		}
	})

	t.Run("unknown name errors", func(t *testing.T) {
		if _, err := LookupUID("no-such-user-ddm-test"); err == nil {
			t.Error("LookupUID of unknown name succeeded")
		}
	})

	t.Run("group lookups", func(t *testing.T) {
		gid := uint32(os.Getgid())
		gname := LookupGroup(gid)
		if gname == "" {
			t.Fatal("LookupGroup returned empty name")
		}
		back, err := LookupGID(gname)
		if err != nil {
			t.Fatal(err)
		}
		if back != gid {
			t.Errorf("LookupGID = %d, want %d", back, gid)
		}
	})
}
