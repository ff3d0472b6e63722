// Package posixfs is the thin capability surface ddm needs from a POSIX
// host filesystem: stat with extended fields, cached uid/gid name lookups,
// symlink-preserving mtime and ownership changes, and a permission-preserving
// file copy. Symbolic links are never followed by any function in this
// package except Chmod, which acts on a symlink's target as chmod(2) does.
package posixfs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jamesainslie/ddm/pkg/ddm/element"
	"golang.org/x/sys/unix"
)

// Status is the result of an Lstat call: everything ddm records about a
// directory entry, gathered with a single syscall.
type Status struct {
	Type      element.Type
	Perm      element.Perm
	UID       uint32
	GID       uint32
	Mtime     int64
	Size      int64
	HardLinks uint64
}

// User returns the owner name, falling back to the decimal uid.
func (s Status) User() string { return LookupUser(s.UID) }

// Group returns the group name, falling back to the decimal gid.
func (s Status) Group() string { return LookupGroup(s.GID) }

// Lstat stats a path without following symlinks.
func Lstat(path string) (Status, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return Status{}, fmt.Errorf("lstat %s: %w", path, err)
	}
	return Status{
		Type:      typeFromMode(uint32(st.Mode)),
		Perm:      element.Perm(st.Mode) & element.PermMask,
		UID:       st.Uid,
		GID:       st.Gid,
		Mtime:     st.Mtim.Sec,
		Size:      st.Size,
		HardLinks: uint64(st.Nlink),
	}, nil
}

// typeFromMode maps the S_IFMT bits to an element type. FIFOs, devices and
// sockets all collapse to Unknown.
func typeFromMode(mode uint32) element.Type {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return element.Regular
	case unix.S_IFDIR:
		return element.Directory
	case unix.S_IFLNK:
		return element.Symlink
	default:
		return element.Unknown
	}
}

// Lutimes sets the modification time of a path without following symlinks.
// The access time is left untouched.
func Lutimes(path string, mtime int64) error {
	ts := []unix.Timespec{
		{Nsec: unix.UTIME_OMIT},
		{Sec: mtime},
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fmt.Errorf("set mtime %s: %w", path, err)
	}
	return nil
}

// Lchown changes the owner and group of a path, resolving both names,
// without following symlinks.
func Lchown(path, user, group string) error {
	uid, err := LookupUID(user)
	if err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	gid, err := LookupGID(group)
	if err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	if err := unix.Lchown(path, int(uid), int(gid)); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	return nil
}

// Chmod applies a 12-bit permission set to a path.
func Chmod(path string, perm element.Perm) error {
	if err := unix.Chmod(path, uint32(perm)); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

// Symlink creates a symbolic link storing target verbatim.
func Symlink(target, path string) error {
	if err := os.Symlink(target, path); err != nil {
		return fmt.Errorf("create symlink %s: %w", path, err)
	}
	return nil
}

// Readlink returns the stored target of a symbolic link, verbatim.
func Readlink(path string) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", fmt.Errorf("readlink %s: %w", path, err)
	}
	return target, nil
}

// Mkdir creates a single directory. Restoring the recorded permission bits
// is left to the caller: a directory being filled during a recursive copy
// must stay writable until its content is in place.
func Mkdir(path string) error {
	if err := os.Mkdir(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// CopyFile copies a regular file preserving its permission bits. The
// destination must not exist. Symlinks are never followed on either side.
func CopyFile(src, dst string) (err error) {
	st, err := Lstat(src)
	if err != nil {
		return err
	}
	if st.Type != element.Regular {
		return fmt.Errorf("copy %s: not a regular file", src)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fs.FileMode(st.Perm&0o777))
	if err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("copy to %s: %w", dst, cerr)
		}
	}()
	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return Chmod(dst, st.Perm)
}

// RemoveAll removes a path and everything below it, returning the number of
// entries removed.
func RemoveAll(path string) (int, error) {
	count := 0
	err := filepath.WalkDir(path, func(string, fs.DirEntry, error) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("remove %s: %w", path, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return 0, fmt.Errorf("remove %s: %w", path, err)
	}
	return count, nil
}
