package element

import (
	"fmt"
	"strings"
)

// CompareOpt selects which metadata axes participate in a filtered
// comparison. Type and relative path are always compared; every other axis
// can be disabled independently.
type CompareOpt struct {
	Perm    bool
	Owner   bool
	Mtime   bool
	Size    bool
	Hash    bool
	Symlink bool
}

// FullCompare enables every axis.
func FullCompare() CompareOpt {
	return CompareOpt{Perm: true, Owner: true, Mtime: true, Size: true, Hash: true, Symlink: true}
}

// ContentOnly masks permissions, ownership and mtime, leaving only the axes
// that witness content: size, hash and symlink target.
func ContentOnly() CompareOpt {
	return CompareOpt{Size: true, Hash: true, Symlink: true}
}

// MetadataOnly masks size, hash and symlink target. A filtered match under
// this option with a full-compare mismatch is the bit rot signature: content
// changed while permissions, ownership and mtime all stayed the same.
func MetadataOnly() CompareOpt {
	return CompareOpt{Perm: true, Owner: true, Mtime: true}
}

// ParseIgnore builds a CompareOpt from the -i option token list. Tokens are
// comma or space separated; each one disables an axis. "all" disables every
// axis so only presence and type matter.
func ParseIgnore(ignore string) (CompareOpt, error) {
	opt := FullCompare()
	for _, tok := range strings.FieldsFunc(ignore, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}) {
		switch tok {
		case "perm":
			opt.Perm = false
		case "owner":
			opt.Owner = false
		case "mtime":
			opt.Mtime = false
		case "size":
			opt.Size = false
		case "hash":
			opt.Hash = false
		case "symlink":
			opt.Symlink = false
		case "all":
			opt = CompareOpt{}
		default:
			return opt, fmt.Errorf("ignore option %q not valid", tok)
		}
	}
	return opt, nil
}

// Compare performs the filtered comparison of two elements under opt.
// The hash axis is skipped when either side has not computed its hash.
func Compare(a, b *Element, opt CompareOpt) bool {
	if a.Type != b.Type || a.Path != b.Path {
		return false
	}
	if opt.Perm && a.Perm != b.Perm {
		return false
	}
	if opt.Owner && (a.User != b.User || a.Group != b.Group) {
		return false
	}
	if opt.Mtime && a.Mtime != b.Mtime {
		return false
	}
	if opt.Size && a.Size != b.Size {
		return false
	}
	if opt.Hash && a.Hash != b.Hash && a.Hash != "" && b.Hash != "" {
		return false
	}
	if opt.Symlink && a.Target != b.Target {
		return false
	}
	return true
}
