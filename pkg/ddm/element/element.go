// Package element provides the filesystem element value type for the ddm
// backup tool. An Element captures the POSIX metadata of a single directory
// entry (type, permissions, ownership, mtime, size, content hash, symlink
// target) together with its path relative to the tree top, and knows how to
// serialize itself to and from the one-line metadata file format.
package element

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type is the kind of filesystem entry an Element describes.
type Type uint8

// Element types. Unknown covers FIFOs, devices, sockets and anything else
// the tool does not track beyond its presence.
const (
	Unknown Type = iota
	Regular
	Directory
	Symlink
)

// String returns the single-character metadata file representation.
func (t Type) String() string {
	switch t {
	case Regular:
		return "-"
	case Directory:
		return "d"
	case Symlink:
		return "l"
	default:
		return "?"
	}
}

// Perm holds the 12-bit POSIX permission set (rwx triads plus
// setuid/setgid/sticky). The metadata file format only round-trips the low
// 9 bits; the high bits survive in memory but are dropped on write.
type Perm uint16

// PermMask covers all 12 permission bits.
const PermMask Perm = 0o7777

// String returns the 9-character rwxrwxrwx form.
func (p Perm) String() string {
	var b [9]byte
	chars := [3]byte{'r', 'w', 'x'}
	for i := 0; i < 9; i++ {
		if p&(1<<(8-i)) != 0 {
			b[i] = chars[i%3]
		} else {
			b[i] = '-'
		}
	}
	return string(b[:])
}

// Element is the captured metadata of one filesystem entry.
//
// Size and Hash are only meaningful for Regular elements, Target only for
// Symlinks. Hash is either empty (not computed) or exactly 40 lower-case hex
// digits. HardLinks is advisory, filled only when scanning a live filesystem,
// and never serialized.
type Element struct {
	Type      Type
	Perm      Perm
	User      string
	Group     string
	Mtime     int64
	Size      int64
	Hash      string
	Path      string
	Target    string
	HardLinks uint64
}

// IsDirectory reports whether the element is a directory.
func (e *Element) IsDirectory() bool { return e.Type == Directory }

// TypeString returns a human-readable name for the element type, used in
// scrub and backup narration.
func (e *Element) TypeString() string {
	switch e.Type {
	case Regular:
		return "file"
	case Directory:
		return "directory"
	case Symlink:
		return "symbolic link"
	default:
		return "unknown file type"
	}
}

// Name returns the last component of the relative path.
func (e *Element) Name() string {
	if i := strings.LastIndexByte(e.Path, '/'); i >= 0 {
		return e.Path[i+1:]
	}
	return e.Path
}

// ParentPath returns the relative path of the containing directory, or the
// empty string for top-level elements.
func ParentPath(rel string) string {
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return ""
}

// Rebase returns a copy of the element with its relative path replaced.
func (e *Element) Rebase(rel string) Element {
	out := *e
	out.Path = rel
	return out
}

// Less is the sort order used within a directory: directories first, then
// byte-lexicographic on the relative path.
func Less(a, b *Element) bool {
	if a.IsDirectory() != b.IsDirectory() {
		return a.IsDirectory()
	}
	return a.Path < b.Path
}

// Equal is the full equality comparison. All fields must agree except the
// hash, which is ternary: an empty hash on either side means "not computed"
// and never causes inequality. A tree scanned with hashing omitted must
// still compare equal to the same files scanned fully.
func Equal(a, b *Element) bool {
	return a.Type == b.Type && a.Perm == b.Perm &&
		a.User == b.User && a.Group == b.Group &&
		a.Mtime == b.Mtime && a.Size == b.Size &&
		a.Path == b.Path && a.Target == b.Target &&
		(a.Hash == "" || b.Hash == "" || a.Hash == b.Hash)
}

// EqualOpt reports whether two optional elements agree: both absent, or both
// present and Equal. Diff classification compares the optionals, not the
// elements, so that missing entries participate in the quorum.
func EqualOpt(a, b *Element) bool {
	if a == nil || b == nil {
		return a == b
	}
	return Equal(a, b)
}

// String renders the element in the metadata line format, without a
// trailing newline.
func (e *Element) String() string {
	var sb strings.Builder
	sb.WriteString(e.Type.String())
	sb.WriteString(e.Perm.String())
	sb.WriteByte(' ')
	sb.WriteString(e.User)
	sb.WriteByte(' ')
	sb.WriteString(e.Group)
	sb.WriteByte(' ')
	sb.WriteString(time.Unix(e.Mtime, 0).UTC().Format("2006-01-02 15:04:05"))
	sb.WriteString(" +0000 ")
	switch e.Type {
	case Regular:
		sb.WriteString(strconv.FormatInt(e.Size, 10))
		sb.WriteByte(' ')
		if e.Hash == "" {
			sb.WriteByte('*')
		} else {
			sb.WriteString(e.Hash)
		}
		sb.WriteByte(' ')
	case Symlink:
		sb.WriteString(quotePath(e.Target))
		sb.WriteByte(' ')
	}
	sb.WriteString(quotePath(e.Path))
	return sb.String()
}

// quotePath wraps a path in double quotes when it contains characters that
// would break whitespace tokenization, escaping quotes and backslashes.
// Plain paths are emitted bare so common metadata files stay readable.
func quotePath(p string) string {
	if p != "" && !strings.ContainsAny(p, " \t\"\\") {
		return p
	}
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(p); i++ {
		if p[i] == '"' || p[i] == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(p[i])
	}
	sb.WriteByte('"')
	return sb.String()
}

// lineScanner tokenizes one metadata line, honoring the quoting rules of
// quotePath for path fields.
type lineScanner struct {
	s   string
	pos int
}

func (ls *lineScanner) skipSpaces() {
	for ls.pos < len(ls.s) && (ls.s[ls.pos] == ' ' || ls.s[ls.pos] == '\t') {
		ls.pos++
	}
}

// next returns the next whitespace-delimited token.
func (ls *lineScanner) next() (string, bool) {
	ls.skipSpaces()
	if ls.pos >= len(ls.s) {
		return "", false
	}
	start := ls.pos
	for ls.pos < len(ls.s) && ls.s[ls.pos] != ' ' && ls.s[ls.pos] != '\t' {
		ls.pos++
	}
	return ls.s[start:ls.pos], true
}

// nextPath returns the next token as a path, unquoting if necessary.
func (ls *lineScanner) nextPath() (string, bool) {
	ls.skipSpaces()
	if ls.pos >= len(ls.s) {
		return "", false
	}
	if ls.s[ls.pos] != '"' {
		return ls.next()
	}
	ls.pos++
	var sb strings.Builder
	for ls.pos < len(ls.s) {
		c := ls.s[ls.pos]
		switch c {
		case '\\':
			if ls.pos+1 >= len(ls.s) {
				return "", false
			}
			ls.pos++
			sb.WriteByte(ls.s[ls.pos])
		case '"':
			ls.pos++
			return sb.String(), true
		default:
			sb.WriteByte(c)
		}
		ls.pos++
	}
	return "", false // Unterminated quote.
}

func (ls *lineScanner) atEnd() bool {
	ls.skipSpaces()
	return ls.pos >= len(ls.s)
}

// ParseLine parses one metadata file line into an Element. The metadata file
// name and 1-based line number are used for error reporting only; pass the
// zero values when parsing standalone lines.
func ParseLine(line, metadataFile string, lineNo int) (Element, error) {
	var e Element
	fail := func(msg string) error {
		var sb strings.Builder
		if metadataFile != "" {
			sb.WriteString(metadataFile)
			sb.WriteString(": ")
		}
		sb.WriteString(msg)
		if lineNo > 0 {
			fmt.Fprintf(&sb, " at line %d", lineNo)
		}
		fmt.Fprintf(&sb, ", wrong line is '%s'", line)
		return fmt.Errorf("%s", sb.String())
	}

	ls := &lineScanner{s: line}
	permStr, ok := ls.next()
	if !ok || len(permStr) != 10 {
		return e, fail("error reading permission string")
	}
	switch permStr[0] {
	case '-':
		e.Type = Regular
	case 'd':
		e.Type = Directory
	case 'l':
		e.Type = Symlink
	case '?':
		e.Type = Unknown
	default:
		return e, fail("unrecognized file type")
	}
	for i := 0; i < 9; i++ {
		want := [3]byte{'r', 'w', 'x'}[i%3]
		switch permStr[i+1] {
		case want:
			e.Perm |= 1 << (8 - i)
		case '-':
		default:
			return e, fail("permissions not correct")
		}
	}

	if e.User, ok = ls.next(); !ok {
		return e, fail("error reading user/group")
	}
	if e.Group, ok = ls.next(); !ok {
		return e, fail("error reading user/group")
	}

	dateTok, ok1 := ls.next()
	timeTok, ok2 := ls.next()
	if !ok1 || !ok2 {
		return e, fail("error reading mtime")
	}
	mt, err := time.Parse("2006-01-02 15:04:05", dateTok+" "+timeTok)
	if err != nil {
		return e, fail("error reading mtime")
	}
	e.Mtime = mt.UTC().Unix()
	// Only UTC metadata is supported; the +0000 marker is required literally.
	if tz, ok := ls.next(); !ok || tz != "+0000" {
		return e, fail("error reading mtime")
	}

	switch e.Type {
	case Regular:
		szTok, ok := ls.next()
		if !ok {
			return e, fail("error reading size")
		}
		if e.Size, err = strconv.ParseInt(szTok, 10, 64); err != nil || e.Size < 0 {
			return e, fail("error reading size")
		}
		hashTok, ok := ls.next()
		if !ok {
			return e, fail("error reading hash")
		}
		if hashTok == "*" {
			e.Hash = "" // * means omitted hash
		} else if isHexHash(hashTok) {
			e.Hash = hashTok
		} else {
			return e, fail("error reading hash")
		}
	case Symlink:
		if e.Target, ok = ls.nextPath(); !ok {
			return e, fail("error reading symlink target")
		}
	}

	if e.Path, ok = ls.nextPath(); !ok {
		return e, fail("error reading path")
	}
	if !ls.atEnd() {
		return e, fail("extra characters at end of line")
	}
	e.HardLinks = 1
	return e, nil
}

// isHexHash reports whether s is exactly 40 hexadecimal digits.
func isHexHash(s string) bool {
	if len(s) != 40 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
