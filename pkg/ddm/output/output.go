// Package output centralizes ddm's terminal presentation: lipgloss banner
// styles for the scrub/backup verdict lines and the safety rules for
// creating output files.
package output

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Banner styles. The originals are inverse-video blocks so verdict lines
// stand out in a long scrub transcript.
var (
	goodStyle   = lipgloss.NewStyle().Background(lipgloss.Color("42")).Foreground(lipgloss.Color("0"))
	noticeStyle = lipgloss.NewStyle().Background(lipgloss.Color("214")).Foreground(lipgloss.Color("0"))
	badStyle    = lipgloss.NewStyle().Background(lipgloss.Color("196")).Foreground(lipgloss.Color("15"))
)

// colorEnabled gates banner styling; it stays on unless DisableColor is
// called (config no_color, or --no-color flag).
var colorEnabled = true

// DisableColor turns all banner styling into plain text.
func DisableColor() { colorEnabled = false }

// GoodBanner renders a success verdict.
func GoodBanner(s string) string { return render(goodStyle, s) }

// NoticeBanner renders a warning verdict.
func NoticeBanner(s string) string { return render(noticeStyle, s) }

// BadBanner renders a failure verdict.
func BadBanner(s string) string { return render(badStyle, s) }

func render(style lipgloss.Style, s string) string {
	if !colorEnabled {
		return s
	}
	return style.Render(s)
}

// ErrExists reports a refused overwrite of an existing output file.
var ErrExists = errors.New("output file already exists")

// Create opens an explicit output path for writing, refusing to overwrite:
// a metadata snapshot or diff the user already has is never silently
// clobbered.
func Create(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}

// Target resolves the -o option: an empty path means stdout, anything else
// a freshly created file the caller must close.
func Target(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
