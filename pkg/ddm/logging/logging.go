// Package logging provides ddm's shared logging setup. Unlike a daemon,
// ddm is an interactive foreground tool, so logs go to stderr and the
// command output owns stdout. Tree warnings route here through the per-tree
// warning callbacks.
//
// Basic usage:
//
//	logging.Init(logging.Config{Level: "info"})
//	logger := logging.Get("scan")
//	logger.Warn("unsupported file type", "path", rel)
package logging

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Config configures the logging system.
type Config struct {
	// Level is the default log level (debug, info, warn, error).
	Level string

	// Components maps component names to log level overrides.
	Components map[string]string

	// ReportTimestamp enables timestamps; off by default for interactive
	// use.
	ReportTimestamp bool
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a level string into a charmbracelet level.
func ParseLevel(s string) (log.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return log.DebugLevel, nil
	case "", "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

var (
	mu         sync.Mutex
	root       *log.Logger
	components map[string]log.Level
)

// Init configures the root logger. Safe to call more than once; the last
// call wins.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	comps := make(map[string]log.Level, len(cfg.Components))
	for name, s := range cfg.Components {
		l, err := ParseLevel(s)
		if err != nil {
			return fmt.Errorf("component %s: %w", name, err)
		}
		comps[name] = l
	}

	mu.Lock()
	defer mu.Unlock()
	root = log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: cfg.ReportTimestamp,
	})
	components = comps
	return nil
}

// Get returns a logger for a component, applying any per-component level
// override. Get before Init returns a default info-level logger.
func Get(component string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		root = log.NewWithOptions(os.Stderr, log.Options{Level: log.InfoLevel})
	}
	logger := root.With("component", component)
	if level, ok := components[component]; ok {
		logger.SetLevel(level)
	}
	return logger
}
