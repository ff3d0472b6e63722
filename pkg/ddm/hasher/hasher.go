// Package hasher computes streaming SHA-1 content fingerprints. SHA-1 is
// used strictly as a change detector for scrub and backup decisions, not as
// a security primitive.
package hasher

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// HashFile returns the SHA-1 of a file's content as 40 lower-case hex
// digits.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
