package credbak

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// digestChunkSize bounds how much of a file is held in memory while
// hashing; files of any size stream through in chunks of this size.
const digestChunkSize = 64 * 1024

// DigestFile computes the SHA-256 digest of the file at path and returns
// it as a lowercase hex string.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, digestChunkSize)); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
