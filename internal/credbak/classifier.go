package credbak

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxContentScanBytes is the size ceiling above which keyword
	// evaluation is skipped entirely.
	DefaultMaxContentScanBytes = 1 << 20 // 1 MiB

	// contentProbeWindow is how many leading bytes are read for both the
	// binary check and the keyword search.
	contentProbeWindow = 1024
)

// MatchResult records why a file was classified as secret-bearing.
type MatchResult struct {
	Kind  RuleKind
	Value string
}

// Classifier decides whether a file is secret-bearing. Rules are
// evaluated cheapest-first: name, then extension, then content keywords.
// The first matching category wins and determines the match reason.
type Classifier struct {
	catalog             *Catalog
	maxContentScanBytes int64
}

// NewClassifier creates a Classifier over the given catalog.
// maxContentScanBytes bounds keyword evaluation; zero or negative selects
// DefaultMaxContentScanBytes.
func NewClassifier(catalog *Catalog, maxContentScanBytes int64) *Classifier {
	if maxContentScanBytes <= 0 {
		maxContentScanBytes = DefaultMaxContentScanBytes
	}
	return &Classifier{
		catalog:             catalog,
		maxContentScanBytes: maxContentScanBytes,
	}
}

// Classify evaluates the file at path against the catalog. size is the
// file's size in bytes as reported by the directory walk. It returns nil
// when no rule matches. Name and extension rules never touch the file;
// the keyword rule reads at most contentProbeWindow leading bytes and is
// skipped for large or binary files.
func (c *Classifier) Classify(path string, size int64) (*MatchResult, error) {
	basename := filepath.Base(path)

	if v, ok := c.catalog.MatchName(basename); ok {
		return &MatchResult{Kind: RuleName, Value: v}, nil
	}
	if v, ok := c.catalog.MatchExtension(basename); ok {
		return &MatchResult{Kind: RuleExtension, Value: v}, nil
	}

	if size > c.maxContentScanBytes {
		return nil, nil
	}

	probe, err := readProbe(path)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}
	if isBinary(probe) {
		return nil, nil
	}
	if v, ok := c.catalog.MatchKeyword(strings.ToLower(string(probe))); ok {
		return &MatchResult{Kind: RuleKeyword, Value: v}, nil
	}
	return nil, nil
}

// readProbe reads up to contentProbeWindow leading bytes of the file.
func readProbe(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, contentProbeWindow)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:n], nil
}

// isBinary reports whether the probe window looks like binary content:
// a null byte, or bytes that do not decode as UTF-8. The final rune is
// allowed to be truncated by the window boundary.
func isBinary(probe []byte) bool {
	if bytes.IndexByte(probe, 0) >= 0 {
		return true
	}
	// Trim a trailing partial rune before validating.
	end := len(probe)
	for i := len(probe) - 1; i >= 0 && i >= len(probe)-utf8.UTFMax; i-- {
		if utf8.RuneStart(probe[i]) {
			if !utf8.FullRune(probe[i:]) {
				end = i
			}
			break
		}
	}
	return !utf8.Valid(probe[:end])
}
