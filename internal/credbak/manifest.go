package credbak

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// ManifestName is the per-bucket manifest filename, written next to
	// the copied files inside each bucket directory.
	ManifestName = "backup_metadata.json"

	// SummaryRelPath is the run summary location, relative to the backup
	// root.
	SummaryRelPath = "metadata/backup_summary.json"
)

// BucketKind distinguishes the three kinds of backup buckets.
type BucketKind string

const (
	BucketRepo BucketKind = "repo"
	BucketHome BucketKind = "home"
	BucketSSH  BucketKind = "ssh"
)

// Prefix returns the directory prefix of this bucket kind under the
// backup root.
func (k BucketKind) Prefix() string {
	switch k {
	case BucketRepo:
		return "repos"
	case BucketHome:
		return "home"
	case BucketSSH:
		return "ssh"
	}
	return string(k)
}

// BucketStatus is the outcome of processing one bucket.
type BucketStatus string

const (
	BucketCompleted           BucketStatus = "completed"
	BucketCompletedWithErrors BucketStatus = "completed_with_errors"
	BucketFailed              BucketStatus = "failed"
)

// BackupEntry is the persisted record of one copied file.
type BackupEntry struct {
	RelativePath string    `json:"relative_path"`
	SHA256       string    `json:"sha256"`
	SizeBytes    int64     `json:"size_bytes"`
	SourceMtime  time.Time `json:"source_mtime"`
	MatchReason  RuleKind  `json:"match_reason"`
	MatchValue   string    `json:"match_value,omitempty"`
}

// EntryError records a recoverable per-file failure.
type EntryError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// BucketManifest is the ordered record of everything copied into one
// bucket, plus the bucket-level summary.
type BucketManifest struct {
	Name       string        `json:"name"`
	Kind       BucketKind    `json:"kind"`
	SourceRoot string        `json:"source_root"`
	ScanStart  time.Time     `json:"scan_start"`
	ScanEnd    time.Time     `json:"scan_end"`
	FileCount  int           `json:"file_count"`
	TotalBytes int64         `json:"total_bytes"`
	Status     BucketStatus  `json:"status"`
	Files      []BackupEntry `json:"files"`
	Errors     []EntryError  `json:"errors,omitempty"`
}

// BucketSummary is the per-bucket line in the run summary.
type BucketSummary struct {
	Name       string       `json:"name"`
	Kind       BucketKind   `json:"kind"`
	FileCount  int          `json:"file_count"`
	TotalBytes int64        `json:"total_bytes"`
	ErrorCount int          `json:"error_count"`
	Status     BucketStatus `json:"status"`
}

// BackupSummary aggregates all buckets of one completed run. It lives at
// SummaryRelPath under the backup root and is overwritten each run.
type BackupSummary struct {
	RunID      string          `json:"run_id"`
	RunStart   time.Time       `json:"run_start"`
	RunEnd     time.Time       `json:"run_end"`
	BackupRoot string          `json:"backup_root"`
	TotalBytes int64           `json:"total_bytes"`
	Buckets    []BucketSummary `json:"buckets"`
}

// ErrorCount returns the total number of per-file errors across all
// buckets of the run.
func (s *BackupSummary) ErrorCount() int {
	n := 0
	for _, b := range s.Buckets {
		n += b.ErrorCount
	}
	return n
}

// WriteBucketManifest writes the manifest into bucketDir atomically.
func WriteBucketManifest(bucketDir string, m *BucketManifest) error {
	return writeJSONAtomic(filepath.Join(bucketDir, ManifestName), m)
}

// ReadBucketManifest reads the manifest from bucketDir.
func ReadBucketManifest(bucketDir string) (*BucketManifest, error) {
	data, err := os.ReadFile(filepath.Join(bucketDir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m BucketManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest in %s: %w", bucketDir, err)
	}
	return &m, nil
}

// WriteSummary writes the run summary under the backup root atomically.
func WriteSummary(backupRoot string, s *BackupSummary) error {
	return writeJSONAtomic(filepath.Join(backupRoot, filepath.FromSlash(SummaryRelPath)), s)
}

// ReadSummary reads the run summary from under the backup root.
func ReadSummary(backupRoot string) (*BackupSummary, error) {
	data, err := os.ReadFile(filepath.Join(backupRoot, filepath.FromSlash(SummaryRelPath)))
	if err != nil {
		return nil, err
	}
	var s BackupSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding summary: %w", err)
	}
	return &s, nil
}

// writeJSONAtomic marshals v and writes it to path via a temp file in the
// same directory followed by a rename, so a crash mid-write never leaves
// a half-written file behind.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	success = true
	return nil
}
