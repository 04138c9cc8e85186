package credbak

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// BackupWriter copies matched files into the backup tree and records
// what it persisted. Each candidate is copied preserving its relative
// path under the bucket directory; the recorded digest is computed by
// re-reading the copied bytes, so the manifest always reflects what is
// physically present in the backup tree.
type BackupWriter struct {
	backupRoot string
	logger     Logger
}

// NewBackupWriter creates a writer rooted at backupRoot.
func NewBackupWriter(backupRoot string, logger Logger) *BackupWriter {
	return &BackupWriter{backupRoot: backupRoot, logger: logger}
}

// BucketDir returns the directory for a bucket under the backup root.
func (w *BackupWriter) BucketDir(kind BucketKind, name string) string {
	if kind == BucketRepo {
		return filepath.Join(w.backupRoot, kind.Prefix(), name)
	}
	return filepath.Join(w.backupRoot, kind.Prefix())
}

// WriteBucket copies every candidate from scan into the bucket and
// writes the bucket manifest. A copy failure for one file is recorded
// and processing continues; the bucket is marked failed only when there
// were candidates but none could be copied. The manifest write itself is
// atomic.
func (w *BackupWriter) WriteBucket(kind BucketKind, name string, scan *ScanResult, scanStart, scanEnd time.Time) (*BucketManifest, error) {
	bucketDir := w.BucketDir(kind, name)
	if err := os.MkdirAll(bucketDir, 0755); err != nil {
		return nil, fmt.Errorf("creating bucket directory: %w", err)
	}

	m := &BucketManifest{
		Name:       name,
		Kind:       kind,
		SourceRoot: scan.Root,
		ScanStart:  scanStart,
		ScanEnd:    scanEnd,
		Files:      []BackupEntry{},
	}
	m.Errors = append(m.Errors, scan.Errors...)

	for _, cand := range scan.Candidates {
		entry, err := w.copyCandidate(bucketDir, cand)
		if err != nil {
			w.logger.Warn("copy failed", "path", cand.RelPath, "error", err)
			m.Errors = append(m.Errors, EntryError{Path: cand.AbsPath, Error: err.Error()})
			continue
		}
		m.Files = append(m.Files, *entry)
		m.TotalBytes += entry.SizeBytes
		w.logger.Info("backed up", "bucket", name, "path", cand.RelPath, "reason", cand.MatchReason)
	}
	m.FileCount = len(m.Files)

	switch {
	case len(scan.Candidates) > 0 && m.FileCount == 0:
		m.Status = BucketFailed
	case len(m.Errors) > 0:
		m.Status = BucketCompletedWithErrors
	default:
		m.Status = BucketCompleted
	}

	if err := WriteBucketManifest(bucketDir, m); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	return m, nil
}

// copyCandidate copies one candidate into the bucket and returns its
// manifest entry. The destination is re-hashed after the copy so the
// digest describes the persisted bytes rather than the source read.
func (w *BackupWriter) copyCandidate(bucketDir string, cand SecretCandidate) (*BackupEntry, error) {
	dst := filepath.Join(bucketDir, cand.RelPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, fmt.Errorf("creating parent directory: %w", err)
	}

	size, err := copyFile(cand.AbsPath, dst)
	if err != nil {
		return nil, err
	}

	digest, err := DigestFile(dst)
	if err != nil {
		return nil, fmt.Errorf("hashing copy: %w", err)
	}

	// Carry the source mtime onto the copy; restores propagate it back.
	if err := os.Chtimes(dst, cand.ModTime, cand.ModTime); err != nil {
		w.logger.Warn("preserving mtime failed", "path", cand.RelPath, "error", err)
	}

	return &BackupEntry{
		RelativePath: filepath.ToSlash(cand.RelPath),
		SHA256:       digest,
		SizeBytes:    size,
		SourceMtime:  cand.ModTime,
		MatchReason:  cand.MatchReason,
		MatchValue:   cand.MatchValue,
	}, nil
}

// copyFile copies src to dst and returns the number of bytes written.
// The file handles are scoped to this single copy.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return 0, fmt.Errorf("creating destination: %w", err)
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return 0, fmt.Errorf("copying: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return 0, fmt.Errorf("closing destination: %w", err)
	}
	return n, nil
}
