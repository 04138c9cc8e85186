package credbak

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// BucketRef identifies one restorable bucket in a backup tree.
// ID is the bucket's path relative to the backup root ("repos/<name>",
// "home" or "ssh") and is what restore commands accept.
type BucketRef struct {
	ID         string
	Kind       BucketKind
	Name       string
	FileCount  int
	TotalBytes int64
	Status     BucketStatus
}

// RestoreReport is the outcome of restoring one bucket: what was written
// and every per-file failure, including verification mismatches.
type RestoreReport struct {
	BucketID  string
	TargetDir string
	Restored  []string
	Errors    []EntryError
	Verified  bool
}

// restoreStep is one planned copy: bucket-relative source to absolute
// destination. The plan is derived from the manifest and never persisted.
type restoreStep struct {
	entry BackupEntry
	src   string
	dst   string
}

// RestoreEngine is the inverse of the BackupWriter: it reads bucket
// manifests out of an existing backup tree and copies files back out.
// Restores are additive: existing destination files with the same
// relative path are overwritten, everything else is left untouched.
type RestoreEngine struct {
	backupRoot string
	logger     Logger
}

// NewRestoreEngine creates an engine over an existing backup tree.
func NewRestoreEngine(backupRoot string, logger Logger) *RestoreEngine {
	return &RestoreEngine{backupRoot: backupRoot, logger: logger}
}

// ListBuckets enumerates the buckets present in the backup tree, sorted
// by ID. A missing backup root is a structural error.
func (e *RestoreEngine) ListBuckets() ([]BucketRef, error) {
	if _, err := os.Stat(e.backupRoot); err != nil {
		return nil, fmt.Errorf("backup root: %w", err)
	}

	var refs []BucketRef

	reposDir := filepath.Join(e.backupRoot, BucketRepo.Prefix())
	entries, err := os.ReadDir(reposDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading repos directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m, err := ReadBucketManifest(filepath.Join(reposDir, entry.Name()))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		refs = append(refs, bucketRef(BucketRepo.Prefix()+"/"+entry.Name(), m))
	}

	for _, kind := range []BucketKind{BucketHome, BucketSSH} {
		m, err := ReadBucketManifest(filepath.Join(e.backupRoot, kind.Prefix()))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		refs = append(refs, bucketRef(kind.Prefix(), m))
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

func bucketRef(id string, m *BucketManifest) BucketRef {
	return BucketRef{
		ID:         id,
		Kind:       m.Kind,
		Name:       m.Name,
		FileCount:  m.FileCount,
		TotalBytes: m.TotalBytes,
		Status:     m.Status,
	}
}

// Restore copies a bucket's files into targetDir, recreating the
// relative structure. When verify is true every destination file is
// re-hashed after the copy and compared against the manifest digest;
// mismatches are reported as corruption errors but do not abort the
// remaining restores. A nonexistent bucket fails before any filesystem
// mutation.
func (e *RestoreEngine) Restore(bucketID, targetDir string, verify bool) (*RestoreReport, error) {
	bucketDir, err := e.resolveBucket(bucketID)
	if err != nil {
		return nil, err
	}

	m, err := ReadBucketManifest(bucketDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("bucket not found: %s", bucketID)
		}
		return nil, err
	}

	// Build the full plan up front; nothing is written until it is known
	// the manifest is readable and well-formed.
	plan := make([]restoreStep, 0, len(m.Files))
	for _, entry := range m.Files {
		rel := filepath.FromSlash(entry.RelativePath)
		plan = append(plan, restoreStep{
			entry: entry,
			src:   filepath.Join(bucketDir, rel),
			dst:   filepath.Join(targetDir, rel),
		})
	}

	report := &RestoreReport{BucketID: bucketID, TargetDir: targetDir, Verified: verify}
	for _, step := range plan {
		if err := e.restoreOne(step, verify); err != nil {
			e.logger.Warn("restore failed", "path", step.entry.RelativePath, "error", err)
			report.Errors = append(report.Errors, EntryError{Path: step.entry.RelativePath, Error: err.Error()})
			continue
		}
		report.Restored = append(report.Restored, step.entry.RelativePath)
		e.logger.Info("restored", "path", step.entry.RelativePath)
	}

	return report, nil
}

// restoreOne copies one planned file and optionally verifies the result.
func (e *RestoreEngine) restoreOne(step restoreStep, verify bool) error {
	if err := os.MkdirAll(filepath.Dir(step.dst), 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if _, err := copyFile(step.src, step.dst); err != nil {
		return err
	}
	if err := os.Chtimes(step.dst, step.entry.SourceMtime, step.entry.SourceMtime); err != nil {
		e.logger.Warn("setting mtime failed", "path", step.entry.RelativePath, "error", err)
	}

	if verify {
		digest, err := DigestFile(step.dst)
		if err != nil {
			return fmt.Errorf("verifying: %w", err)
		}
		if digest != step.entry.SHA256 {
			return fmt.Errorf("digest mismatch: manifest %s, restored %s", step.entry.SHA256, digest)
		}
	}
	return nil
}

// resolveBucket maps a bucket ID to its directory, rejecting IDs that
// escape the backup root. The bucket directory must exist.
func (e *RestoreEngine) resolveBucket(bucketID string) (string, error) {
	id := strings.Trim(filepath.ToSlash(bucketID), "/")
	switch {
	case id == BucketHome.Prefix() || id == BucketSSH.Prefix():
		// ok
	case strings.HasPrefix(id, BucketRepo.Prefix()+"/"):
		name := strings.TrimPrefix(id, BucketRepo.Prefix()+"/")
		if name == "" || name != filepath.ToSlash(filepath.Clean(name)) || strings.HasPrefix(name, "..") {
			return "", fmt.Errorf("invalid bucket id: %s", bucketID)
		}
	default:
		return "", fmt.Errorf("invalid bucket id: %s (want repos/<name>, home or ssh)", bucketID)
	}

	dir := filepath.Join(e.backupRoot, filepath.FromSlash(id))
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("bucket not found: %s", bucketID)
		}
		return "", fmt.Errorf("checking bucket: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("bucket is not a directory: %s", bucketID)
	}
	return dir, nil
}
