package credbak

import (
	"fmt"
	"os"
	"path/filepath"
)

// Service runs a full backup: repository buckets, the home bucket and
// the ssh bucket, each as an independent unit of work with its own error
// list, followed by the run summary. All work is sequential; buckets
// share no mutable state.
type Service struct {
	scanner    *Scanner
	writer     *BackupWriter
	backupRoot string
	logger     Logger
	clock      Clock
	idgen      IDGenerator
}

// RunOptions selects the source roots for one backup run.
// ReposDir may be empty, which skips repository buckets. HomeDir must be
// set; the ssh bucket is derived from it and skipped when ~/.ssh does
// not exist.
type RunOptions struct {
	ReposDir string
	HomeDir  string
}

// NewService creates a Service.
func NewService(scanner *Scanner, writer *BackupWriter, backupRoot string, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		scanner:    scanner,
		writer:     writer,
		backupRoot: backupRoot,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
	}
}

// Run executes a complete backup and writes the summary. Per-bucket
// failures, including an unscannable home directory, are recorded in
// the summary and do not abort the remaining buckets; only precondition
// failures (no home configured, unreadable repos directory, unwritable
// backup root) fail the run.
func (s *Service) Run(opts RunOptions) (*BackupSummary, error) {
	if opts.HomeDir == "" {
		return nil, fmt.Errorf("home directory not configured")
	}

	if err := s.setupBackupStructure(); err != nil {
		return nil, err
	}

	summary := &BackupSummary{
		RunID:      s.idgen.New(),
		RunStart:   s.clock.Now(),
		BackupRoot: s.backupRoot,
	}
	s.logger.Info("backup run started", "run_id", summary.RunID)

	if opts.ReposDir != "" {
		repos, err := FindRepositories(opts.ReposDir)
		if err != nil {
			return nil, err
		}
		s.logger.Info("repositories found", "count", len(repos))
		for _, repo := range repos {
			summary.add(s.backupBucket(BucketRepo, filepath.Base(repo), func() (*ScanResult, error) {
				return s.scanner.ScanTree(repo)
			}))
		}
	}

	summary.add(s.backupBucket(BucketHome, BucketHome.Prefix(), func() (*ScanResult, error) {
		return s.scanner.ScanHome(opts.HomeDir)
	}))

	sshDir := filepath.Join(opts.HomeDir, ".ssh")
	if _, err := os.Stat(sshDir); err == nil {
		summary.add(s.backupBucket(BucketSSH, BucketSSH.Prefix(), func() (*ScanResult, error) {
			return s.scanner.ScanSSH(sshDir)
		}))
	} else {
		s.logger.Warn("ssh directory not found, skipping", "path", sshDir)
	}

	summary.RunEnd = s.clock.Now()
	for _, b := range summary.Buckets {
		summary.TotalBytes += b.TotalBytes
	}

	if err := WriteSummary(s.backupRoot, summary); err != nil {
		return nil, fmt.Errorf("writing summary: %w", err)
	}

	s.logger.Info("backup run finished",
		"run_id", summary.RunID,
		"buckets", len(summary.Buckets),
		"total_bytes", summary.TotalBytes,
		"errors", summary.ErrorCount(),
	)
	return summary, nil
}

// backupBucket scans one source root and writes one bucket. Failures are
// folded into the returned summary line so one bad bucket never aborts
// the rest of the run.
func (s *Service) backupBucket(kind BucketKind, name string, scan func() (*ScanResult, error)) BucketSummary {
	scanStart := s.clock.Now()
	result, err := scan()
	if err != nil {
		s.logger.Error("scan failed", "bucket", name, "error", err)
		return BucketSummary{Name: name, Kind: kind, ErrorCount: 1, Status: BucketFailed}
	}

	m, err := s.writer.WriteBucket(kind, name, result, scanStart, s.clock.Now())
	if err != nil {
		s.logger.Error("bucket write failed", "bucket", name, "error", err)
		return BucketSummary{Name: name, Kind: kind, ErrorCount: 1, Status: BucketFailed}
	}

	return BucketSummary{
		Name:       name,
		Kind:       kind,
		FileCount:  m.FileCount,
		TotalBytes: m.TotalBytes,
		ErrorCount: len(m.Errors),
		Status:     m.Status,
	}
}

// setupBackupStructure creates the backup directory skeleton.
func (s *Service) setupBackupStructure() error {
	for _, dir := range []string{
		s.backupRoot,
		filepath.Join(s.backupRoot, BucketRepo.Prefix()),
		filepath.Join(s.backupRoot, BucketHome.Prefix()),
		filepath.Join(s.backupRoot, BucketSSH.Prefix()),
		filepath.Join(s.backupRoot, "metadata"),
		filepath.Join(s.backupRoot, "logs"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating backup structure: %w", err)
		}
	}
	return nil
}

func (s *BackupSummary) add(b BucketSummary) {
	s.Buckets = append(s.Buckets, b)
}
