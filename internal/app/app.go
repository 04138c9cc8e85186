package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"credbak/internal/archive"
	"credbak/internal/config"
	"credbak/internal/credbak"
	"credbak/internal/history"
	"credbak/internal/uploader"
)

// App is the application layer between the CLI and the backup core.
// It constructs the pipeline from config, exposes the high-level
// operations the CLI needs, and manages the log file and run-history
// database lifecycle on Close.
type App struct {
	cfg      *config.Config
	service  *credbak.Service
	restorer *credbak.RestoreEngine
	archiver *archive.Archiver
	hist     *history.Store
	clock    credbak.Clock
	logger   credbak.Logger
	logFile  *os.File
}

// New creates a fully wired App from the given config. The caller must
// call Close when done.
func New(cfg *config.Config) (*App, error) {
	if cfg.BackupRoot == "" {
		return nil, fmt.Errorf("backup_root not configured")
	}

	clock := credbak.RealClock{}
	logger, logFile, err := newLogger(filepath.Join(cfg.BackupRoot, "logs"), clock.Now())
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	hist, err := history.Open(cfg.HistoryDir())
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening run history: %w", err)
	}

	log := &slogAdapter{l: logger}
	catalog := credbak.DefaultCatalog(cfg.Scan.ExtraNamePatterns, cfg.Scan.ExtraKeywords)
	classifier := credbak.NewClassifier(catalog, cfg.Scan.MaxContentScanBytes)
	scanner := credbak.NewScanner(catalog, classifier, cfg.Scan.MaxFileSize, log)
	writer := credbak.NewBackupWriter(cfg.BackupRoot, log)
	service := credbak.NewService(scanner, writer, cfg.BackupRoot, log, clock, credbak.UUIDGenerator{})

	return &App{
		cfg:      cfg,
		service:  service,
		restorer: credbak.NewRestoreEngine(cfg.BackupRoot, log),
		archiver: archive.New(),
		hist:     hist,
		clock:    clock,
		logger:   log,
		logFile:  logFile,
	}, nil
}

// Backup runs a complete backup of the configured sources and records
// the run in the history database.
func (a *App) Backup() (*credbak.BackupSummary, error) {
	homeDir := a.cfg.HomeDir
	if homeDir == "" {
		var err error
		homeDir, err = os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determining home directory: %w", err)
		}
	}

	summary, err := a.service.Run(credbak.RunOptions{
		ReposDir: a.cfg.ReposDir,
		HomeDir:  homeDir,
	})
	if err != nil {
		return nil, err
	}

	run := &history.Run{
		ID:          summary.RunID,
		StartedAt:   summary.RunStart,
		FinishedAt:  summary.RunEnd,
		BucketCount: len(summary.Buckets),
		TotalBytes:  summary.TotalBytes,
		ErrorCount:  summary.ErrorCount(),
		Status:      runStatus(summary),
	}
	for _, b := range summary.Buckets {
		run.FileCount += b.FileCount
	}
	if err := a.hist.RecordRun(run); err != nil {
		a.logger.Warn("recording run history failed", "error", err)
	}

	return summary, nil
}

// runStatus reduces the per-bucket statuses to one run-level status.
func runStatus(summary *credbak.BackupSummary) string {
	status := string(credbak.BucketCompleted)
	for _, b := range summary.Buckets {
		if b.Status == credbak.BucketFailed {
			return string(credbak.BucketFailed)
		}
		if b.Status == credbak.BucketCompletedWithErrors {
			status = string(credbak.BucketCompletedWithErrors)
		}
	}
	return status
}

// ListBuckets enumerates the restorable buckets in the backup tree.
func (a *App) ListBuckets() ([]credbak.BucketRef, error) {
	return a.restorer.ListBuckets()
}

// Restore copies a bucket's files into targetDir.
func (a *App) Restore(bucketID, targetDir string, verify bool) (*credbak.RestoreReport, error) {
	abs, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, fmt.Errorf("resolving target: %w", err)
	}
	return a.restorer.Restore(bucketID, abs, verify)
}

// Verify re-hashes the whole backup tree against its manifests.
func (a *App) Verify() (*credbak.VerifyReport, error) {
	return a.restorer.Verify()
}

// Archive packages the backup tree into an archive file and returns its
// path. A non-empty passphrase produces an age-encrypted archive.
func (a *App) Archive(passphrase string) (string, error) {
	outDir := a.cfg.Archive.OutputDir
	if outDir == "" {
		outDir = filepath.Dir(a.cfg.BackupRoot)
	}
	outPath := filepath.Join(outDir, archive.ArchiveName(a.clock.Now(), passphrase != ""))
	if err := a.archiver.Create(a.cfg.BackupRoot, outPath, passphrase); err != nil {
		return "", err
	}
	a.logger.Info("archive created", "path", outPath)
	return outPath, nil
}

// Extract unpacks an archive into destDir.
func (a *App) Extract(archivePath, destDir, passphrase string) error {
	return a.archiver.Extract(archivePath, destDir, passphrase)
}

// Upload transfers an archive to the configured S3 bucket and returns
// the object key.
func (a *App) Upload(ctx context.Context, archivePath string) (string, error) {
	up, err := uploader.NewS3Uploader(ctx, a.cfg.Upload)
	if err != nil {
		return "", err
	}
	key, err := up.Upload(ctx, archivePath)
	if err != nil {
		return "", err
	}
	a.logger.Info("archive uploaded", "key", key)
	return key, nil
}

// History returns the most recent recorded runs, newest first.
func (a *App) History(limit int) ([]*history.Run, error) {
	return a.hist.ListRuns(limit)
}

// Close releases the run-history database and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.hist.Close(); err != nil {
		firstErr = fmt.Errorf("closing run history: %w", err)
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}
