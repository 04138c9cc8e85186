package credbak

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DefaultMaxFileSize is the global per-file size ceiling; anything larger
// is excluded before classification runs.
const DefaultMaxFileSize = 10 << 20 // 10 MiB

// SecretCandidate is a discovered secret-bearing file, produced by the
// Scanner and consumed once by the BackupWriter. Never mutated.
type SecretCandidate struct {
	AbsPath     string
	RelPath     string
	MatchReason RuleKind
	MatchValue  string
	Size        int64
	ModTime     time.Time
}

// ScanResult is the outcome of scanning one root: the ordered candidate
// sequence plus any per-file traversal errors. Traversal errors never
// abort a scan; they accumulate here.
type ScanResult struct {
	Root       string
	Candidates []SecretCandidate
	Errors     []EntryError
}

// homeCredentialPaths are well-known credential locations scanned for the
// home bucket, relative to the home directory. The home bucket deliberately
// checks this fixed list instead of walking the whole home tree.
var homeCredentialPaths = []string{
	".aws/credentials",
	".aws/config",
	".azure/credentials",
	".gcp/credentials",
	".docker/config.json",
	".kube/config",
	".npmrc",
	".yarnrc",
	".gitconfig",
	".netrc",
	".pgpass",
	".my.cnf",
	".boto",
	".s3cfg",
	".vault-token",
	".ssh/config",
	".ssh/known_hosts",
	".ssh/authorized_keys",
}

// Scanner walks directory trees and applies the classifier to every
// regular file. Scans perform no mutation of source state and can be
// re-run deterministically against an unchanged tree.
type Scanner struct {
	catalog     *Catalog
	classifier  *Classifier
	maxFileSize int64
	logger      Logger
}

// NewScanner creates a Scanner. maxFileSize bounds the per-file size;
// zero or negative selects DefaultMaxFileSize.
func NewScanner(catalog *Catalog, classifier *Classifier, maxFileSize int64, logger Logger) *Scanner {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Scanner{
		catalog:     catalog,
		classifier:  classifier,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// ScanTree walks root depth-first, directories in lexical order, and
// returns every file the classifier matches. The root must exist; a
// missing root is a structural error and fails the scan outright.
// Individual unreadable entries are recorded and skipped.
func (s *Scanner) ScanTree(root string) (*ScanResult, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("scan root: %w", err)
	}

	result := &ScanResult{Root: root}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, EntryError{Path: path, Error: err.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && s.catalog.SkipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		// Symlinks, devices and other irregular entries are excluded
		// unconditionally.
		if !d.Type().IsRegular() {
			return nil
		}
		if s.catalog.SkipFile(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, EntryError{Path: path, Error: err.Error()})
			return nil
		}
		if info.Size() > s.maxFileSize {
			return nil
		}

		match, err := s.classifier.Classify(path, info.Size())
		if err != nil {
			result.Errors = append(result.Errors, EntryError{Path: path, Error: err.Error()})
			return nil
		}
		if match == nil {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			result.Errors = append(result.Errors, EntryError{Path: path, Error: err.Error()})
			return nil
		}

		s.logger.Debug("candidate found", "path", rel, "reason", match.Kind)
		result.Candidates = append(result.Candidates, SecretCandidate{
			AbsPath:     path,
			RelPath:     rel,
			MatchReason: match.Kind,
			MatchValue:  match.Value,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return result, nil
}

// ScanHome checks the fixed list of well-known credential locations under
// homeDir. Files that exist are always included; the catalog only refines
// the recorded match reason. Directories on the list are skipped.
func (s *Scanner) ScanHome(homeDir string) (*ScanResult, error) {
	if _, err := os.Stat(homeDir); err != nil {
		return nil, fmt.Errorf("home directory: %w", err)
	}

	result := &ScanResult{Root: homeDir}
	for _, rel := range homeCredentialPaths {
		abs := filepath.Join(homeDir, filepath.FromSlash(rel))
		info, err := os.Lstat(abs)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			result.Errors = append(result.Errors, EntryError{Path: abs, Error: err.Error()})
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if info.Size() > s.maxFileSize {
			continue
		}
		result.Candidates = append(result.Candidates, s.candidateFor(abs, rel, info))
	}
	return result, nil
}

// ScanSSH includes every regular file under sshDir, matching the
// wholesale treatment SSH directories get: everything in there is key
// material or key-adjacent configuration.
func (s *Scanner) ScanSSH(sshDir string) (*ScanResult, error) {
	if _, err := os.Stat(sshDir); err != nil {
		return nil, fmt.Errorf("ssh directory: %w", err)
	}

	result := &ScanResult{Root: sshDir}
	err := filepath.WalkDir(sshDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, EntryError{Path: path, Error: err.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, EntryError{Path: path, Error: err.Error()})
			return nil
		}
		if info.Size() > s.maxFileSize {
			return nil
		}
		rel, err := filepath.Rel(sshDir, path)
		if err != nil {
			result.Errors = append(result.Errors, EntryError{Path: path, Error: err.Error()})
			return nil
		}
		result.Candidates = append(result.Candidates, s.candidateFor(path, rel, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", sshDir, err)
	}
	return result, nil
}

// candidateFor builds a candidate for a file that is included regardless
// of classification (home list, ssh tree). The classifier still runs so
// the recorded reason is the most specific rule that applies; files no
// rule covers are recorded as a name match on their relative path.
func (s *Scanner) candidateFor(abs, rel string, info fs.FileInfo) SecretCandidate {
	reason := RuleName
	value := filepath.ToSlash(rel)
	if match, err := s.classifier.Classify(abs, info.Size()); err == nil && match != nil {
		reason = match.Kind
		value = match.Value
	}
	return SecretCandidate{
		AbsPath:     abs,
		RelPath:     rel,
		MatchReason: reason,
		MatchValue:  value,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
	}
}

// FindRepositories returns the immediate subdirectories of reposDir that
// contain a .git marker, sorted by name. Each one becomes an independent
// bucket. A missing reposDir is a structural error.
func FindRepositories(reposDir string) ([]string, error) {
	entries, err := os.ReadDir(reposDir)
	if err != nil {
		return nil, fmt.Errorf("reading repositories directory: %w", err)
	}

	var repos []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		marker := filepath.Join(reposDir, entry.Name(), ".git")
		if _, err := os.Stat(marker); err == nil {
			repos = append(repos, filepath.Join(reposDir, entry.Name()))
		}
	}
	sort.Strings(repos)
	return repos, nil
}
