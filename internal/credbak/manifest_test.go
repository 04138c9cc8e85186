package credbak

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestBucketKind_Prefix(t *testing.T) {
	tests := []struct {
		kind BucketKind
		want string
	}{
		{BucketRepo, "repos"},
		{BucketHome, "home"},
		{BucketSSH, "ssh"},
	}
	for _, tt := range tests {
		if got := tt.kind.Prefix(); got != tt.want {
			t.Errorf("Prefix(%q) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestBucketManifest_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	manifest := &BucketManifest{
		Name:       "myrepo",
		Kind:       BucketRepo,
		SourceRoot: "/work/repos/myrepo",
		ScanStart:  ts,
		ScanEnd:    ts.Add(2 * time.Second),
		FileCount:  1,
		TotalBytes: 12,
		Status:     BucketCompletedWithErrors,
		Files: []BackupEntry{{
			RelativePath: ".env",
			SHA256:       "8663ce186ff46f074140a4d7becb670d2332b7ad8bc3bd43b3889fd3199489a3",
			SizeBytes:    12,
			SourceMtime:  ts,
			MatchReason:  RuleName,
			MatchValue:   ".env",
		}},
		Errors: []EntryError{{Path: "/work/repos/myrepo/locked.key", Error: "permission denied"}},
	}

	if err := WriteBucketManifest(dir, manifest); err != nil {
		t.Fatalf("WriteBucketManifest() error: %v", err)
	}

	got, err := ReadBucketManifest(dir)
	if err != nil {
		t.Fatalf("ReadBucketManifest() error: %v", err)
	}
	if !reflect.DeepEqual(got, manifest) {
		t.Errorf("manifest round trip:\ngot  %+v\nwant %+v", got, manifest)
	}
}

func TestReadBucketManifest_Missing(t *testing.T) {
	if _, err := ReadBucketManifest(t.TempDir()); err == nil {
		t.Error("ReadBucketManifest() on empty dir = nil error, want error")
	}
}

func TestWriteSummary_OverwritesPreviousRun(t *testing.T) {
	root := t.TempDir()
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	first := &BackupSummary{RunID: "run-1", RunStart: ts, RunEnd: ts, BackupRoot: root}
	if err := WriteSummary(root, first); err != nil {
		t.Fatalf("WriteSummary() error: %v", err)
	}

	second := &BackupSummary{
		RunID:      "run-2",
		RunStart:   ts.Add(time.Hour),
		RunEnd:     ts.Add(time.Hour + time.Minute),
		BackupRoot: root,
		TotalBytes: 42,
		Buckets: []BucketSummary{
			{Name: "home", Kind: BucketHome, FileCount: 3, TotalBytes: 42, Status: BucketCompleted},
		},
	}
	if err := WriteSummary(root, second); err != nil {
		t.Fatalf("WriteSummary() second error: %v", err)
	}

	got, err := ReadSummary(root)
	if err != nil {
		t.Fatalf("ReadSummary() error: %v", err)
	}
	if !reflect.DeepEqual(got, second) {
		t.Errorf("summary round trip:\ngot  %+v\nwant %+v", got, second)
	}
}

func TestBackupSummary_ErrorCount(t *testing.T) {
	s := &BackupSummary{Buckets: []BucketSummary{
		{Name: "a", ErrorCount: 2},
		{Name: "b", ErrorCount: 0},
		{Name: "c", ErrorCount: 1},
	}}
	if got := s.ErrorCount(); got != 3 {
		t.Errorf("ErrorCount() = %d, want 3", got)
	}
}

func TestWriteJSONAtomic_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	if err := WriteBucketManifest(dir, &BucketManifest{Name: "x", Kind: BucketSSH, Status: BucketCompleted}); err != nil {
		t.Fatalf("WriteBucketManifest() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
	if _, err := os.Stat(filepath.Join(dir, ManifestName)); err != nil {
		t.Errorf("manifest not written: %v", err)
	}
}
