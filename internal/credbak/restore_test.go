package credbak

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// writeBackupTree produces a backup tree with one repo bucket, a home
// bucket and an ssh bucket, returning the backup root.
func writeBackupTree(t *testing.T) string {
	t.Helper()
	backupRoot := t.TempDir()
	writer := NewBackupWriter(backupRoot, NopLogger{})

	_, repoScan := scanFixture(t, map[string]string{
		".env":            "API_KEY=xyz\n",
		"config/app.yaml": "password: hunter2\n",
	})
	if _, err := writer.WriteBucket(BucketRepo, "myrepo", repoScan, time.Now(), time.Now()); err != nil {
		t.Fatalf("writing repo bucket: %v", err)
	}

	home := t.TempDir()
	mkTree(t, home, map[string]string{".netrc": "machine example.com\n"})
	homeScan, err := newTestScanner(t).ScanHome(home)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := writer.WriteBucket(BucketHome, "home", homeScan, time.Now(), time.Now()); err != nil {
		t.Fatalf("writing home bucket: %v", err)
	}

	ssh := t.TempDir()
	mkTree(t, ssh, map[string]string{"id_ed25519": "KEY\n", "config": "Host x\n"})
	sshScan, err := newTestScanner(t).ScanSSH(ssh)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := writer.WriteBucket(BucketSSH, "ssh", sshScan, time.Now(), time.Now()); err != nil {
		t.Fatalf("writing ssh bucket: %v", err)
	}

	return backupRoot
}

func TestRestoreEngine_ListBuckets(t *testing.T) {
	engine := NewRestoreEngine(writeBackupTree(t), NopLogger{})

	refs, err := engine.ListBuckets()
	if err != nil {
		t.Fatalf("ListBuckets() error: %v", err)
	}

	var ids []string
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	want := []string{"home", "repos/myrepo", "ssh"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("bucket IDs = %v, want %v", ids, want)
	}

	for _, ref := range refs {
		if ref.Status != BucketCompleted {
			t.Errorf("bucket %s status = %q, want completed", ref.ID, ref.Status)
		}
		if ref.FileCount == 0 {
			t.Errorf("bucket %s has no files", ref.ID)
		}
	}
}

func TestRestoreEngine_ListBucketsMissingRoot(t *testing.T) {
	engine := NewRestoreEngine(filepath.Join(t.TempDir(), "absent"), NopLogger{})
	if _, err := engine.ListBuckets(); err == nil {
		t.Error("ListBuckets() on missing root = nil error, want error")
	}
}

func TestRestoreEngine_RoundTrip(t *testing.T) {
	engine := NewRestoreEngine(writeBackupTree(t), NopLogger{})
	target := t.TempDir()

	report, err := engine.Restore("repos/myrepo", target, true)
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("Restore() errors: %v", report.Errors)
	}
	if !report.Verified {
		t.Error("report not marked verified")
	}
	if len(report.Restored) != 2 {
		t.Fatalf("Restored = %v, want 2 entries", report.Restored)
	}

	data, err := os.ReadFile(filepath.Join(target, ".env"))
	if err != nil {
		t.Fatalf("reading restored file: %v", err)
	}
	if string(data) != "API_KEY=xyz\n" {
		t.Errorf("restored bytes = %q", data)
	}
	if _, err := os.Stat(filepath.Join(target, "config", "app.yaml")); err != nil {
		t.Errorf("nested restore missing: %v", err)
	}
}

func TestRestoreEngine_NonDestructive(t *testing.T) {
	engine := NewRestoreEngine(writeBackupTree(t), NopLogger{})
	target := t.TempDir()

	// Pre-existing unrelated file must survive; pre-existing file at a
	// manifest path is overwritten.
	mkTree(t, target, map[string]string{
		"foo.txt": "keep me\n",
		".env":    "STALE=1\n",
	})

	if _, err := engine.Restore("repos/myrepo", target, true); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}

	keep, err := os.ReadFile(filepath.Join(target, "foo.txt"))
	if err != nil {
		t.Fatalf("unrelated file gone: %v", err)
	}
	if string(keep) != "keep me\n" {
		t.Errorf("unrelated file rewritten: %q", keep)
	}

	overwritten, err := os.ReadFile(filepath.Join(target, ".env"))
	if err != nil {
		t.Fatal(err)
	}
	if string(overwritten) != "API_KEY=xyz\n" {
		t.Errorf("manifest path not overwritten: %q", overwritten)
	}
}

func TestRestoreEngine_UnknownBucket(t *testing.T) {
	engine := NewRestoreEngine(writeBackupTree(t), NopLogger{})
	target := t.TempDir()

	if _, err := engine.Restore("repos/nope", target, true); err == nil {
		t.Fatal("Restore() of unknown bucket = nil error, want error")
	}

	// The not-found failure happens before any mutation.
	entries, err := os.ReadDir(target)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("target dir mutated: %v", entries)
	}
}

func TestRestoreEngine_RejectsEscapingIDs(t *testing.T) {
	engine := NewRestoreEngine(writeBackupTree(t), NopLogger{})

	for _, id := range []string{"repos/../home", "repos/..", "../etc", "metadata", ""} {
		t.Run("id "+id, func(t *testing.T) {
			if _, err := engine.Restore(id, t.TempDir(), false); err == nil {
				t.Errorf("Restore(%q) = nil error, want error", id)
			}
		})
	}
}

func TestRestoreEngine_VerifyDetectsCorruption(t *testing.T) {
	backupRoot := writeBackupTree(t)
	engine := NewRestoreEngine(backupRoot, NopLogger{})

	clean, err := engine.Verify()
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !clean.OK() {
		t.Fatalf("fresh tree not clean: %v", clean.Errors)
	}
	if clean.Buckets != 3 || clean.FilesChecked != 5 {
		t.Errorf("Buckets = %d FilesChecked = %d, want 3 and 5", clean.Buckets, clean.FilesChecked)
	}

	// Corrupt one payload and delete another.
	envCopy := filepath.Join(backupRoot, "repos", "myrepo", ".env")
	if err := os.WriteFile(envCopy, []byte("tampered\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(backupRoot, "ssh", "config")); err != nil {
		t.Fatal(err)
	}

	dirty, err := engine.Verify()
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if dirty.OK() {
		t.Fatal("corruption not detected")
	}
	if len(dirty.Errors) != 2 {
		t.Errorf("Errors = %v, want 2", dirty.Errors)
	}
}

func TestRestoreEngine_VerifyFlagOff(t *testing.T) {
	backupRoot := writeBackupTree(t)

	// Tamper with a payload and fix up the entry size so only the digest
	// is wrong; with verify off the restore succeeds anyway.
	envCopy := filepath.Join(backupRoot, "repos", "myrepo", ".env")
	if err := os.WriteFile(envCopy, []byte("TAMPERED=1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	engine := NewRestoreEngine(backupRoot, NopLogger{})
	target := t.TempDir()

	report, err := engine.Restore("repos/myrepo", target, false)
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if len(report.Errors) != 0 {
		t.Errorf("verify-off restore reported errors: %v", report.Errors)
	}
	if report.Verified {
		t.Error("report marked verified with verify off")
	}

	withVerify, err := engine.Restore("repos/myrepo", t.TempDir(), true)
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if len(withVerify.Errors) != 1 {
		t.Errorf("verify-on restore errors = %v, want 1 mismatch", withVerify.Errors)
	}
}
