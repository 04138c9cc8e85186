// Package archive packages a finished backup tree into a single archive
// file, optionally encrypted. It is a collaborator of the backup core:
// its only interface to the core is the backup root directory, and it
// never inspects individual entries.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
)

const (
	// Suffix of plaintext archives.
	PlainSuffix = ".tar.gz"
	// Suffix of passphrase-encrypted archives.
	EncryptedSuffix = ".tar.gz.age"
)

// Archiver builds and unpacks backup archives.
type Archiver struct{}

// New creates an Archiver.
func New() *Archiver {
	return &Archiver{}
}

// ArchiveName returns the archive filename for a run finishing at ts.
func ArchiveName(ts time.Time, encrypted bool) string {
	suffix := PlainSuffix
	if encrypted {
		suffix = EncryptedSuffix
	}
	return "credbak_" + ts.Format("20060102_150405") + suffix
}

// Create writes a gzipped tar of backupRoot to outPath. When passphrase
// is non-empty the stream is encrypted with age's scrypt-based
// passphrase encryption before hitting disk; plaintext never touches
// the output file. The write is atomic (temp file + rename).
func (a *Archiver) Create(backupRoot, outPath, passphrase string) error {
	if _, err := os.Stat(backupRoot); err != nil {
		return fmt.Errorf("backup root: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".tmp-*")
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

	if err := a.writeArchive(tmp, backupRoot, passphrase); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("renaming archive into place: %w", err)
	}
	success = true
	return nil
}

// writeArchive streams backupRoot as tar -> gzip -> (optional age) -> w.
func (a *Archiver) writeArchive(w io.Writer, backupRoot, passphrase string) error {
	var (
		ageWriter io.WriteCloser
		target    io.Writer = w
	)
	if passphrase != "" {
		recipient, err := age.NewScryptRecipient(passphrase)
		if err != nil {
			return fmt.Errorf("creating scrypt recipient: %w", err)
		}
		ageWriter, err = age.Encrypt(w, recipient)
		if err != nil {
			return fmt.Errorf("creating encrypted writer: %w", err)
		}
		target = ageWriter
	}

	gz := gzip.NewWriter(target)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(backupRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(backupRoot, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing header for %s: %w", rel, err)
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("archiving %s: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking backup tree: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalizing tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finalizing gzip: %w", err)
	}
	if ageWriter != nil {
		if err := ageWriter.Close(); err != nil {
			return fmt.Errorf("finalizing encryption: %w", err)
		}
	}
	return nil
}

// Extract unpacks the archive at archivePath into destDir. passphrase is
// required for encrypted archives and must be empty for plaintext ones;
// encryption is detected from the filename suffix.
func (a *Archiver) Extract(archivePath, destDir, passphrase string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(archivePath, EncryptedSuffix) {
		if passphrase == "" {
			return fmt.Errorf("archive is encrypted but no passphrase was provided")
		}
		identity, err := age.NewScryptIdentity(passphrase)
		if err != nil {
			return fmt.Errorf("creating scrypt identity: %w", err)
		}
		r, err = age.Decrypt(f, identity)
		if err != nil {
			return fmt.Errorf("decrypting archive: %w", err)
		}
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("reading gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		rel := filepath.FromSlash(hdr.Name)
		dst := filepath.Join(destDir, rel)
		// Reject entries that would escape the destination.
		if !strings.HasPrefix(dst, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", hdr.Name)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", rel, err)
		}

		out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fs.FileMode(hdr.Mode)&0777)
		if err != nil {
			return fmt.Errorf("creating %s: %w", rel, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("extracting %s: %w", rel, err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", rel, err)
		}
	}
	return nil
}
