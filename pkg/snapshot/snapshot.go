// Package snapshot round-trips the database file through external blob
// storage as a zip archive: restore before the run, archive after. This is
// the only cross-run shared resource; concurrent runs are not supported
// (no run-level lock exists), so the deployment layer must schedule runs
// single-flight.
package snapshot

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStorage is the blob-store seam. The production implementation is
// S3Storage; tests use an in-memory map.
type ObjectStorage interface {
	Download(ctx context.Context, key string, w io.Writer) error
	Upload(ctx context.Context, key string, r io.Reader) error
}

// Syncer restores and archives one database file as {dbFile}.zip.
type Syncer struct {
	storage ObjectStorage
	dbFile  string
}

// NewSyncer creates a syncer for the given database filename.
func NewSyncer(storage ObjectStorage, dbFile string) *Syncer {
	return &Syncer{storage: storage, dbFile: dbFile}
}

// Key returns the blob key the snapshot lives under.
func (s *Syncer) Key() string {
	return s.dbFile + ".zip"
}

// Restore downloads the snapshot archive and extracts it into workdir.
// A download or extraction failure propagates; the caller treats it as a
// hard run failure.
func (s *Syncer) Restore(ctx context.Context, workdir string) error {
	zipPath := filepath.Join(workdir, s.Key())

	f, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", zipPath, err)
	}
	if err := s.storage.Download(ctx, s.Key(), f); err != nil {
		_ = f.Close()
		return fmt.Errorf("download snapshot %s: %w", s.Key(), err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := extractZip(zipPath, workdir); err != nil {
		return fmt.Errorf("extract snapshot: %w", err)
	}

	log.Printf("Restored database snapshot %s into %s", s.Key(), workdir)
	return nil
}

// Archive zips the database file and uploads it back to blob storage.
func (s *Syncer) Archive(ctx context.Context, workdir string) error {
	zipPath := filepath.Join(workdir, s.Key())

	if err := writeZip(zipPath, filepath.Join(workdir, s.dbFile), s.dbFile); err != nil {
		return fmt.Errorf("zip database: %w", err)
	}

	f, err := os.Open(zipPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", zipPath, err)
	}
	defer f.Close()

	if err := s.storage.Upload(ctx, s.Key(), f); err != nil {
		return fmt.Errorf("upload snapshot %s: %w", s.Key(), err)
	}

	log.Printf("Archived database snapshot to %s", s.Key())
	return nil
}

// extractZip extracts every entry of the archive into destDir, rejecting
// entries that would escape it.
func extractZip(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, entry := range r.File {
		name := filepath.Clean(entry.Name)
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return fmt.Errorf("archive entry escapes destination: %s", entry.Name)
		}

		src, err := entry.Open()
		if err != nil {
			return err
		}

		destPath := filepath.Join(destDir, name)
		dest, err := os.Create(destPath)
		if err != nil {
			_ = src.Close()
			return err
		}

		_, err = io.Copy(dest, src)
		_ = src.Close()
		if cerr := dest.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// writeZip creates a deflate-compressed archive at zipPath containing the
// single file srcPath stored under arcName.
func writeZip(zipPath, srcPath, arcName string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer out.Close()

	w := zip.NewWriter(out)

	entry, err := w.Create(arcName)
	if err != nil {
		return err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	if _, err := io.Copy(entry, src); err != nil {
		return err
	}

	if err := w.Close(); err != nil {
		return err
	}
	return out.Close()
}
