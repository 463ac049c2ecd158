package backup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apex/log"
)

// Resolve maps a fileID to its physical path in the content store.
// Blobs live at <backup>/<fileID[0:2]>/<fileID>; very old stores kept
// them flat at <backup>/<fileID>. The second return is false when the
// blob is not physically present (sparse backups are normal).
func (b *Backup) Resolve(fileID string) (string, bool) {
	if len(fileID) < 2 {
		return "", false
	}
	p := filepath.Join(b.Path, fileID[:2], fileID)
	if _, err := os.Stat(p); err == nil {
		return p, true
	}
	p = filepath.Join(b.Path, fileID)
	if _, err := os.Stat(p); err == nil {
		return p, true
	}
	return "", false
}

// Extract copies the blob for fileID under dest and returns the
// written path. With preservePath the file lands at
// dest/<domain>/<relativePath>, otherwise at dest/<filename>. Parent
// directories are created as needed and an existing destination is
// overwritten. Returns ErrNotAvailable when the blob is absent from
// the store or the backup is encrypted.
func (b *Backup) Extract(fileID, dest string, preservePath bool) (string, error) {
	f, err := b.Get(fileID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.WithField("fileID", fileID).Warn("file not found in manifest")
			return "", ErrNotAvailable
		}
		return "", err
	}

	src, ok := b.Resolve(fileID)
	if !ok {
		log.WithFields(log.Fields{
			"fileID": fileID,
			"path":   f.FullPath(),
		}).Warn("backup blob not present in store")
		return "", ErrNotAvailable
	}

	if b.Manifest.IsEncrypted {
		log.WithField("path", f.FullPath()).Warn("cannot extract from encrypted backup")
		return "", ErrNotAvailable
	}

	var out string
	if preservePath {
		out = filepath.Join(dest, f.Domain, filepath.FromSlash(f.RelativePath))
	} else {
		out = filepath.Join(dest, f.Name())
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(out), err)
	}
	if err := copyFile(src, out); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", f.FullPath(), err)
	}

	log.WithFields(log.Fields{
		"src": f.FullPath(),
		"dst": out,
	}).Debug("extracted file")

	return out, nil
}

// ExtractDatabase stages the database at domain/relativePath under
// destDir (a fresh temp dir when empty) and returns the staged path.
// An exact relativePath match is preferred; otherwise the first
// substring match is used. Returns ErrNotAvailable when the manifest
// has no such file or its blob cannot be produced.
func (b *Backup) ExtractDatabase(domain, relativePath, destDir string) (string, error) {
	files, err := b.List(domain, relativePath)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		log.WithFields(log.Fields{
			"domain": domain,
			"path":   relativePath,
		}).Debug("database not found in manifest")
		return "", ErrNotAvailable
	}

	target := files[0]
	for _, f := range files {
		if f.RelativePath == relativePath {
			target = f
			break
		}
	}

	if destDir == "" {
		destDir, err = os.MkdirTemp("", "orange_backup_")
		if err != nil {
			return "", fmt.Errorf("failed to create staging dir: %w", err)
		}
	}
	return b.Extract(target.FileID, destDir, false)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
