package backup

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/apex/log"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// File is one row of the Manifest.db Files table: a (domain, path)
// pair mapped to the content-hash fileID under which its bytes are
// stored, plus the decoded per-file metadata.
type File struct {
	FileID       string   `json:"file_id"`
	Domain       string   `json:"domain"`
	RelativePath string   `json:"relative_path"`
	Flags        int64    `json:"flags"`
	Metadata     Metadata `json:"metadata"`
}

// FullPath is the domain-qualified logical path of the file.
func (f *File) FullPath() string {
	return f.Domain + "/" + f.RelativePath
}

// Name is the last element of the file's relative path.
func (f *File) Name() string {
	return filepath.Base(f.RelativePath)
}

// IsDirectory reports whether the manifest entry describes a directory.
func (f *File) IsDirectory() bool {
	return f.Metadata.Mode&0o40000 != 0
}

// index opens Manifest.db on first use. Failure to open is a
// StoreCorruptError and is sticky for the life of the Backup.
func (b *Backup) index() (*gorm.DB, error) {
	b.idxOnce.Do(func() {
		db, err := gorm.Open(sqlite.Open(filepath.Join(b.Path, "Manifest.db")), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			b.idxErr = &StoreCorruptError{Path: b.Path, Err: fmt.Errorf("failed to open Manifest.db: %w", err)}
			return
		}
		b.idx = db
	})
	return b.idx, b.idxErr
}

// Domains returns the distinct domain names present in the manifest,
// in lexical order.
func (b *Backup) Domains() ([]string, error) {
	idx, err := b.index()
	if err != nil {
		return nil, err
	}
	var domains []string
	if err := idx.Raw("SELECT DISTINCT domain FROM Files ORDER BY domain").Scan(&domains).Error; err != nil {
		return nil, &StoreCorruptError{Path: b.Path, Err: fmt.Errorf("failed to list domains: %w", err)}
	}
	return domains, nil
}

// Walk streams the manifest entries matching every supplied predicate
// to fn, one row at a time, without materializing the result set:
// domain is an exact match, pathSubstring a substring match on the
// relative path. Empty predicates match everything. A non-nil error
// from fn stops the walk and is returned as-is.
func (b *Backup) Walk(domain, pathSubstring string, fn func(*File) error) error {
	idx, err := b.index()
	if err != nil {
		return err
	}

	query := "SELECT fileID, domain, relativePath, flags, file FROM Files"
	var conds []string
	var args []any
	if domain != "" {
		conds = append(conds, "domain = ?")
		args = append(args, domain)
	}
	if pathSubstring != "" {
		conds = append(conds, "relativePath LIKE ?")
		args = append(args, "%"+pathSubstring+"%")
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	rows, err := idx.Raw(query, args...).Rows()
	if err != nil {
		return &StoreCorruptError{Path: b.Path, Err: fmt.Errorf("failed to query manifest: %w", err)}
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			log.WithError(err).Debug("skipping unparseable manifest row")
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return &StoreCorruptError{Path: b.Path, Err: fmt.Errorf("failed to read manifest rows: %w", err)}
	}
	return nil
}

// List returns the manifest entries matching the Walk predicates as a
// slice. No matches is an empty slice, not an error.
func (b *Backup) List(domain, pathSubstring string) ([]File, error) {
	var files []File
	if err := b.Walk(domain, pathSubstring, func(f *File) error {
		files = append(files, *f)
		return nil
	}); err != nil {
		return nil, err
	}
	return files, nil
}

// Get looks a single manifest entry up by fileID. Returns ErrNotFound
// when no row matches. If the manifest holds duplicate rows for an id
// the first in rowid order wins.
func (b *Backup) Get(fileID string) (*File, error) {
	idx, err := b.index()
	if err != nil {
		return nil, err
	}
	rows, err := idx.Raw("SELECT fileID, domain, relativePath, flags, file FROM Files WHERE fileID = ? LIMIT 1", fileID).Rows()
	if err != nil {
		return nil, &StoreCorruptError{Path: b.Path, Err: fmt.Errorf("failed to query manifest: %w", err)}
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, &StoreCorruptError{Path: b.Path, Err: err}
		}
		return nil, ErrNotFound
	}
	return scanFile(rows)
}

func scanFile(rows *sql.Rows) (*File, error) {
	var (
		f    File
		path sql.NullString
		flag sql.NullInt64
		blob []byte
	)
	if err := rows.Scan(&f.FileID, &f.Domain, &path, &flag, &blob); err != nil {
		return nil, err
	}
	f.RelativePath = path.String
	f.Flags = flag.Int64
	if len(blob) > 0 {
		md, err := decodeMetadata(blob)
		if err != nil {
			// Malformed metadata degrades to zero values; the entry
			// itself is still usable for lookup and extraction.
			log.WithError(err).WithField("fileID", f.FileID).Debug("failed to decode file metadata")
		}
		f.Metadata = md
	}
	return &f, nil
}
