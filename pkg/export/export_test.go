package export

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blacktop/go-plist"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/CannonJunior/orange/pkg/backup"
)

func openFixtureDB(t *testing.T, path string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open fixture database %s: %v", path, err)
	}
	return db
}

func closeFixtureDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("failed to close fixture database: %v", err)
	}
}

func exec(t *testing.T, db *gorm.DB, sql string, args ...any) {
	t.Helper()
	if err := db.Exec(sql, args...).Error; err != nil {
		t.Fatalf("fixture statement failed: %v\n%s", err, sql)
	}
}

// buildDomainBackup creates a backup directory whose content store
// holds one HomeDomain database at relPath, with its schema and rows
// produced by build. The fileID is the manifest-style SHA1 of the
// domain-qualified path.
func buildDomainBackup(t *testing.T, relPath string, build func(t *testing.T, db *gorm.DB)) *backup.Backup {
	t.Helper()
	dir := t.TempDir()

	sum := sha1.Sum([]byte("HomeDomain-" + relPath))
	fileID := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(filepath.Join(dir, fileID[:2]), 0o755); err != nil {
		t.Fatal(err)
	}
	db := openFixtureDB(t, filepath.Join(dir, fileID[:2], fileID))
	build(t, db)
	closeFixtureDB(t, db)

	writeBackupScaffold(t, dir, func(idx *gorm.DB) {
		exec(t, idx, "INSERT INTO Files (fileID, domain, relativePath, flags, file) VALUES (?, ?, ?, ?, ?)",
			fileID, "HomeDomain", relPath, 1, []byte{})
	})

	b, err := backup.Open(dir)
	if err != nil {
		t.Fatalf("failed to open fixture backup: %v", err)
	}
	return b
}

// emptyBackup creates a valid backup whose manifest tracks no files.
func emptyBackup(t *testing.T) *backup.Backup {
	t.Helper()
	dir := t.TempDir()
	writeBackupScaffold(t, dir, func(*gorm.DB) {})
	b, err := backup.Open(dir)
	if err != nil {
		t.Fatalf("failed to open fixture backup: %v", err)
	}
	return b
}

func writeBackupScaffold(t *testing.T, dir string, seed func(idx *gorm.DB)) {
	t.Helper()
	for name, v := range map[string]any{
		"Manifest.plist": &backup.Manifest{Version: "10.0"},
		"Info.plist":     &backup.Info{DeviceName: "Test iPhone", ProductVersion: "17.2.1"},
	} {
		data, err := plist.Marshal(v, plist.BinaryFormat)
		if err != nil {
			t.Fatalf("failed to marshal %s: %v", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	idx := openFixtureDB(t, filepath.Join(dir, "Manifest.db"))
	exec(t, idx, `CREATE TABLE Files (
		fileID TEXT,
		domain TEXT,
		relativePath TEXT,
		flags INTEGER,
		file BLOB
	)`)
	seed(idx)
	closeFixtureDB(t, idx)
}

func TestAppleTime(t *testing.T) {
	tests := []struct {
		name     string
		sec      float64
		wantUnix int64
		wantZero bool
	}{
		{"zero means absent", 0, 0, true},
		{"reference offset", 727267800, 1705575000, false},
		{"epoch boundary", 1, 978307201, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := appleTime(tt.sec)
			if got.IsZero() != tt.wantZero {
				t.Fatalf("appleTime(%v).IsZero() = %v, want %v", tt.sec, got.IsZero(), tt.wantZero)
			}
			if !tt.wantZero && got.Unix() != tt.wantUnix {
				t.Errorf("appleTime(%v).Unix() = %d, want %d", tt.sec, got.Unix(), tt.wantUnix)
			}
		})
	}

	t.Run("fractional seconds", func(t *testing.T) {
		got := appleTime(1.25)
		if got.Unix() != 978307201 {
			t.Errorf("Unix() = %d, want 978307201", got.Unix())
		}
		if got.Nanosecond() != 250000000 {
			t.Errorf("Nanosecond() = %d, want 250000000", got.Nanosecond())
		}
	})
}

func TestAppleTimeMessage(t *testing.T) {
	tests := []struct {
		name     string
		v        int64
		wantUnix int64
		wantZero bool
	}{
		{"zero means absent", 0, 0, true},
		{"nanosecond scale", 727267800000000000, 1705575000, false},
		{"second scale", 727267800, 1705575000, false},
		{"small legacy value", 400000000, 1378307200, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := appleTimeMessage(tt.v)
			if got.IsZero() != tt.wantZero {
				t.Fatalf("appleTimeMessage(%d).IsZero() = %v, want %v", tt.v, got.IsZero(), tt.wantZero)
			}
			if !tt.wantZero && got.Unix() != tt.wantUnix {
				t.Errorf("appleTimeMessage(%d).Unix() = %d, want %d", tt.v, got.Unix(), tt.wantUnix)
			}
		})
	}
}

func TestAppleTimestampMessageRoundtrip(t *testing.T) {
	ts := time.Unix(1705575000, 0)
	v := appleTimestampMessage(ts)
	if v != 727267800000000000 {
		t.Fatalf("appleTimestampMessage() = %d, want 727267800000000000", v)
	}
	if got := appleTimeMessage(v); !got.Equal(ts) {
		t.Errorf("roundtrip = %v, want %v", got, ts)
	}
}

func TestExtractionError(t *testing.T) {
	inner := fmt.Errorf("no such table")
	err := &ExtractionError{Domain: "messages", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("ExtractionError should unwrap to its cause")
	}
	if err.Error() != "failed to extract messages: no such table" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestDomainDatabaseNotFound(t *testing.T) {
	b := emptyBackup(t)
	e := NewMessageExtractor(b)

	_, err := e.Messages(MessageQuery{})
	var notFound *DomainDatabaseNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Messages() error = %v, want DomainDatabaseNotFoundError", err)
	}
	if notFound.Domain != "messages" {
		t.Errorf("Domain = %q, want messages", notFound.Domain)
	}

	// the failure is memoized; a second call reports the same error
	_, err2 := e.Conversations()
	if !errors.As(err2, &notFound) {
		t.Fatalf("Conversations() error = %v, want DomainDatabaseNotFoundError", err2)
	}
}
