// Package export materializes the per-domain databases inside an iOS
// backup (messages, contacts, calendar, notes), normalizes their rows
// into record values and writes them out as JSON, CSV, vCard,
// iCalendar or HTML.
package export

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/CannonJunior/orange/pkg/backup"
)

// appleEpochOffset is the seconds between the Unix epoch (1970-01-01)
// and the reference epoch used by iOS databases (2001-01-01).
const appleEpochOffset = 978307200

// nanosecondThreshold: message timestamps above this are
// nanosecond-scale and must be divided down to seconds first.
const nanosecondThreshold = 1_000_000_000_000

// ExtractionError means a domain database was materialized but could
// not be queried.
type ExtractionError struct {
	Domain string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s: %v", e.Domain, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// DomainDatabaseNotFoundError means none of a domain's candidate
// database paths resolved to an extractable file.
type DomainDatabaseNotFoundError struct {
	Domain     string
	Candidates []string
}

func (e *DomainDatabaseNotFoundError) Error() string {
	return fmt.Sprintf("no %s database found in backup (tried %s)",
		e.Domain, strings.Join(e.Candidates, ", "))
}

// appleTime converts seconds since the Apple reference epoch to a
// local time. Zero means "no value" and maps to the zero time, not to
// the epoch itself.
func appleTime(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec + appleEpochOffset)
	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}

// appleTimeMessage converts a message-table timestamp, which is
// nanoseconds since the reference epoch on modern iOS and plain
// seconds on older versions.
func appleTimeMessage(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	if v > nanosecondThreshold {
		sec := v / 1_000_000_000
		nsec := v % 1_000_000_000
		return time.Unix(sec+appleEpochOffset, nsec)
	}
	return time.Unix(v+appleEpochOffset, 0)
}

// appleTimestampMessage is the inverse of appleTimeMessage for query
// parameters, always producing the nanosecond scale.
func appleTimestampMessage(t time.Time) int64 {
	return (t.Unix() - appleEpochOffset) * 1_000_000_000
}

// domainDB lazily stages one domain database out of the backup and
// opens it. The materialization runs exactly once per instance, which
// is what makes an extractor single-goroutine safe without locks past
// the first call.
type domainDB struct {
	domain     string
	candidates []string

	once sync.Once
	path string
	db   *gorm.DB
	err  error
}

// open materializes the first resolvable candidate path and opens it
// read-only. Every call after the first returns the memoized result.
func (d *domainDB) open(b *backup.Backup) (*gorm.DB, error) {
	d.once.Do(func() {
		for _, rel := range d.candidates {
			staged, err := b.ExtractDatabase("HomeDomain", rel, "")
			if err != nil {
				if errors.Is(err, backup.ErrNotAvailable) {
					continue
				}
				d.err = err
				return
			}
			d.path = staged
			log.WithFields(log.Fields{
				"domain": d.domain,
				"db":     rel,
			}).Debug("materialized domain database")
			break
		}
		if d.path == "" {
			d.err = &DomainDatabaseNotFoundError{Domain: d.domain, Candidates: d.candidates}
			return
		}
		d.db, d.err = gorm.Open(sqlite.Open(d.path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if d.err != nil {
			d.err = &ExtractionError{Domain: d.domain, Err: d.err}
		}
	})
	return d.db, d.err
}

// Path returns the staged database location, or "" before first use.
// The staged copy is not cleaned up automatically; the temp files live
// until Close.
func (d *domainDB) Path() string {
	return d.path
}

// Close closes the staged database and removes its scratch directory.
// Safe to call before first use and more than once.
func (d *domainDB) Close() error {
	if d.db != nil {
		if sqlDB, err := d.db.DB(); err == nil {
			sqlDB.Close()
		}
		d.db = nil
	}
	if p := d.Path(); p != "" {
		d.path = ""
		return os.RemoveAll(filepath.Dir(p))
	}
	return nil
}
