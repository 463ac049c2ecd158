package export

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/apex/log"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"gorm.io/gorm"

	"github.com/CannonJunior/orange/pkg/backup"
)

// notesDatabases are the candidate paths for the Notes store, newest
// layout first. The physical path moved across iOS generations.
var notesDatabases = []string{
	"Library/Notes/notes.sqlite",
	"Library/Notes/NotesV7.storedata",
	"Library/Notes/NotesV6.storedata",
	"Library/Notes/NotesV4.storedata",
}

// NotesSchema is the detected table layout of a materialized Notes
// database.
type NotesSchema string

const (
	SchemaIOS9Plus NotesSchema = "ios9plus" // Core Data object-graph layout
	SchemaLegacy   NotesSchema = "legacy"   // plain note/note_body tables
	SchemaUnknown  NotesSchema = "unknown"
)

// NoteQuery filters a notes scan.
type NoteQuery struct {
	FolderID int64  // restrict to one folder (ios9plus only)
	Search   string // substring match on title/snippet
	Limit    int
}

// NoteStatistics are aggregate counts over the notes database.
type NoteStatistics struct {
	TotalNotes   int64     `json:"total_notes"`
	TotalFolders int       `json:"total_folders"`
	PinnedNotes  int64     `json:"pinned_notes"`
	LockedNotes  int64     `json:"locked_notes"`
	FirstNote    time.Time `json:"first_note,omitzero"`
	LastNote     time.Time `json:"last_note,omitzero"`
}

// NoteExtractor reads the Notes database out of a backup. The schema
// is probed once per materialized database, not per row. Not safe for
// concurrent use.
type NoteExtractor struct {
	b  *backup.Backup
	db domainDB

	refOnce  sync.Once
	schema   NotesSchema
	folders  map[int64]string
	accounts map[int64]string
}

// NewNoteExtractor returns an extractor for b.
func NewNoteExtractor(b *backup.Backup) *NoteExtractor {
	return &NoteExtractor{
		b:        b,
		db:       domainDB{domain: "notes", candidates: notesDatabases},
		folders:  make(map[int64]string),
		accounts: make(map[int64]string),
	}
}

// Close releases the staged database copy.
func (e *NoteExtractor) Close() error {
	return e.db.Close()
}

func (e *NoteExtractor) ensure() (*gorm.DB, error) {
	db, err := e.db.open(e.b)
	if err != nil {
		return nil, err
	}
	e.refOnce.Do(func() {
		e.schema = detectSchema(db)
		log.WithField("schema", e.schema).Debug("detected notes schema")
		if e.schema == SchemaIOS9Plus {
			e.loadReferences(db)
		}
	})
	return db, nil
}

// detectSchema probes sqlite_master for the marker table of each known
// layout.
func detectSchema(db *gorm.DB) NotesSchema {
	if tableExists(db, "ZICCLOUDSYNCINGOBJECT") {
		return SchemaIOS9Plus
	}
	if tableExists(db, "note") {
		return SchemaLegacy
	}
	return SchemaUnknown
}

func tableExists(db *gorm.DB, name string) bool {
	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&count).Error; err != nil {
		return false
	}
	return count > 0
}

func (e *NoteExtractor) loadReferences(db *gorm.DB) {
	load := func(column string, into map[int64]string) {
		rows, err := db.Raw("SELECT Z_PK, " + column + " FROM ZICCLOUDSYNCINGOBJECT WHERE " + column + " IS NOT NULL").Rows()
		if err != nil {
			log.WithError(err).Debug("could not load notes references")
			return
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var val sql.NullString
			if err := rows.Scan(&id, &val); err != nil {
				continue
			}
			into[id] = val.String
		}
	}
	load("ZTITLE", e.folders)
	load("ZNAME", e.accounts)
}

// Schema reports the detected layout, materializing the database if
// needed.
func (e *NoteExtractor) Schema() (NotesSchema, error) {
	if _, err := e.ensure(); err != nil {
		return SchemaUnknown, err
	}
	return e.schema, nil
}

// Notes runs a filtered scan. An unknown schema yields an empty result
// set, not an error.
func (e *NoteExtractor) Notes(q NoteQuery) ([]Note, error) {
	db, err := e.ensure()
	if err != nil {
		return nil, err
	}
	switch e.schema {
	case SchemaIOS9Plus:
		return e.notesIOS9Plus(db, q)
	case SchemaLegacy:
		return e.notesLegacy(db, q)
	default:
		log.Warn("unknown notes database schema")
		return nil, nil
	}
}

func (e *NoteExtractor) notesIOS9Plus(db *gorm.DB, q NoteQuery) ([]Note, error) {
	query := `SELECT
		note.Z_PK, note.ZTITLE, note.ZSNIPPET,
		note.ZCREATIONDATE, note.ZMODIFICATIONDATE,
		note.ZFOLDER, note.ZACCOUNT, note.ZISPINNED,
		note.ZISPASSWORDPROTECTED, notedata.ZDATA
	FROM ZICCLOUDSYNCINGOBJECT note
	LEFT JOIN ZICNOTEDATA notedata ON note.ZNOTEDATA = notedata.Z_PK
	WHERE note.ZTITLE IS NOT NULL`

	var args []any
	if q.FolderID != 0 {
		query += " AND note.ZFOLDER = ?"
		args = append(args, q.FolderID)
	}
	if q.Search != "" {
		query += " AND (note.ZTITLE LIKE ? OR note.ZSNIPPET LIKE ?)"
		pat := "%" + q.Search + "%"
		args = append(args, pat, pat)
	}
	query += " ORDER BY note.ZMODIFICATIONDATE DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := db.Raw(query, args...).Rows()
	if err != nil {
		return nil, &ExtractionError{Domain: "notes", Err: err}
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var (
			id                int64
			title, snippet    sql.NullString
			created, modified sql.NullFloat64
			folderID, acctID  sql.NullInt64
			pinned, locked    sql.NullInt64
			data              []byte
		)
		if err := rows.Scan(&id, &title, &snippet, &created, &modified,
			&folderID, &acctID, &pinned, &locked, &data); err != nil {
			log.WithError(err).Debug("skipping unparseable note row")
			continue
		}

		content := snippet.String
		if len(data) > 0 {
			content = recoverNoteText(data)
		}
		n := Note{
			NoteID:       id,
			Title:        title.String,
			Content:      content,
			CreatedDate:  appleTime(created.Float64),
			ModifiedDate: appleTime(modified.Float64),
			FolderName:   e.folders[folderID.Int64],
			FolderID:     folderID.Int64,
			IsPinned:     pinned.Int64 != 0,
			IsLocked:     locked.Int64 != 0,
			AccountName:  e.accounts[acctID.Int64],
		}
		if n.Title == "" {
			n.Title = "Untitled"
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (e *NoteExtractor) notesLegacy(db *gorm.DB, q NoteQuery) ([]Note, error) {
	query := `SELECT
		note.ROWID, note.title, note_body.content,
		note.creation_date, note.modification_date
	FROM note
	LEFT JOIN note_body ON note.ROWID = note_body.note_id`

	var args []any
	if q.Search != "" {
		query += " WHERE (note.title LIKE ? OR note_body.content LIKE ?)"
		pat := "%" + q.Search + "%"
		args = append(args, pat, pat)
	}
	query += " ORDER BY note.modification_date DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := db.Raw(query, args...).Rows()
	if err != nil {
		return nil, &ExtractionError{Domain: "notes", Err: err}
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var (
			id                int64
			title, content    sql.NullString
			created, modified sql.NullFloat64
		)
		if err := rows.Scan(&id, &title, &content, &created, &modified); err != nil {
			log.WithError(err).Debug("skipping unparseable note row")
			continue
		}
		n := Note{
			NoteID:       id,
			Title:        title.String,
			Content:      content.String,
			CreatedDate:  appleTime(created.Float64),
			ModifiedDate: appleTime(modified.Float64),
		}
		if n.Title == "" {
			n.Title = "Untitled"
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

var blankRuns = regexp.MustCompile(`\n{3,}`)
var spaceRuns = regexp.MustCompile(`[ \t]+`)

// recoverNoteText pulls readable text out of a note body blob. Modern
// notes store a compressed rich-text object graph; this is a
// best-effort text recovery, not a structural parse. Decompression
// tries gzip framing then raw deflate, then non-printable bytes are
// dropped and long blank runs collapsed.
func recoverNoteText(data []byte) string {
	if gz, err := gzip.NewReader(bytes.NewReader(data)); err == nil {
		if out, err := io.ReadAll(gz); err == nil {
			data = out
		}
	} else {
		fr := flate.NewReader(bytes.NewReader(data))
		if out, err := io.ReadAll(fr); err == nil && len(out) > 0 {
			data = out
		}
		fr.Close()
	}

	var sb strings.Builder
	for _, r := range string(data) {
		if r == unicode.ReplacementChar {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			sb.WriteRune(r)
		}
	}
	text := blankRuns.ReplaceAllString(sb.String(), "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Folders lists note folders with their note counts.
func (e *NoteExtractor) Folders() ([]Folder, error) {
	db, err := e.ensure()
	if err != nil {
		return nil, err
	}

	var folders []Folder
	switch e.schema {
	case SchemaIOS9Plus:
		rows, err := db.Raw(`SELECT
			f.Z_PK, f.ZTITLE, COUNT(n.Z_PK)
		FROM ZICCLOUDSYNCINGOBJECT f
		LEFT JOIN ZICCLOUDSYNCINGOBJECT n ON n.ZFOLDER = f.Z_PK
		WHERE f.ZTITLE IS NOT NULL
		GROUP BY f.Z_PK
		ORDER BY f.ZTITLE`).Rows()
		if err != nil {
			return nil, &ExtractionError{Domain: "notes", Err: err}
		}
		defer rows.Close()
		for rows.Next() {
			var f Folder
			var title sql.NullString
			if err := rows.Scan(&f.FolderID, &title, &f.NoteCount); err != nil {
				continue
			}
			f.Title = title.String
			folders = append(folders, f)
		}
		return folders, rows.Err()
	case SchemaLegacy:
		if !tableExists(db, "NoteFolder") {
			return nil, nil
		}
		rows, err := db.Raw("SELECT ROWID, name FROM NoteFolder").Rows()
		if err != nil {
			return nil, &ExtractionError{Domain: "notes", Err: err}
		}
		defer rows.Close()
		for rows.Next() {
			var f Folder
			var title sql.NullString
			if err := rows.Scan(&f.FolderID, &title); err != nil {
				continue
			}
			f.Title = title.String
			folders = append(folders, f)
		}
		return folders, rows.Err()
	default:
		return nil, nil
	}
}

// Statistics computes aggregate counts via direct queries. TotalNotes
// counts the same rows an unfiltered Notes scan returns.
func (e *NoteExtractor) Statistics() (*NoteStatistics, error) {
	db, err := e.ensure()
	if err != nil {
		return nil, err
	}
	stats := &NoteStatistics{TotalFolders: len(e.folders)}

	switch e.schema {
	case SchemaIOS9Plus:
		if err := db.Raw("SELECT COUNT(*) FROM ZICCLOUDSYNCINGOBJECT WHERE ZTITLE IS NOT NULL").Scan(&stats.TotalNotes).Error; err != nil {
			return nil, &ExtractionError{Domain: "notes", Err: err}
		}
		if err := db.Raw("SELECT COUNT(*) FROM ZICCLOUDSYNCINGOBJECT WHERE ZISPINNED = 1").Scan(&stats.PinnedNotes).Error; err != nil {
			return nil, &ExtractionError{Domain: "notes", Err: err}
		}
		if err := db.Raw("SELECT COUNT(*) FROM ZICCLOUDSYNCINGOBJECT WHERE ZISPASSWORDPROTECTED = 1").Scan(&stats.LockedNotes).Error; err != nil {
			return nil, &ExtractionError{Domain: "notes", Err: err}
		}
		var first, last sql.NullFloat64
		row := db.Raw("SELECT MIN(ZCREATIONDATE), MAX(ZMODIFICATIONDATE) FROM ZICCLOUDSYNCINGOBJECT WHERE ZTITLE IS NOT NULL").Row()
		if err := row.Scan(&first, &last); err == nil {
			stats.FirstNote = appleTime(first.Float64)
			stats.LastNote = appleTime(last.Float64)
		}
	case SchemaLegacy:
		if err := db.Raw("SELECT COUNT(*) FROM note").Scan(&stats.TotalNotes).Error; err != nil {
			return nil, &ExtractionError{Domain: "notes", Err: err}
		}
	}
	return stats, nil
}
