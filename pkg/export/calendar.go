package export

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"gorm.io/gorm"

	"github.com/CannonJunior/orange/pkg/backup"
)

const calendarDatabase = "Library/Calendar/Calendar.sqlitedb"

// EventQuery filters a calendar scan.
type EventQuery struct {
	CalendarID int64     // restrict to one calendar
	After      time.Time // events starting at or after this time
	Before     time.Time // events starting at or before this time
	Search     string    // substring match on title/location
	Limit      int
}

// CalendarStatistics are aggregate counts over the calendar database.
type CalendarStatistics struct {
	TotalEvents    int64     `json:"total_events"`
	TotalCalendars int       `json:"total_calendars"`
	AllDayEvents   int64     `json:"all_day_events"`
	FirstEvent     time.Time `json:"first_event,omitzero"`
	LastEvent      time.Time `json:"last_event,omitzero"`
}

// CalendarExtractor reads the Calendar database out of a backup.
// Not safe for concurrent use.
type CalendarExtractor struct {
	b  *backup.Backup
	db domainDB

	refOnce   sync.Once
	calendars map[int64]string
}

// NewCalendarExtractor returns an extractor for b.
func NewCalendarExtractor(b *backup.Backup) *CalendarExtractor {
	return &CalendarExtractor{
		b:         b,
		db:        domainDB{domain: "calendar", candidates: []string{calendarDatabase}},
		calendars: make(map[int64]string),
	}
}

// Close releases the staged database copy.
func (e *CalendarExtractor) Close() error {
	return e.db.Close()
}

func (e *CalendarExtractor) ensure() (*gorm.DB, error) {
	db, err := e.db.open(e.b)
	if err != nil {
		return nil, err
	}
	e.refOnce.Do(func() {
		rows, err := db.Raw("SELECT ROWID, title FROM Calendar").Rows()
		if err != nil {
			log.WithError(err).Warn("could not load calendars")
			return
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var title sql.NullString
			if err := rows.Scan(&id, &title); err != nil {
				continue
			}
			e.calendars[id] = title.String
		}
		log.WithField("count", len(e.calendars)).Debug("loaded calendars")
	})
	return db, nil
}

// Events runs a filtered scan over CalendarItem in start-date order.
// Items without a summary or a start date are skipped.
func (e *CalendarExtractor) Events(q EventQuery) ([]CalendarEvent, error) {
	db, err := e.ensure()
	if err != nil {
		return nil, err
	}

	query := `SELECT
		ci.ROWID, ci.summary, ci.location, ci.description,
		ci.start_date, ci.end_date, ci.all_day, ci.calendar_id,
		ci.url, ci.creation_date, ci.last_modified
	FROM CalendarItem ci
	WHERE ci.summary IS NOT NULL`

	var args []any
	if q.CalendarID != 0 {
		query += " AND ci.calendar_id = ?"
		args = append(args, q.CalendarID)
	}
	if !q.After.IsZero() {
		query += " AND ci.start_date >= ?"
		args = append(args, float64(q.After.Unix()-appleEpochOffset))
	}
	if !q.Before.IsZero() {
		query += " AND ci.start_date <= ?"
		args = append(args, float64(q.Before.Unix()-appleEpochOffset))
	}
	if q.Search != "" {
		query += " AND (ci.summary LIKE ? OR ci.location LIKE ?)"
		pat := "%" + q.Search + "%"
		args = append(args, pat, pat)
	}
	query += " ORDER BY ci.start_date ASC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := db.Raw(query, args...).Rows()
	if err != nil {
		return nil, &ExtractionError{Domain: "calendar", Err: err}
	}
	defer rows.Close()

	var events []CalendarEvent
	for rows.Next() {
		ev, err := e.scanEvent(rows)
		if err != nil {
			log.WithError(err).Debug("skipping unparseable event row")
			continue
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}
	return events, rows.Err()
}

func (e *CalendarExtractor) scanEvent(rows *sql.Rows) (*CalendarEvent, error) {
	var (
		id                         int64
		summary, location, desc    sql.NullString
		start, end                 sql.NullFloat64
		allDay                     sql.NullInt64
		calendarID                 sql.NullInt64
		url                        sql.NullString
		created, modified          sql.NullFloat64
	)
	if err := rows.Scan(&id, &summary, &location, &desc, &start, &end,
		&allDay, &calendarID, &url, &created, &modified); err != nil {
		return nil, err
	}
	startDate := appleTime(start.Float64)
	if startDate.IsZero() {
		return nil, nil
	}
	return &CalendarEvent{
		EventID:      id,
		Title:        summary.String,
		StartDate:    startDate,
		EndDate:      appleTime(end.Float64),
		Location:     location.String,
		Notes:        desc.String,
		AllDay:       allDay.Int64 != 0,
		CalendarName: e.calendars[calendarID.Int64],
		CalendarID:   calendarID.Int64,
		URL:          url.String,
		CreatedDate:  appleTime(created.Float64),
		ModifiedDate: appleTime(modified.Float64),
	}, nil
}

// Calendars lists every calendar with its event count.
func (e *CalendarExtractor) Calendars() ([]Calendar, error) {
	db, err := e.ensure()
	if err != nil {
		return nil, err
	}
	rows, err := db.Raw(`SELECT
		c.ROWID, c.title, c.color, c.type, COUNT(ci.ROWID)
	FROM Calendar c
	LEFT JOIN CalendarItem ci ON c.ROWID = ci.calendar_id
	GROUP BY c.ROWID
	ORDER BY c.title`).Rows()
	if err != nil {
		return nil, &ExtractionError{Domain: "calendar", Err: err}
	}
	defer rows.Close()

	var cals []Calendar
	for rows.Next() {
		var c Calendar
		var title, color, typ sql.NullString
		if err := rows.Scan(&c.CalendarID, &title, &color, &typ, &c.EventCount); err != nil {
			continue
		}
		c.Title = title.String
		c.Color = color.String
		c.Type = typ.String
		cals = append(cals, c)
	}
	return cals, rows.Err()
}

// Statistics computes aggregate counts via direct queries. TotalEvents
// counts the same rows an unfiltered Events scan returns.
func (e *CalendarExtractor) Statistics() (*CalendarStatistics, error) {
	db, err := e.ensure()
	if err != nil {
		return nil, err
	}
	stats := &CalendarStatistics{TotalCalendars: len(e.calendars)}
	if err := db.Raw("SELECT COUNT(*) FROM CalendarItem WHERE summary IS NOT NULL").Scan(&stats.TotalEvents).Error; err != nil {
		return nil, &ExtractionError{Domain: "calendar", Err: err}
	}
	if err := db.Raw("SELECT COUNT(*) FROM CalendarItem WHERE all_day = 1").Scan(&stats.AllDayEvents).Error; err != nil {
		return nil, &ExtractionError{Domain: "calendar", Err: err}
	}
	var first, last sql.NullFloat64
	row := db.Raw("SELECT MIN(start_date), MAX(start_date) FROM CalendarItem WHERE summary IS NOT NULL").Row()
	if err := row.Scan(&first, &last); err == nil {
		stats.FirstEvent = appleTime(first.Float64)
		stats.LastEvent = appleTime(last.Float64)
	}
	return stats, nil
}
