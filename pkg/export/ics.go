package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
)

// WriteICS writes events as an iCalendar 2.0 file.
func WriteICS(events []CalendarEvent, path, calendarName string) error {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Orange//iOS Backup Export//EN",
		"X-WR-CALNAME:" + calendarName,
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
	}
	for _, e := range events {
		lines = append(lines, eventVEvent(e)...)
	}
	lines = append(lines, "END:VCALENDAR")

	if err := writeFile(path, []byte(strings.Join(lines, "\r\n"))); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"count": len(events),
		"path":  path,
	}).Info("wrote iCalendar export")
	return nil
}

func eventVEvent(e CalendarEvent) []string {
	lines := []string{
		"BEGIN:VEVENT",
		fmt.Sprintf("UID:orange-%d@backup", e.EventID),
		"DTSTAMP:" + time.Now().UTC().Format("20060102T150405Z"),
	}

	if e.AllDay {
		lines = append(lines, "DTSTART;VALUE=DATE:"+e.StartDate.Format("20060102"))
		end := e.EndDate
		if end.IsZero() {
			// all-day events without an explicit end span a single day
			end = e.StartDate.AddDate(0, 0, 1)
		}
		lines = append(lines, "DTEND;VALUE=DATE:"+end.Format("20060102"))
	} else {
		lines = append(lines, "DTSTART:"+e.StartDate.Format("20060102T150405"))
		if !e.EndDate.IsZero() {
			lines = append(lines, "DTEND:"+e.EndDate.Format("20060102T150405"))
		}
	}

	lines = append(lines, "SUMMARY:"+escapeICS(e.Title))
	if e.Location != "" {
		lines = append(lines, "LOCATION:"+escapeICS(e.Location))
	}
	if e.Notes != "" {
		lines = append(lines, "DESCRIPTION:"+escapeICS(e.Notes))
	}
	if e.URL != "" {
		lines = append(lines, "URL:"+e.URL)
	}
	if !e.CreatedDate.IsZero() {
		lines = append(lines, "CREATED:"+e.CreatedDate.UTC().Format("20060102T150405Z"))
	}
	if !e.ModifiedDate.IsZero() {
		lines = append(lines, "LAST-MODIFIED:"+e.ModifiedDate.UTC().Format("20060102T150405Z"))
	}

	lines = append(lines, "END:VEVENT")
	return lines
}

func escapeICS(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\n", "\\n",
	)
	return r.Replace(s)
}
