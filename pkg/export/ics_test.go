package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteICS(t *testing.T) {
	events := []CalendarEvent{
		{
			EventID:   1,
			Title:     "Team Meeting; Q1, kickoff",
			StartDate: time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC),
			EndDate:   time.Date(2024, 1, 15, 15, 30, 0, 0, time.UTC),
			Location:  "Conference Room A",
			Notes:     "Agenda:\nreview goals",
			URL:       "https://example.com/meeting",
		},
		{
			EventID:   2,
			Title:     "Birthday",
			StartDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			AllDay:    true,
		},
	}

	path := filepath.Join(t.TempDir(), "calendar.ics")
	if err := WriteICS(events, path, "Test Calendar"); err != nil {
		t.Fatalf("WriteICS() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	if !strings.HasPrefix(out, "BEGIN:VCALENDAR\r\nVERSION:2.0") {
		t.Error("output should start with the VCALENDAR envelope, CRLF separated")
	}
	if !strings.HasSuffix(out, "END:VCALENDAR") {
		t.Error("output should end with END:VCALENDAR")
	}
	if got := strings.Count(out, "BEGIN:VEVENT"); got != 2 {
		t.Errorf("BEGIN:VEVENT count = %d, want 2", got)
	}

	for _, want := range []string{
		"X-WR-CALNAME:Test Calendar",
		"UID:orange-1@backup",
		"DTSTART:20240115T143000",
		"DTEND:20240115T153000",
		"SUMMARY:Team Meeting\\; Q1\\, kickoff",
		"LOCATION:Conference Room A",
		"DESCRIPTION:Agenda:\\nreview goals",
		"URL:https://example.com/meeting",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("iCalendar output missing %q", want)
		}
	}
}

func TestWriteICSAllDay(t *testing.T) {
	events := []CalendarEvent{{
		EventID:   7,
		Title:     "Holiday",
		StartDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.Local),
		AllDay:    true,
	}}

	path := filepath.Join(t.TempDir(), "allday.ics")
	if err := WriteICS(events, path, "Holidays"); err != nil {
		t.Fatalf("WriteICS() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	if !strings.Contains(out, "DTSTART;VALUE=DATE:20240115") {
		t.Error("all-day event should use a DATE value for DTSTART")
	}
	// an all-day event without an explicit end spans exactly one day
	if !strings.Contains(out, "DTEND;VALUE=DATE:20240116") {
		t.Error("all-day event should default DTEND to the following day")
	}
	if strings.Contains(out, "DTSTART:2024") {
		t.Error("all-day event should not carry a timed DTSTART")
	}
}

func TestWriteICSEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.ics")
	if err := WriteICS(nil, path, "Empty"); err != nil {
		t.Fatalf("WriteICS() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "BEGIN:VEVENT") {
		t.Error("empty export should contain no VEVENT blocks")
	}
	if !strings.Contains(out, "BEGIN:VCALENDAR") {
		t.Error("empty export should still carry the VCALENDAR envelope")
	}
}

func TestEscapeICS(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a;b", "a\\;b"},
		{"a,b", "a\\,b"},
		{"a\nb", "a\\nb"},
		{`a\b`, `a\\b`},
	}
	for _, tt := range tests {
		if got := escapeICS(tt.in); got != tt.want {
			t.Errorf("escapeICS(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
