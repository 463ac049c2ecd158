package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteMessagesHTML(t *testing.T) {
	day1 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.Local)
	day2 := time.Date(2024, 1, 16, 9, 30, 0, 0, time.Local)
	messages := []Message{
		{MessageID: 1, Text: "Hey, are we still on?", Date: day1, Direction: DirectionReceived},
		{MessageID: 2, Text: "Yes! <see> you at 3", Date: day1.Add(5 * time.Minute), Direction: DirectionSent},
		{MessageID: 3, Text: "", Date: day2, Direction: DirectionReceived, Attachments: []Attachment{{AttachmentID: 1}}},
	}

	path := filepath.Join(t.TempDir(), "messages.html")
	if err := WriteMessagesHTML(messages, path, "Chat with Alice"); err != nil {
		t.Fatalf("WriteMessagesHTML() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	// one divider per distinct calendar day
	if got := strings.Count(out, `class="date-divider"`); got != 2 {
		t.Errorf("date divider count = %d, want 2", got)
	}
	if got := strings.Count(out, `"message sent"`); got != 1 {
		t.Errorf("sent bubble count = %d, want 1", got)
	}
	if got := strings.Count(out, `"message received"`); got != 2 {
		t.Errorf("received bubble count = %d, want 2", got)
	}
	if !strings.Contains(out, "Yes! &lt;see&gt; you at 3") {
		t.Error("message text should be HTML-escaped")
	}
	if strings.Contains(out, "Yes! <see>") {
		t.Error("raw message text leaked into the page")
	}
	if !strings.Contains(out, "[No text]") {
		t.Error("empty message body should render a placeholder")
	}
	if !strings.Contains(out, "[1 attachment(s)]") {
		t.Error("attachment count should be rendered")
	}
	if !strings.Contains(out, "<title>Chat with Alice</title>") {
		t.Error("page title missing")
	}
}

func TestWriteMessagesHTMLEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.html")
	if err := WriteMessagesHTML(nil, path, "Messages"); err != nil {
		t.Fatalf("WriteMessagesHTML() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Exported 0 messages") {
		t.Error("empty export should still render the stats line")
	}
}

func TestWriteNotesHTML(t *testing.T) {
	notes := []Note{
		{
			NoteID:       1,
			Title:        "Shopping <List>",
			Content:      "Milk & Bread",
			FolderName:   "Personal",
			ModifiedDate: time.Date(2024, 1, 15, 12, 0, 0, 0, time.Local),
			IsPinned:     true,
		},
		{NoteID: 2, Title: "Secret", Content: "hidden", IsLocked: true},
	}

	path := filepath.Join(t.TempDir(), "notes.html")
	if err := WriteNotesHTML(notes, path, "Notes"); err != nil {
		t.Fatalf("WriteNotesHTML() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	if !strings.Contains(out, "Shopping &lt;List&gt;") {
		t.Error("note title should be HTML-escaped")
	}
	if !strings.Contains(out, "Milk &amp; Bread") {
		t.Error("note content should be HTML-escaped")
	}
	if got := strings.Count(out, "badge-pinned"); got != 2 { // css class + badge span
		t.Errorf("pinned badge occurrences = %d, want 2", got)
	}
	if got := strings.Count(out, "badge-locked"); got != 2 {
		t.Errorf("locked badge occurrences = %d, want 2", got)
	}
	if !strings.Contains(out, "Personal") {
		t.Error("folder name missing")
	}
	if !strings.Contains(out, "2024-01-15 12:00") {
		t.Error("modified date missing")
	}
}
