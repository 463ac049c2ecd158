package export

import (
	"os"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/CannonJunior/orange/pkg/backup"
)

var (
	msgDay1 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	msgDay2 = time.Date(2024, 1, 16, 9, 30, 0, 0, time.UTC)
)

func newMessagesBackup(t *testing.T) *backup.Backup {
	t.Helper()
	return buildDomainBackup(t, smsDatabase, func(t *testing.T, db *gorm.DB) {
		exec(t, db, `CREATE TABLE handle (ROWID INTEGER PRIMARY KEY, id TEXT)`)
		exec(t, db, `CREATE TABLE chat (
			ROWID INTEGER PRIMARY KEY,
			chat_identifier TEXT,
			display_name TEXT,
			service_name TEXT
		)`)
		exec(t, db, `CREATE TABLE message (
			ROWID INTEGER PRIMARY KEY,
			text TEXT,
			date INTEGER,
			date_read INTEGER,
			date_delivered INTEGER,
			is_from_me INTEGER,
			is_read INTEGER,
			is_delivered INTEGER,
			service TEXT,
			subject TEXT,
			handle_id INTEGER
		)`)
		exec(t, db, `CREATE TABLE chat_message_join (chat_id INTEGER, message_id INTEGER, message_date INTEGER)`)
		exec(t, db, `CREATE TABLE attachment (
			ROWID INTEGER PRIMARY KEY,
			filename TEXT,
			mime_type TEXT,
			transfer_state INTEGER,
			total_bytes INTEGER
		)`)
		exec(t, db, `CREATE TABLE message_attachment_join (message_id INTEGER, attachment_id INTEGER)`)

		exec(t, db, "INSERT INTO handle VALUES (1, '+15551234567')")
		exec(t, db, "INSERT INTO handle VALUES (2, 'friend@example.com')")
		exec(t, db, "INSERT INTO chat VALUES (1, '+15551234567', 'Alice', 'iMessage')")
		exec(t, db, "INSERT INTO chat VALUES (2, 'friend@example.com', '', 'SMS')")

		// nanosecond-scale timestamps, the modern on-disk format
		t1 := appleTimestampMessage(msgDay1)
		t2 := appleTimestampMessage(msgDay1.Add(5 * time.Minute))
		t3 := appleTimestampMessage(msgDay2)

		exec(t, db, "INSERT INTO message VALUES (1, 'Hey, are we still on?', ?, ?, 0, 0, 1, 0, 'iMessage', NULL, 1)", t1, t2)
		exec(t, db, "INSERT INTO message VALUES (2, 'Yes, see you at 3', ?, 0, ?, 1, 0, 1, 'iMessage', NULL, 1)", t2, t2)
		exec(t, db, "INSERT INTO message VALUES (3, 'Photos from the trip', ?, 0, 0, 0, 0, 0, 'SMS', NULL, 2)", t3)
		// a legacy row stores plain seconds since the reference epoch
		exec(t, db, "INSERT INTO message VALUES (4, 'Old message', 400000000, 0, 0, 1, 1, 1, 'SMS', NULL, 2)")

		exec(t, db, "INSERT INTO chat_message_join VALUES (1, 1, ?)", t1)
		exec(t, db, "INSERT INTO chat_message_join VALUES (1, 2, ?)", t2)
		exec(t, db, "INSERT INTO chat_message_join VALUES (2, 3, ?)", t3)
		exec(t, db, "INSERT INTO chat_message_join VALUES (2, 4, 400000000)")

		exec(t, db, "INSERT INTO attachment VALUES (1, 'IMG_0001.HEIC', 'image/heic', 5, 2048000)")
		exec(t, db, "INSERT INTO message_attachment_join VALUES (3, 1)")
	})
}

func TestMessages(t *testing.T) {
	e := NewMessageExtractor(newMessagesBackup(t))
	messages, err := e.Messages(MessageQuery{})
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("Messages() returned %d messages, want 4", len(messages))
	}

	// date ascending puts the legacy row first
	if messages[0].MessageID != 4 {
		t.Errorf("first message ID = %d, want the oldest (4)", messages[0].MessageID)
	}
	if messages[0].Date.Year() != 2013 {
		t.Errorf("legacy second-scale date decoded to %v", messages[0].Date)
	}

	m1 := messages[1]
	if m1.Direction != DirectionReceived {
		t.Errorf("message 1 direction = %s, want received", m1.Direction)
	}
	if m1.Sender != "+15551234567" || m1.Recipient != "Me" {
		t.Errorf("message 1 sender/recipient = %q/%q", m1.Sender, m1.Recipient)
	}
	if m1.Type != TypeIMessage {
		t.Errorf("message 1 type = %s, want imessage", m1.Type)
	}
	if !m1.Date.Equal(msgDay1) {
		t.Errorf("message 1 date = %v, want %v", m1.Date, msgDay1)
	}
	if !m1.IsRead || m1.IsDelivered {
		t.Errorf("message 1 flags = read %t delivered %t", m1.IsRead, m1.IsDelivered)
	}

	m2 := messages[2]
	if m2.Direction != DirectionSent {
		t.Errorf("message 2 direction = %s, want sent", m2.Direction)
	}
	if m2.Sender != "Me" || m2.Recipient != "+15551234567" {
		t.Errorf("message 2 sender/recipient = %q/%q", m2.Sender, m2.Recipient)
	}

	m3 := messages[3]
	if m3.Type != TypeSMS {
		t.Errorf("message 3 type = %s, want sms", m3.Type)
	}
	if len(m3.Attachments) != 1 {
		t.Fatalf("message 3 attachments = %d, want 1", len(m3.Attachments))
	}
	if m3.Attachments[0].Filename != "IMG_0001.HEIC" || m3.Attachments[0].Size != 2048000 {
		t.Errorf("attachment = %+v", m3.Attachments[0])
	}
	// messages without attachments still carry an empty slice
	if m1.Attachments == nil {
		t.Error("attachments should never be nil")
	}
}

func TestMessagesContactFilter(t *testing.T) {
	e := NewMessageExtractor(newMessagesBackup(t))

	messages, err := e.Messages(MessageQuery{Contact: "555123"})
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Messages(contact) returned %d, want 2", len(messages))
	}
	for _, m := range messages {
		if m.Sender != "+15551234567" && m.Recipient != "+15551234567" {
			t.Errorf("message %d does not involve the filtered contact", m.MessageID)
		}
	}

	// an identifier nobody matches yields an empty result, not an error
	none, err := e.Messages(MessageQuery{Contact: "nobody"})
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Messages(unknown contact) returned %d, want 0", len(none))
	}
}

func TestMessagesChatFilter(t *testing.T) {
	e := NewMessageExtractor(newMessagesBackup(t))
	messages, err := e.Messages(MessageQuery{ChatID: 1})
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Messages(chat 1) returned %d, want 2", len(messages))
	}
	for _, m := range messages {
		if m.ChatID != 1 {
			t.Errorf("message %d has chat ID %d", m.MessageID, m.ChatID)
		}
	}
}

func TestMessagesDateFilter(t *testing.T) {
	e := NewMessageExtractor(newMessagesBackup(t))

	after, err := e.Messages(MessageQuery{After: msgDay2.Add(-time.Hour)})
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(after) != 1 || after[0].MessageID != 3 {
		t.Errorf("Messages(after) = %d messages, want only the day-2 message", len(after))
	}

	before, err := e.Messages(MessageQuery{Before: msgDay1.Add(time.Minute)})
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(before) != 2 {
		t.Errorf("Messages(before) = %d messages, want 2", len(before))
	}
}

func TestMessagesLimit(t *testing.T) {
	e := NewMessageExtractor(newMessagesBackup(t))
	messages, err := e.Messages(MessageQuery{Limit: 2})
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(messages) != 2 {
		t.Errorf("Messages(limit 2) returned %d", len(messages))
	}
}

func TestMessageExtractorClose(t *testing.T) {
	b := newMessagesBackup(t)
	e := NewMessageExtractor(b)

	if got := e.db.Path(); got != "" {
		t.Fatalf("Path() before first use = %q, want empty", got)
	}
	if _, err := e.Messages(MessageQuery{}); err != nil {
		t.Fatalf("Messages() error = %v", err)
	}

	staged := e.db.Path()
	if staged == "" {
		t.Fatal("Path() after extraction is empty")
	}
	if _, err := os.Stat(staged); err != nil {
		t.Fatalf("staged database missing: %v", err)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Errorf("staged database still present after Close: %v", err)
	}
	// closing twice is fine
	if err := e.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestConversations(t *testing.T) {
	e := NewMessageExtractor(newMessagesBackup(t))
	convs, err := e.Conversations()
	if err != nil {
		t.Fatalf("Conversations() error = %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("Conversations() returned %d, want 2", len(convs))
	}

	// most recent activity first
	if convs[0].ChatID != 2 {
		t.Errorf("first conversation = chat %d, want the most recently active (2)", convs[0].ChatID)
	}
	byID := map[int64]Conversation{}
	for _, c := range convs {
		byID[c.ChatID] = c
	}
	if byID[1].DisplayName != "Alice" {
		t.Errorf("chat 1 display name = %q", byID[1].DisplayName)
	}
	if byID[2].DisplayName != "friend@example.com" {
		t.Errorf("chat 2 display name = %q, want the identifier fallback", byID[2].DisplayName)
	}
	if byID[1].MessageCount != 2 || byID[2].MessageCount != 2 {
		t.Errorf("message counts = %d/%d, want 2/2", byID[1].MessageCount, byID[2].MessageCount)
	}
}

func TestMessageStatistics(t *testing.T) {
	e := NewMessageExtractor(newMessagesBackup(t))
	stats, err := e.Statistics()
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}

	if stats.TotalMessages != 4 {
		t.Errorf("TotalMessages = %d, want 4", stats.TotalMessages)
	}
	if stats.SentMessages != 2 || stats.ReceivedMessages != 2 {
		t.Errorf("sent/received = %d/%d, want 2/2", stats.SentMessages, stats.ReceivedMessages)
	}
	if stats.SentMessages+stats.ReceivedMessages != stats.TotalMessages {
		t.Error("sent + received must equal total")
	}
	if stats.TotalAttachments != 1 {
		t.Errorf("TotalAttachments = %d, want 1", stats.TotalAttachments)
	}
	if stats.Conversations != 2 || stats.Contacts != 2 {
		t.Errorf("conversations/contacts = %d/%d, want 2/2", stats.Conversations, stats.Contacts)
	}

	// the aggregate totals agree with a full scan
	messages, err := e.Messages(MessageQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(messages)) != stats.TotalMessages {
		t.Errorf("scan returned %d messages, statistics claim %d", len(messages), stats.TotalMessages)
	}
	if stats.FirstMessage.IsZero() || stats.LastMessage.Before(stats.FirstMessage) {
		t.Errorf("message date range = %v .. %v", stats.FirstMessage, stats.LastMessage)
	}
}
