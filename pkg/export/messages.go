package export

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"gorm.io/gorm"

	"github.com/CannonJunior/orange/pkg/backup"
)

const smsDatabase = "Library/SMS/sms.db"

// MessageQuery filters a message scan. Zero values match everything.
type MessageQuery struct {
	ChatID  int64     // restrict to one conversation
	Contact string    // substring match against handle identifiers
	After   time.Time // messages at or after this time
	Before  time.Time // messages at or before this time
	Limit   int
}

// MessageStatistics are aggregate counts computed directly from the
// database, independent of the record-construction path.
type MessageStatistics struct {
	TotalMessages    int64     `json:"total_messages"`
	SentMessages     int64     `json:"sent_messages"`
	ReceivedMessages int64     `json:"received_messages"`
	TotalAttachments int64     `json:"total_attachments"`
	Conversations    int       `json:"conversations"`
	Contacts         int       `json:"contacts"`
	FirstMessage     time.Time `json:"first_message,omitzero"`
	LastMessage      time.Time `json:"last_message,omitzero"`
}

// MessageExtractor reads the SMS/iMessage database out of a backup.
// An instance is not safe for concurrent use; give each goroutine its
// own extractor.
type MessageExtractor struct {
	b  *backup.Backup
	db domainDB

	refOnce sync.Once
	handles map[int64]string
	chats   map[int64]Conversation
}

// NewMessageExtractor returns an extractor for b. The database is
// materialized lazily on first use.
func NewMessageExtractor(b *backup.Backup) *MessageExtractor {
	return &MessageExtractor{
		b:       b,
		db:      domainDB{domain: "messages", candidates: []string{smsDatabase}},
		handles: make(map[int64]string),
		chats:   make(map[int64]Conversation),
	}
}

// Close releases the staged database copy. The extractor must not be
// used afterwards.
func (e *MessageExtractor) Close() error {
	return e.db.Close()
}

func (e *MessageExtractor) ensure() (*gorm.DB, error) {
	db, err := e.db.open(e.b)
	if err != nil {
		return nil, err
	}
	e.refOnce.Do(func() {
		e.loadHandles(db)
		e.loadChats(db)
	})
	return db, nil
}

// handle rows map ROWIDs to the phone number or email on the other end.
func (e *MessageExtractor) loadHandles(db *gorm.DB) {
	rows, err := db.Raw("SELECT ROWID, id FROM handle").Rows()
	if err != nil {
		log.WithError(err).Warn("could not load message handles")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var ident sql.NullString
		if err := rows.Scan(&id, &ident); err != nil {
			continue
		}
		e.handles[id] = ident.String
	}
	log.WithField("count", len(e.handles)).Debug("loaded message handles")
}

func (e *MessageExtractor) loadChats(db *gorm.DB) {
	rows, err := db.Raw("SELECT ROWID, chat_identifier, display_name, service_name FROM chat").Rows()
	if err != nil {
		log.WithError(err).Warn("could not load chats")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var ident, name, service sql.NullString
		if err := rows.Scan(&id, &ident, &name, &service); err != nil {
			continue
		}
		e.chats[id] = Conversation{
			ChatID:      id,
			Identifier:  ident.String,
			DisplayName: name.String,
			Service:     service.String,
		}
	}
	log.WithField("count", len(e.chats)).Debug("loaded chats")
}

// Messages runs a filtered scan and returns normalized records in
// date order, attachments attached.
func (e *MessageExtractor) Messages(q MessageQuery) ([]Message, error) {
	db, err := e.ensure()
	if err != nil {
		return nil, err
	}

	query := `SELECT
		m.ROWID, m.text, m.date, m.date_read, m.date_delivered,
		m.is_from_me, m.is_read, m.is_delivered, m.service, m.subject,
		m.handle_id, cmj.chat_id
	FROM message m
	LEFT JOIN chat_message_join cmj ON m.ROWID = cmj.message_id`

	var conds []string
	var args []any

	if q.ChatID != 0 {
		conds = append(conds, "cmj.chat_id = ?")
		args = append(args, q.ChatID)
	}
	if q.Contact != "" {
		var matching []any
		for id, ident := range e.handles {
			if strings.Contains(strings.ToLower(ident), strings.ToLower(q.Contact)) {
				matching = append(matching, id)
			}
		}
		if len(matching) == 0 {
			return nil, nil
		}
		conds = append(conds, "m.handle_id IN ("+placeholders(len(matching))+")")
		args = append(args, matching...)
	}
	if !q.After.IsZero() {
		conds = append(conds, "m.date >= ?")
		args = append(args, appleTimestampMessage(q.After))
	}
	if !q.Before.IsZero() {
		conds = append(conds, "m.date <= ?")
		args = append(args, appleTimestampMessage(q.Before))
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY m.date ASC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := db.Raw(query, args...).Rows()
	if err != nil {
		return nil, &ExtractionError{Domain: "messages", Err: err}
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := e.scanMessage(rows)
		if err != nil {
			log.WithError(err).Debug("skipping unparseable message row")
			continue
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExtractionError{Domain: "messages", Err: err}
	}

	if err := e.loadAttachments(db, messages); err != nil {
		log.WithError(err).Warn("could not load attachments")
	}
	return messages, nil
}

func (e *MessageExtractor) scanMessage(rows *sql.Rows) (*Message, error) {
	var (
		id            int64
		text          sql.NullString
		date          sql.NullInt64
		dateRead      sql.NullInt64
		dateDelivered sql.NullInt64
		isFromMe      sql.NullInt64
		isRead        sql.NullInt64
		isDelivered   sql.NullInt64
		service       sql.NullString
		subject       sql.NullString
		handleID      sql.NullInt64
		chatID        sql.NullInt64
	)
	if err := rows.Scan(&id, &text, &date, &dateRead, &dateDelivered,
		&isFromMe, &isRead, &isDelivered, &service, &subject, &handleID, &chatID); err != nil {
		return nil, err
	}

	other := e.handles[handleID.Int64]
	if other == "" {
		other = "Unknown"
	}
	m := &Message{
		MessageID:     id,
		Text:          text.String,
		Date:          appleTimeMessage(date.Int64),
		DateRead:      appleTimeMessage(dateRead.Int64),
		DateDelivered: appleTimeMessage(dateDelivered.Int64),
		Type:          messageType(service.String),
		ChatID:        chatID.Int64,
		IsRead:        isRead.Int64 != 0,
		IsDelivered:   isDelivered.Int64 != 0,
		Subject:       subject.String,
		Service:       service.String,
		Attachments:   []Attachment{},
	}
	if isFromMe.Int64 != 0 {
		m.Direction = DirectionSent
		m.Sender = "Me"
		m.Recipient = other
	} else {
		m.Direction = DirectionReceived
		m.Sender = other
		m.Recipient = "Me"
	}
	return m, nil
}

func messageType(service string) MessageType {
	switch s := strings.ToLower(service); {
	case strings.Contains(s, "imessage"):
		return TypeIMessage
	case strings.Contains(s, "mms"):
		return TypeMMS
	default:
		return TypeSMS
	}
}

func (e *MessageExtractor) loadAttachments(db *gorm.DB, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	byID := make(map[int64]*Message, len(messages))
	ids := make([]any, 0, len(messages))
	for i := range messages {
		byID[messages[i].MessageID] = &messages[i]
		ids = append(ids, messages[i].MessageID)
	}

	rows, err := db.Raw(`SELECT
		a.ROWID, a.filename, a.mime_type, a.transfer_state, a.total_bytes, maj.message_id
	FROM attachment a
	JOIN message_attachment_join maj ON a.ROWID = maj.attachment_id
	WHERE maj.message_id IN (`+placeholders(len(ids))+`)`, ids...).Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id        int64
			filename  sql.NullString
			mime      sql.NullString
			state     sql.NullInt64
			size      sql.NullInt64
			messageID int64
		)
		if err := rows.Scan(&id, &filename, &mime, &state, &size, &messageID); err != nil {
			continue
		}
		if m := byID[messageID]; m != nil {
			m.Attachments = append(m.Attachments, Attachment{
				AttachmentID:  id,
				Filename:      filename.String,
				MIMEType:      mime.String,
				TransferState: state.Int64,
				Size:          size.Int64,
			})
		}
	}
	return rows.Err()
}

// Conversations lists every chat with its message count, most recent
// first.
func (e *MessageExtractor) Conversations() ([]Conversation, error) {
	db, err := e.ensure()
	if err != nil {
		return nil, err
	}
	rows, err := db.Raw(`SELECT
		c.ROWID, c.chat_identifier, c.display_name, c.service_name,
		COUNT(cmj.message_id) AS message_count
	FROM chat c
	LEFT JOIN chat_message_join cmj ON c.ROWID = cmj.chat_id
	GROUP BY c.ROWID
	ORDER BY MAX(cmj.message_date) DESC`).Rows()
	if err != nil {
		return nil, &ExtractionError{Domain: "messages", Err: err}
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		var ident, name, service sql.NullString
		if err := rows.Scan(&c.ChatID, &ident, &name, &service, &c.MessageCount); err != nil {
			continue
		}
		c.Identifier = ident.String
		c.Service = service.String
		c.DisplayName = name.String
		if c.DisplayName == "" {
			c.DisplayName = c.Identifier
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// Conversation returns all messages exchanged with a phone number or
// email address.
func (e *MessageExtractor) Conversation(identifier string) ([]Message, error) {
	return e.Messages(MessageQuery{Contact: identifier})
}

// Statistics computes counts via direct aggregate queries. The totals
// agree with what a full Messages scan would construct.
func (e *MessageExtractor) Statistics() (*MessageStatistics, error) {
	db, err := e.ensure()
	if err != nil {
		return nil, err
	}
	stats := &MessageStatistics{
		Conversations: len(e.chats),
		Contacts:      len(e.handles),
	}
	if err := db.Raw("SELECT COUNT(*) FROM message").Scan(&stats.TotalMessages).Error; err != nil {
		return nil, &ExtractionError{Domain: "messages", Err: err}
	}
	if err := db.Raw("SELECT COUNT(*) FROM message WHERE is_from_me = 1").Scan(&stats.SentMessages).Error; err != nil {
		return nil, &ExtractionError{Domain: "messages", Err: err}
	}
	stats.ReceivedMessages = stats.TotalMessages - stats.SentMessages
	if err := db.Raw("SELECT COUNT(*) FROM attachment").Scan(&stats.TotalAttachments).Error; err != nil {
		return nil, &ExtractionError{Domain: "messages", Err: err}
	}

	var first, last sql.NullInt64
	row := db.Raw("SELECT MIN(date), MAX(date) FROM message").Row()
	if err := row.Scan(&first, &last); err == nil {
		stats.FirstMessage = appleTimeMessage(first.Int64)
		stats.LastMessage = appleTimeMessage(last.Int64)
	}
	return stats, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
