package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MessageDirection is whether a message was sent or received.
type MessageDirection string

const (
	DirectionSent     MessageDirection = "sent"
	DirectionReceived MessageDirection = "received"
)

// MessageType is the transport a message rode on.
type MessageType string

const (
	TypeSMS      MessageType = "sms"
	TypeIMessage MessageType = "imessage"
	TypeMMS      MessageType = "mms"
)

// Attachment is a file attached to a message.
type Attachment struct {
	AttachmentID  int64  `json:"attachment_id"`
	Filename      string `json:"filename,omitempty"`
	MIMEType      string `json:"mime_type,omitempty"`
	Size          int64  `json:"size"`
	TransferState int64  `json:"transfer_state,omitempty"`
}

// Message is one SMS/iMessage record.
type Message struct {
	MessageID     int64            `json:"message_id"`
	Text          string           `json:"text"`
	Date          time.Time        `json:"date"`
	DateRead      time.Time        `json:"date_read,omitzero"`
	DateDelivered time.Time        `json:"date_delivered,omitzero"`
	Direction     MessageDirection `json:"direction"`
	Type          MessageType      `json:"message_type"`
	Sender        string           `json:"sender,omitempty"`
	Recipient     string           `json:"recipient,omitempty"`
	ChatID        int64            `json:"chat_id,omitempty"`
	IsRead        bool             `json:"is_read"`
	IsDelivered   bool             `json:"is_delivered"`
	Subject       string           `json:"subject,omitempty"`
	Service       string           `json:"service,omitempty"`
	Attachments   []Attachment     `json:"attachments"`
}

func (m Message) csvHeader() []string {
	return []string{"Date", "Direction", "Type", "Sender", "Recipient", "Text", "Subject", "Attachments"}
}

func (m Message) csvRow() []string {
	return []string{
		isoDate(m.Date),
		string(m.Direction),
		string(m.Type),
		m.Sender,
		m.Recipient,
		m.Text,
		m.Subject,
		strconv.Itoa(len(m.Attachments)),
	}
}

// Phone is a labeled phone number on a contact.
type Phone struct {
	Number string `json:"number"`
	Label  string `json:"label"`
}

// Email is a labeled email address on a contact.
type Email struct {
	Email string `json:"email"`
	Label string `json:"label"`
}

// Address is a labeled postal address on a contact.
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Label      string `json:"label"`
}

// SingleLine formats the address on one comma-separated line.
func (a Address) SingleLine() string {
	var parts []string
	for _, p := range []string{a.Street, a.City, a.State, a.PostalCode, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Contact is one address book record with its multi-value properties.
type Contact struct {
	ContactID    int64     `json:"contact_id"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	MiddleName   string    `json:"middle_name,omitempty"`
	Prefix       string    `json:"prefix,omitempty"`
	Suffix       string    `json:"suffix,omitempty"`
	Nickname     string    `json:"nickname,omitempty"`
	Organization string    `json:"organization,omitempty"`
	Department   string    `json:"department,omitempty"`
	JobTitle     string    `json:"job_title,omitempty"`
	Phones       []Phone   `json:"phones"`
	Emails       []Email   `json:"emails"`
	Addresses    []Address `json:"addresses"`
	Birthday     time.Time `json:"birthday,omitzero"`
	Notes        string    `json:"notes,omitempty"`
	CreatedDate  time.Time `json:"created_date,omitzero"`
	ModifiedDate time.Time `json:"modified_date,omitzero"`
}

// DisplayName assembles the presentation name, falling back to the
// organization and then the nickname for companies and the like.
func (c Contact) DisplayName() string {
	var parts []string
	for _, p := range []string{c.Prefix, c.FirstName, c.MiddleName, c.LastName, c.Suffix} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	name := strings.Join(parts, " ")
	if name == "" && c.Organization != "" {
		return c.Organization
	}
	if name == "" && c.Nickname != "" {
		return c.Nickname
	}
	if name == "" {
		return "Unknown"
	}
	return name
}

func (c Contact) csvHeader() []string {
	return []string{
		"First Name", "Last Name", "Organization", "Job Title",
		"Phone (Mobile)", "Phone (Home)", "Phone (Work)",
		"Email (Home)", "Email (Work)", "Address", "Birthday", "Notes",
	}
}

func (c Contact) csvRow() []string {
	phone := func(label string) string {
		for _, p := range c.Phones {
			if strings.Contains(p.Label, label) {
				return p.Number
			}
		}
		return ""
	}
	email := func(label string) string {
		for _, e := range c.Emails {
			if strings.Contains(e.Label, label) {
				return e.Email
			}
		}
		return ""
	}
	mobile := phone("mobile")
	if mobile == "" && len(c.Phones) > 0 {
		mobile = c.Phones[0].Number
	}
	homeEmail := email("home")
	if homeEmail == "" && len(c.Emails) > 0 {
		homeEmail = c.Emails[0].Email
	}
	var addr string
	if len(c.Addresses) > 0 {
		addr = c.Addresses[0].SingleLine()
	}
	var bday string
	if !c.Birthday.IsZero() {
		bday = c.Birthday.Format("2006-01-02")
	}
	return []string{
		c.FirstName, c.LastName, c.Organization, c.JobTitle,
		mobile, phone("home"), phone("work"),
		homeEmail, email("work"), addr, bday, c.Notes,
	}
}

// CalendarEvent is one calendar item.
type CalendarEvent struct {
	EventID      int64     `json:"event_id"`
	Title        string    `json:"title"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date,omitzero"`
	Location     string    `json:"location,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	AllDay       bool      `json:"all_day"`
	CalendarName string    `json:"calendar_name,omitempty"`
	CalendarID   int64     `json:"calendar_id,omitempty"`
	URL          string    `json:"url,omitempty"`
	CreatedDate  time.Time `json:"created_date,omitzero"`
	ModifiedDate time.Time `json:"modified_date,omitzero"`
}

func (e CalendarEvent) csvHeader() []string {
	return []string{"Title", "Start Date", "End Date", "All Day", "Location", "Calendar", "Notes", "URL"}
}

func (e CalendarEvent) csvRow() []string {
	return []string{
		e.Title,
		isoDate(e.StartDate),
		isoDate(e.EndDate),
		yesNo(e.AllDay),
		e.Location,
		e.CalendarName,
		e.Notes,
		e.URL,
	}
}

// Note is one record from the Notes app.
type Note struct {
	NoteID       int64     `json:"note_id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	CreatedDate  time.Time `json:"created_date,omitzero"`
	ModifiedDate time.Time `json:"modified_date,omitzero"`
	FolderName   string    `json:"folder_name,omitempty"`
	FolderID     int64     `json:"folder_id,omitempty"`
	IsPinned     bool      `json:"is_pinned"`
	IsLocked     bool      `json:"is_locked"`
	AccountName  string    `json:"account_name,omitempty"`
}

func (n Note) csvHeader() []string {
	return []string{"Title", "Content", "Folder", "Created", "Modified", "Pinned", "Locked"}
}

func (n Note) csvRow() []string {
	content := n.Content
	if len(content) > 1000 {
		content = content[:1000] + "..."
	}
	return []string{
		n.Title,
		content,
		n.FolderName,
		isoDate(n.CreatedDate),
		isoDate(n.ModifiedDate),
		yesNo(n.IsPinned),
		yesNo(n.IsLocked),
	}
}

func isoDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// Conversation summarizes one chat thread.
type Conversation struct {
	ChatID       int64  `json:"chat_id"`
	Identifier   string `json:"identifier"`
	DisplayName  string `json:"display_name"`
	Service      string `json:"service,omitempty"`
	MessageCount int64  `json:"message_count"`
}

// Calendar summarizes one calendar.
type Calendar struct {
	CalendarID int64  `json:"calendar_id"`
	Title      string `json:"title"`
	Color      string `json:"color,omitempty"`
	Type       string `json:"type,omitempty"`
	EventCount int64  `json:"event_count"`
}

// Folder summarizes one notes folder.
type Folder struct {
	FolderID  int64  `json:"folder_id"`
	Title     string `json:"title"`
	NoteCount int64  `json:"note_count"`
}

func (c Contact) String() string {
	return fmt.Sprintf("%s (%d phones, %d emails)", c.DisplayName(), len(c.Phones), len(c.Emails))
}
