package export

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/apex/log"
	"gorm.io/gorm"

	"github.com/CannonJunior/orange/pkg/backup"
)

const addressBookDatabase = "Library/AddressBook/AddressBook.sqlitedb"

// ABMultiValue property codes for the value kinds we extract.
const (
	propertyPhone   = 3
	propertyEmail   = 4
	propertyAddress = 5
)

// builtinLabels are the negative-id labels iOS uses for the common
// multi-value kinds.
var builtinLabels = map[int64]string{
	-1: "mobile",
	-2: "home",
	-3: "work",
	-4: "main",
	-5: "home fax",
	-6: "work fax",
	-7: "pager",
	-8: "other",
}

// ContactQuery filters a contact scan.
type ContactQuery struct {
	Search string // substring match on first/last/organization
	Limit  int
}

// ContactStatistics are aggregate counts over the address book.
type ContactStatistics struct {
	TotalContacts int64 `json:"total_contacts"`
	WithPhones    int64 `json:"with_phones"`
	WithEmails    int64 `json:"with_emails"`
	WithAddresses int64 `json:"with_addresses"`
}

// ContactExtractor reads the AddressBook database out of a backup.
// Not safe for concurrent use.
type ContactExtractor struct {
	b  *backup.Backup
	db domainDB
}

// NewContactExtractor returns an extractor for b.
func NewContactExtractor(b *backup.Backup) *ContactExtractor {
	return &ContactExtractor{
		b:  b,
		db: domainDB{domain: "contacts", candidates: []string{addressBookDatabase}},
	}
}

// Close releases the staged database copy.
func (e *ContactExtractor) Close() error {
	return e.db.Close()
}

// Contacts runs a filtered scan over ABPerson, attaching phones,
// emails and addresses from the multi-value tables.
func (e *ContactExtractor) Contacts(q ContactQuery) ([]Contact, error) {
	db, err := e.db.open(e.b)
	if err != nil {
		return nil, err
	}

	query := `SELECT
		ROWID, First, Last, Middle, Prefix, Suffix, Nickname,
		Organization, Department, JobTitle, Birthday, Note,
		CreationDate, ModificationDate
	FROM ABPerson`

	var args []any
	if q.Search != "" {
		query += " WHERE (First LIKE ? OR Last LIKE ? OR Organization LIKE ?)"
		pat := "%" + q.Search + "%"
		args = append(args, pat, pat, pat)
	}
	query += " ORDER BY Last, First"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := db.Raw(query, args...).Rows()
	if err != nil {
		return nil, &ExtractionError{Domain: "contacts", Err: err}
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			log.WithError(err).Debug("skipping unparseable contact row")
			continue
		}
		contacts = append(contacts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExtractionError{Domain: "contacts", Err: err}
	}

	for i := range contacts {
		e.loadMultiValues(db, &contacts[i])
		e.loadAddresses(db, &contacts[i])
	}
	return contacts, nil
}

// Contact returns a single contact by its ROWID, or backup.ErrNotFound.
func (e *ContactExtractor) Contact(contactID int64) (*Contact, error) {
	contacts, err := e.Contacts(ContactQuery{})
	if err != nil {
		return nil, err
	}
	for i := range contacts {
		if contacts[i].ContactID == contactID {
			return &contacts[i], nil
		}
	}
	return nil, backup.ErrNotFound
}

func scanContact(rows *sql.Rows) (*Contact, error) {
	var (
		id                                     int64
		first, last, middle, prefix, suffix    sql.NullString
		nickname, org, dept, title, note       sql.NullString
		birthday, created, modified            sql.NullFloat64
	)
	if err := rows.Scan(&id, &first, &last, &middle, &prefix, &suffix,
		&nickname, &org, &dept, &title, &birthday, &note, &created, &modified); err != nil {
		return nil, err
	}
	return &Contact{
		ContactID:    id,
		FirstName:    first.String,
		LastName:     last.String,
		MiddleName:   middle.String,
		Prefix:       prefix.String,
		Suffix:       suffix.String,
		Nickname:     nickname.String,
		Organization: org.String,
		Department:   dept.String,
		JobTitle:     title.String,
		Birthday:     appleTime(birthday.Float64),
		Notes:        note.String,
		CreatedDate:  appleTime(created.Float64),
		ModifiedDate: appleTime(modified.Float64),
		Phones:       []Phone{},
		Emails:       []Email{},
		Addresses:    []Address{},
	}, nil
}

// loadMultiValues attaches phones and emails. Failures degrade to "no
// values" rather than failing the record.
func (e *ContactExtractor) loadMultiValues(db *gorm.DB, c *Contact) {
	rows, err := db.Raw(`SELECT
		mv.property, mv.label, mv.value, mvl.value
	FROM ABMultiValue mv
	LEFT JOIN ABMultiValueLabel mvl ON mv.label = mvl.ROWID
	WHERE mv.record_id = ?`, c.ContactID).Rows()
	if err != nil {
		log.WithError(err).WithField("contact", c.ContactID).Debug("could not load multi-values")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var (
			property  int64
			labelID   sql.NullInt64
			value     sql.NullString
			labelText sql.NullString
		)
		if err := rows.Scan(&property, &labelID, &value, &labelText); err != nil {
			continue
		}
		if value.String == "" {
			continue
		}
		label := labelText.String
		if label == "" {
			label = defaultLabel(labelID.Int64)
		}
		switch property {
		case propertyPhone:
			c.Phones = append(c.Phones, Phone{Number: value.String, Label: cleanLabel(label)})
		case propertyEmail:
			c.Emails = append(c.Emails, Email{Email: value.String, Label: cleanLabel(label)})
		}
	}
}

// loadAddresses reassembles postal addresses, which are spread across
// ABMultiValueEntry with one row per sub-field keyed by a shared UID.
func (e *ContactExtractor) loadAddresses(db *gorm.DB, c *Contact) {
	rows, err := db.Raw(`SELECT
		mv.UID, mve.key, mve.value, mvl.value
	FROM ABMultiValue mv
	JOIN ABMultiValueEntry mve ON mv.UID = mve.parent_id
	LEFT JOIN ABMultiValueLabel mvl ON mv.label = mvl.ROWID
	WHERE mv.record_id = ? AND mv.property = ?
	ORDER BY mv.UID`, c.ContactID, propertyAddress).Rows()
	if err != nil {
		log.WithError(err).WithField("contact", c.ContactID).Debug("could not load addresses")
		return
	}
	defer rows.Close()

	grouped := make(map[int64]*Address)
	var order []int64
	for rows.Next() {
		var (
			uid   int64
			key   sql.NullString
			value sql.NullString
			label sql.NullString
		)
		if err := rows.Scan(&uid, &key, &value, &label); err != nil {
			continue
		}
		addr := grouped[uid]
		if addr == nil {
			l := label.String
			if l == "" {
				l = "home"
			}
			addr = &Address{Label: cleanLabel(l)}
			grouped[uid] = addr
			order = append(order, uid)
		}
		if value.String == "" {
			continue
		}
		switch key.String {
		case "Street":
			addr.Street = value.String
		case "City":
			addr.City = value.String
		case "State":
			addr.State = value.String
		case "ZIP":
			addr.PostalCode = value.String
		case "Country":
			addr.Country = value.String
		}
	}
	for _, uid := range order {
		c.Addresses = append(c.Addresses, *grouped[uid])
	}
}

func defaultLabel(labelID int64) string {
	if l, ok := builtinLabels[labelID]; ok {
		return l
	}
	return "other"
}

// cleanLabel strips the _$!<...>!$_ decoration iOS puts around
// free-text labels and lower-cases the result.
func cleanLabel(label string) string {
	if label == "" {
		return "other"
	}
	label = strings.ReplaceAll(label, "_$!<", "")
	label = strings.ReplaceAll(label, ">!$_", "")
	return strings.ToLower(label)
}

// Statistics computes aggregate counts via direct queries.
func (e *ContactExtractor) Statistics() (*ContactStatistics, error) {
	db, err := e.db.open(e.b)
	if err != nil {
		return nil, err
	}
	stats := &ContactStatistics{}
	if err := db.Raw("SELECT COUNT(*) FROM ABPerson").Scan(&stats.TotalContacts).Error; err != nil {
		return nil, &ExtractionError{Domain: "contacts", Err: err}
	}
	for _, q := range []struct {
		property int
		dst      *int64
	}{
		{propertyPhone, &stats.WithPhones},
		{propertyEmail, &stats.WithEmails},
		{propertyAddress, &stats.WithAddresses},
	} {
		if err := db.Raw("SELECT COUNT(DISTINCT record_id) FROM ABMultiValue WHERE property = ?", q.property).Scan(q.dst).Error; err != nil {
			return nil, &ExtractionError{Domain: "contacts", Err: err}
		}
	}
	return stats, nil
}
