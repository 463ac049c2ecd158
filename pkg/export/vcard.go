package export

import (
	"strings"

	"github.com/apex/log"
)

// WriteVCF writes contacts as a vCard 3.0 file, one card per contact.
func WriteVCF(contacts []Contact, path string) error {
	cards := make([]string, 0, len(contacts))
	for _, c := range contacts {
		cards = append(cards, contactVCard(c))
	}
	if err := writeFile(path, []byte(strings.Join(cards, "\n"))); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"count": len(contacts),
		"path":  path,
	}).Info("wrote vCard export")
	return nil
}

func contactVCard(c Contact) string {
	lines := []string{"BEGIN:VCARD", "VERSION:3.0"}

	lines = append(lines, "N:"+strings.Join([]string{
		c.LastName, c.FirstName, c.MiddleName, c.Prefix, c.Suffix,
	}, ";"))
	lines = append(lines, "FN:"+c.DisplayName())

	if c.Organization != "" {
		org := c.Organization
		if c.Department != "" {
			org += ";" + c.Department
		}
		lines = append(lines, "ORG:"+org)
	}
	if c.JobTitle != "" {
		lines = append(lines, "TITLE:"+c.JobTitle)
	}

	for _, p := range c.Phones {
		lines = append(lines, "TEL;TYPE="+vcardPhoneType(p.Label)+":"+p.Number)
	}
	for _, e := range c.Emails {
		lines = append(lines, "EMAIL;TYPE="+vcardHomeWork(e.Label)+":"+e.Email)
	}
	for _, a := range c.Addresses {
		// ADR: PO Box;Extended;Street;City;State;Postal;Country
		lines = append(lines, "ADR;TYPE="+vcardHomeWork(a.Label)+":"+strings.Join([]string{
			"", "", a.Street, a.City, a.State, a.PostalCode, a.Country,
		}, ";"))
	}

	if !c.Birthday.IsZero() {
		lines = append(lines, "BDAY:"+c.Birthday.Format("2006-01-02"))
	}
	if c.Notes != "" {
		lines = append(lines, "NOTE:"+escapeVCard(c.Notes))
	}

	lines = append(lines, "END:VCARD")
	return strings.Join(lines, "\n")
}

func vcardPhoneType(label string) string {
	label = strings.ToLower(label)
	switch {
	case strings.Contains(label, "mobile"), strings.Contains(label, "cell"):
		return "CELL"
	case strings.Contains(label, "home"):
		return "HOME"
	case strings.Contains(label, "work"):
		return "WORK"
	case strings.Contains(label, "fax"):
		return "FAX"
	case strings.Contains(label, "pager"):
		return "PAGER"
	default:
		return "VOICE"
	}
}

func vcardHomeWork(label string) string {
	l := strings.ToLower(label)
	if strings.Contains(l, "home") || strings.Contains(l, "other") {
		return "HOME"
	}
	return "WORK"
}

func escapeVCard(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		"\n", "\\n",
		",", "\\,",
	)
	return r.Replace(s)
}
