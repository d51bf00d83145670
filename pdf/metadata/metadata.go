// Package metadata reads and writes the document information dictionary.
package metadata

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgepadayatti/pdfstamp/pdf/generic"
)

// Producer identifies pdfstamp in the documents it writes.
const Producer = "pdfstamp"

// ErrInvalidDate is returned by ParsePDFDate.
var ErrInvalidDate = errors.New("invalid PDF date")

// DocumentMetadata represents simple document metadata.
type DocumentMetadata struct {
	Title    string
	Author   string
	Subject  string
	Keywords []string

	// Creator is the software that authored the document.
	Creator string

	// Producer is the software that produced the PDF.
	Producer string

	Created      *time.Time
	LastModified *time.Time
}

// FromInfoDict reads metadata from an information dictionary. Dates that
// do not parse are left nil.
func FromInfoDict(d *generic.DictionaryObject) *DocumentMetadata {
	m := &DocumentMetadata{}
	if d == nil {
		return m
	}
	text := func(key string) string {
		if s, ok := d.Get(key).(*generic.StringObject); ok {
			return s.Text()
		}
		return ""
	}
	date := func(key string) *time.Time {
		t, err := ParsePDFDate(text(key))
		if err != nil {
			return nil
		}
		return &t
	}

	m.Title = text("Title")
	m.Author = text("Author")
	m.Subject = text("Subject")
	if kw := text("Keywords"); kw != "" {
		for _, k := range strings.Split(kw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				m.Keywords = append(m.Keywords, k)
			}
		}
	}
	m.Creator = text("Creator")
	m.Producer = text("Producer")
	m.Created = date("CreationDate")
	m.LastModified = date("ModDate")
	return m
}

// Apply writes the non-empty fields of m into d.
func (m *DocumentMetadata) Apply(d *generic.DictionaryObject) {
	set := func(key, value string) {
		if value != "" {
			d.Set(key, generic.NewTextString(value))
		}
	}
	set("Title", m.Title)
	set("Author", m.Author)
	set("Subject", m.Subject)
	set("Keywords", strings.Join(m.Keywords, ", "))
	set("Creator", m.Creator)
	set("Producer", m.Producer)
	if m.Created != nil {
		d.Set("CreationDate", generic.NewLiteralString(FormatPDFDate(*m.Created)))
	}
	if m.LastModified != nil {
		d.Set("ModDate", generic.NewLiteralString(FormatPDFDate(*m.LastModified)))
	}
}

// FormatPDFDate formats a time as a PDF date string (D:YYYYMMDDHHmmSSOHH'mm').
func FormatPDFDate(t time.Time) string {
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("D:%04d%02d%02d%02d%02d%02d%s%02d'%02d'",
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(),
		sign, offset/3600, (offset%3600)/60)
}

// ParsePDFDate parses a PDF date string. Trailing fields may be omitted.
func ParsePDFDate(s string) (time.Time, error) {
	rest, ok := strings.CutPrefix(s, "D:")
	if !ok {
		return time.Time{}, fmt.Errorf("%w: missing D: prefix in %q", ErrInvalidDate, s)
	}
	rest = strings.ReplaceAll(rest, "'", "")

	formats := []string{
		"20060102150405-0700",
		"20060102150405Z",
		"20060102150405",
		"200601021504",
		"2006010215",
		"20060102",
		"200601",
		"2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, rest); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
