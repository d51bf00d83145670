package metadata

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/georgepadayatti/pdfstamp/pdf/generic"
)

func TestFormatPDFDate(t *testing.T) {
	utc := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := FormatPDFDate(utc); got != "D:20240102030405+00'00'" {
		t.Errorf("Expected 'D:20240102030405+00'00'', got '%s'", got)
	}
	east := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("", 5*3600+30*60))
	if got := FormatPDFDate(east); !strings.HasSuffix(got, "+05'30'") {
		t.Errorf("Unexpected offset in %s", got)
	}
	west := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("", -3*3600-30*60))
	if got := FormatPDFDate(west); !strings.HasSuffix(got, "-03'30'") {
		t.Errorf("Unexpected offset in %s", got)
	}
}

func TestParsePDFDate(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"D:20240102030405+00'00'", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"D:20240102030405Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"D:20240102", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"D:1983", time.Date(1983, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParsePDFDate(tt.input)
		if err != nil {
			t.Errorf("ParsePDFDate(%s) unexpected error: %v", tt.input, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParsePDFDate(%s) = %v, want %v", tt.input, got, tt.want)
		}
	}

	east, err := ParsePDFDate("D:20240102030405+05'30'")
	if err != nil {
		t.Fatalf("ParsePDFDate failed: %v", err)
	}
	if _, offset := east.Zone(); offset != 5*3600+30*60 {
		t.Errorf("Expected +05:30 offset, got %d", offset)
	}

	for _, bad := range []string{"", "20240102", "D:yesterday"} {
		if _, err := ParsePDFDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParsePDFDate(%q): expected ErrInvalidDate, got %v", bad, err)
		}
	}
}

func TestApplyAndRead(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &DocumentMetadata{
		Title:    "Договор",
		Keywords: []string{"signed", "stamp"},
		Producer: Producer,
		Created:  &created,
	}
	d := generic.NewDictionary()
	m.Apply(d)

	if d.Has("Author") || d.Has("ModDate") {
		t.Error("Expected empty fields to be skipped")
	}
	if diff := cmp.Diff(m, FromInfoDict(d)); diff != "" {
		t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestFromInfoDictInvalid(t *testing.T) {
	d := generic.NewDictionary()
	d.Set("ModDate", generic.NewLiteralString("last tuesday"))
	d.Set("Title", generic.IntegerObject(7))
	m := FromInfoDict(d)
	if m.LastModified != nil || m.Title != "" {
		t.Errorf("Expected unreadable values to be dropped, got %+v", m)
	}
	if got := FromInfoDict(nil); got == nil || got.Producer != "" {
		t.Errorf("Expected empty metadata for a nil dictionary, got %+v", got)
	}
}
