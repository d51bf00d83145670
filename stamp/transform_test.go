package stamp

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/georgepadayatti/pdfstamp/pdf/content"
	"github.com/georgepadayatti/pdfstamp/pdf/generic"
	"github.com/georgepadayatti/pdfstamp/pdf/layout"
	"github.com/georgepadayatti/pdfstamp/pdf/reader"
	"github.com/georgepadayatti/pdfstamp/pdf/writer"
)

var testClock = clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

func sample(t *testing.T, pages int) []byte {
	t.Helper()
	data, err := SampleDocument(SampleOptions{Pages: pages, Clock: testClock})
	if err != nil {
		t.Fatalf("SampleDocument failed: %v", err)
	}
	return data
}

func testOptions() *Options {
	opts := DefaultOptions()
	opts.Clock = testClock
	return opts
}

func transform(t *testing.T, input []byte, opts *Options) (*Result, *reader.Reader) {
	t.Helper()
	result, err := Transform(input, opts)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	r, err := reader.New(result.Output)
	if err != nil {
		t.Fatalf("Output does not parse: %v", err)
	}
	return result, r
}

func contentsLen(t *testing.T, r *reader.Reader, page int) int {
	t.Helper()
	p, err := r.Page(page)
	if err != nil {
		t.Fatalf("Page %d: %v", page, err)
	}
	obj, err := r.Resolve(p.Dict.Get("Contents"))
	if err != nil {
		t.Fatalf("Page %d contents: %v", page, err)
	}
	if arr, ok := obj.(generic.ArrayObject); ok {
		return len(arr)
	}
	return 1
}

func TestSampleDocument(t *testing.T) {
	for _, xrefStream := range []bool{false, true} {
		data, err := SampleDocument(SampleOptions{Pages: 3, XRefStream: xrefStream, Clock: testClock})
		if err != nil {
			t.Fatalf("SampleDocument failed: %v", err)
		}
		r, err := reader.New(data)
		if err != nil {
			t.Fatalf("Sample does not parse (xref stream %v): %v", xrefStream, err)
		}
		if r.NumPages() != 3 {
			t.Errorf("Expected 3 pages, got %d", r.NumPages())
		}
		page, err := r.PageContent(1)
		if err != nil {
			t.Fatalf("PageContent failed: %v", err)
		}
		if _, err := content.Parse(page); err != nil {
			t.Errorf("Sample content does not parse: %v", err)
		}
	}

	if _, err := SampleDocument(SampleOptions{}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("Expected ErrInvalidOptions for zero pages, got %v", err)
	}
	if _, err := SampleDocument(SampleOptions{Pages: 1, Encryption: "rot13"}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("Expected ErrInvalidOptions for unknown encryption, got %v", err)
	}
}

func TestDocumentNumber(t *testing.T) {
	a := DocumentNumber([]byte("first"))
	if !regexp.MustCompile(`^\d{10}$`).MatchString(a) {
		t.Errorf("Expected 10 digits, got %q", a)
	}
	if a != DocumentNumber([]byte("first")) {
		t.Error("Expected a stable number for the same input")
	}
	if a == DocumentNumber([]byte("second")) {
		t.Error("Expected different numbers for different inputs")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"", ModeAll, true},
		{"all", ModeAll, true},
		{" Badge ", ModeBadge, true},
		{"certificates", ModeCertificates, true},
		{"sign", "", false},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("ParseMode(%q): expected %q, got %q, %v", tt.in, tt.want, got, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidOptions) {
			t.Errorf("ParseMode(%q): expected ErrInvalidOptions, got %v", tt.in, err)
		}
	}
}

func TestTransform(t *testing.T) {
	input := sample(t, 3)
	result, r := transform(t, input, testOptions())

	if !bytes.HasPrefix(result.Output, input) {
		t.Fatal("Expected the original bytes as a prefix of the output")
	}
	if result.OriginalPages != 3 || result.PagesStamped != 3 || result.CertificatePages != 2 {
		t.Errorf("Expected 3 original, 3 stamped and 2 certificate pages, got %d, %d, %d",
			result.OriginalPages, result.PagesStamped, result.CertificatePages)
	}
	if r.NumPages() != 5 {
		t.Fatalf("Expected 5 pages, got %d", r.NumPages())
	}
	if result.DocumentNumber != DocumentNumber(input) {
		t.Errorf("Expected derived document number, got %q", result.DocumentNumber)
	}

	for i := 0; i < 3; i++ {
		// q, the original stream, Q, the badge.
		if n := contentsLen(t, r, i); n != 4 {
			t.Errorf("Page %d: expected 4 content streams, got %d", i, n)
		}
		data, err := r.PageContent(i)
		if err != nil {
			t.Fatalf("PageContent failed: %v", err)
		}
		cs, err := content.Parse(data)
		if err != nil {
			t.Fatalf("Stamped page %d does not parse: %v", i, err)
		}
		last := cs.Operations[len(cs.Operations)-1]
		if last.Operator != content.OpRestoreState {
			t.Errorf("Page %d: expected the badge layer last, got %s", i, last.Operator)
		}
		p, _ := r.Page(i)
		fontDict, err := r.ResolveDict(p.Resources.Get("Font"))
		if err != nil {
			t.Fatalf("Page %d fonts: %v", i, err)
		}
		for _, name := range []string{"F1", RegularFontResource, BoldFontResource} {
			if !fontDict.Has(name) {
				t.Errorf("Page %d: missing font %s", i, name)
			}
		}
	}

	for i := 3; i < 5; i++ {
		p, _ := r.Page(i)
		if p.MediaBox != layout.A4.MediaBox() {
			t.Errorf("Page %d: expected A4 media box, got %+v", i, p.MediaBox)
		}
	}
}

func TestTransformAppendsOnEachRun(t *testing.T) {
	input := sample(t, 3)
	first, _ := transform(t, input, testOptions())
	second, r := transform(t, first.Output, testOptions())

	if !bytes.HasPrefix(second.Output, first.Output) {
		t.Fatal("Expected the first output as a prefix of the second")
	}
	if r.NumPages() != 7 {
		t.Errorf("Expected 7 pages, got %d", r.NumPages())
	}
	// q q original Q badge Q badge
	if n := contentsLen(t, r, 0); n != 7 {
		t.Errorf("Expected 7 content streams on page 1, got %d", n)
	}
	// Appended certificate pages count as originals on the second run.
	if second.PagesStamped != 5 {
		t.Errorf("Expected 5 stamped pages, got %d", second.PagesStamped)
	}
}

func TestTransformIsolatesOriginalState(t *testing.T) {
	w := writer.NewDocumentWriter()
	w.Clock = testClock
	w.AddPage(layout.A4.MediaBox(), []byte("1 0 0 1 0 600 cm 0 0 1 rg 0 0 10 10 re f"), nil)
	input, err := w.Bytes()
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	opts := testOptions()
	opts.Mode = ModeBadge
	opts.Compress = false
	_, r := transform(t, input, opts)

	data, err := r.PageContent(0)
	if err != nil {
		t.Fatalf("PageContent failed: %v", err)
	}
	cs, err := content.Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// levels[i] is true when a cm is active at q-depth i.
	levels := []bool{false}
	rects := 0
	for _, op := range cs.Operations {
		switch op.Operator {
		case content.OpSaveState:
			levels = append(levels, false)
		case content.OpRestoreState:
			if len(levels) == 1 {
				t.Fatal("Unbalanced Q in stamped content")
			}
			levels = levels[:len(levels)-1]
		case content.OpSetCTM:
			levels[len(levels)-1] = true
		case content.OpRectangle:
			rects++
			if rects == 1 {
				continue
			}
			for depth, cm := range levels {
				if cm {
					t.Errorf("Badge rectangle %d drawn under the original cm at depth %d", rects, depth)
				}
			}
		}
	}
	if rects < 2 {
		t.Errorf("Expected the band and badge rectangles, got %d", rects)
	}
	if len(levels) != 1 {
		t.Errorf("Expected balanced q/Q, got depth %d", len(levels)-1)
	}
}

func TestTransformModes(t *testing.T) {
	input := sample(t, 2)
	tests := []struct {
		mode          Mode
		pages         int
		streamsOnPage int
	}{
		{ModeBadge, 2, 4},
		{ModeCertificates, 4, 1},
	}
	for _, tt := range tests {
		opts := testOptions()
		opts.Mode = tt.mode
		_, r := transform(t, input, opts)
		if r.NumPages() != tt.pages {
			t.Errorf("%s: expected %d pages, got %d", tt.mode, tt.pages, r.NumPages())
		}
		if n := contentsLen(t, r, 0); n != tt.streamsOnPage {
			t.Errorf("%s: expected %d streams on page 1, got %d", tt.mode, tt.streamsOnPage, n)
		}
	}
}

func TestTransformDocumentNumberOverride(t *testing.T) {
	opts := testOptions()
	opts.DocumentNumber = "42"
	opts.Compress = false
	result, _ := transform(t, sample(t, 1), opts)
	if result.DocumentNumber != "42" {
		t.Errorf("Expected document 42, got %q", result.DocumentNumber)
	}
	if opts.Badge.Document != "" {
		t.Errorf("Expected the caller's badge untouched, got %q", opts.Badge.Document)
	}
}

func TestTransformBadgeDocument(t *testing.T) {
	input := sample(t, 1)
	tests := []struct {
		name     string
		option   string
		badge    string
		expected string
	}{
		{"badge number", "", "BADGE-7", "BADGE-7"},
		{"option wins", "OPT-1", "BADGE-7", "OPT-1"},
		{"derived", "", "", DocumentNumber(input)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.DocumentNumber = tt.option
			opts.Badge.Document = tt.badge
			result, _ := transform(t, input, opts)
			if result.DocumentNumber != tt.expected {
				t.Errorf("Expected document %q, got %q", tt.expected, result.DocumentNumber)
			}
			if opts.Badge.Document != tt.badge {
				t.Errorf("Expected the caller's badge untouched, got %q", opts.Badge.Document)
			}
		})
	}
}

func TestTransformFakeBold(t *testing.T) {
	regular, _ := goFonts(t)
	opts := testOptions()
	opts.RegularFont = regular
	opts.Compress = false
	opts.Certificates.Signatures = 1

	result, r := transform(t, sample(t, 1), opts)
	if !bytes.Contains(result.Output, []byte("2 Tr\n")) {
		t.Error("Expected stroked bold text in the uncompressed output")
	}
	p, _ := r.Page(1)
	if p.Resources.GetDict("Font").Has(BoldFontResource) {
		t.Error("Expected no bold font on the certificate page")
	}
}

func TestTransformEncryptedInput(t *testing.T) {
	tests := []struct {
		encryption string
		want       string
	}{
		{"rc4", "RC4 128-bit, R3"},
		{"aes128", "AES-128, R4"},
		{"aes256", "AES-256, R6"},
	}
	for _, tt := range tests {
		t.Run(tt.encryption, func(t *testing.T) {
			input, err := SampleDocument(SampleOptions{Pages: 2, Encryption: tt.encryption, OwnerPassword: "owner", Clock: testClock})
			if err != nil {
				t.Fatalf("SampleDocument failed: %v", err)
			}
			opts := testOptions()
			opts.Compress = false
			result, r := transform(t, input, opts)

			if !bytes.HasPrefix(result.Output, input) {
				t.Fatal("Expected the original bytes as a prefix of the output")
			}
			if result.Encryption != tt.want {
				t.Errorf("Expected encryption %q, got %q", tt.want, result.Encryption)
			}
			update := result.Output[len(input):]
			if bytes.Contains(update, []byte("D:2024")) {
				t.Error("Expected the update to be encrypted")
			}

			in, err := reader.New(input)
			if err != nil {
				t.Fatalf("Input does not parse: %v", err)
			}
			if r.Trailer().Get("Encrypt") == nil {
				t.Fatal("Expected /Encrypt in the update trailer")
			}
			wantID := in.Trailer().GetArray("ID")[0].(*generic.StringObject).Value
			gotID := r.Trailer().GetArray("ID")[0].(*generic.StringObject).Value
			if !bytes.Equal(wantID, gotID) {
				t.Errorf("Expected ID[0] %x, got %x", wantID, gotID)
			}

			if r.NumPages() != 2+result.CertificatePages {
				t.Errorf("Expected %d pages, got %d", 2+result.CertificatePages, r.NumPages())
			}
			data, err := r.PageContent(0)
			if err != nil {
				t.Fatalf("PageContent failed: %v", err)
			}
			cs, err := content.Parse(data)
			if err != nil {
				t.Fatalf("Stamped page does not parse: %v", err)
			}
			if first := cs.Operations[0].Operator; first != content.OpSaveState {
				t.Errorf("Expected q first, got %s", first)
			}
			if last := cs.Operations[len(cs.Operations)-1].Operator; last != content.OpRestoreState {
				t.Errorf("Expected the badge layer last, got %s", last)
			}

			info, err := r.ResolveDict(*r.Trailer().GetInfo())
			if err != nil {
				t.Fatalf("Info failed: %v", err)
			}
			modDate, _ := info.Get("ModDate").(*generic.StringObject)
			if modDate == nil || !strings.HasPrefix(modDate.Text(), "D:20240301") {
				t.Errorf("Expected decrypted ModDate, got %v", info.Get("ModDate"))
			}
		})
	}
}

func TestTransformErrors(t *testing.T) {
	input := sample(t, 1)
	encrypted := bytes.Replace(input, []byte("trailer\n<< "), []byte("trailer\n<< /Encrypt << /Filter /Standard >> "), 1)

	badCapacity := testOptions()
	badCapacity.Certificates.Capacity = 0

	badMode := testOptions()
	badMode.Mode = "watermark"

	badBadge := testOptions()
	badBadge.Badge.Width = -1

	tests := []struct {
		name  string
		input []byte
		opts  *Options
		want  error
	}{
		{"not a PDF", []byte("hello"), testOptions(), reader.ErrInvalidPDF},
		{"unsupported encryption", encrypted, testOptions(), reader.ErrEncrypted},
		{"capacity", input, badCapacity, ErrInvalidOptions},
		{"mode", input, badMode, ErrInvalidOptions},
		{"badge", input, badBadge, ErrInvalidOptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Transform(tt.input, tt.opts); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTransformLogs(t *testing.T) {
	var buf bytes.Buffer
	opts := testOptions()
	opts.Logger = slog.New(slog.NewJSONHandler(&buf, nil))
	if _, err := Transform(sample(t, 1), opts); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Expected one JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "transformed document" {
		t.Errorf("Expected transformed document message, got %v", entry["msg"])
	}
	if entry["certificate_pages"] != float64(2) {
		t.Errorf("Expected certificate_pages 2, got %v", entry["certificate_pages"])
	}
}

func TestTransformFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(in, sample(t, 2), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := TransformFile(in, out, testOptions())
	if err != nil {
		t.Fatalf("TransformFile failed: %v", err)
	}
	written, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Output missing: %v", err)
	}
	if !bytes.Equal(written, result.Output) {
		t.Error("Expected the file to hold the result output")
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("Temporary file left behind: %s", e.Name())
		}
	}
}

func TestTransformFileBadInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(in, []byte("not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := TransformFile(in, out, testOptions()); !errors.Is(err, reader.ErrInvalidPDF) {
		t.Errorf("Expected ErrInvalidPDF, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("Expected no output file, got %v", err)
	}
	if _, err := TransformFile(filepath.Join(dir, "missing.pdf"), out, testOptions()); err == nil {
		t.Error("Expected an error for a missing input")
	}
}
