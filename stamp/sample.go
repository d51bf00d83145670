package stamp

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/blake2b"

	"github.com/georgepadayatti/pdfstamp/pdf/content"
	"github.com/georgepadayatti/pdfstamp/pdf/crypt"
	"github.com/georgepadayatti/pdfstamp/pdf/fonts"
	"github.com/georgepadayatti/pdfstamp/pdf/layout"
	"github.com/georgepadayatti/pdfstamp/pdf/metadata"
	"github.com/georgepadayatti/pdfstamp/pdf/text"
	"github.com/georgepadayatti/pdfstamp/pdf/writer"
)

// SampleOptions configures SampleDocument.
type SampleOptions struct {
	Pages    int
	PageSize layout.PageSize
	// XRefStream writes an object stream and a cross-reference stream.
	XRefStream bool
	// Encryption, when set, encrypts the sample with an empty user
	// password so that it opens without one but only allows printing.
	Encryption    string
	OwnerPassword string
	Clock         clockwork.Clock
}

// SampleDocument writes a plain document with a heading and a frame on
// each page, to try the stamper on.
func SampleDocument(opts SampleOptions) ([]byte, error) {
	if opts.Pages < 1 {
		return nil, fmt.Errorf("%w: sample needs at least one page, got %d", ErrInvalidOptions, opts.Pages)
	}
	if opts.PageSize == (layout.PageSize{}) {
		opts.PageSize = layout.A4
	}

	w := writer.NewDocumentWriter()
	w.XRefStream = opts.XRefStream
	if opts.Clock != nil {
		w.Clock = opts.Clock
	}
	meta := &metadata.DocumentMetadata{
		Title:   fmt.Sprintf("pdfstamp sample, %d pages", opts.Pages),
		Creator: "pdfstamp sample",
	}
	meta.Apply(w.Info)

	if opts.Encryption != "" {
		method, err := crypt.ParseMethod(opts.Encryption)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
		id := blake2b.Sum256(fmt.Appendf(nil, "%s %s", meta.Title, w.Clock.Now()))
		if w.Security, err = crypt.NewStandardSecurityHandler(method, "", opts.OwnerPassword, crypt.PermPrint, id[:16]); err != nil {
			return nil, err
		}
	}

	font, err := fonts.GoRegular()
	if err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	reg := fonts.NewRegistry(w)
	reg.Register("F1", font)
	heading := &text.Style{Font: font, Resource: "F1", Size: 24, Color: text.Black()}
	body := &text.Style{Font: font, Resource: "F1", Size: 12, Color: text.Black()}

	size := opts.PageSize
	for i := 0; i < opts.Pages; i++ {
		b := content.NewBuilder().
			SetLineWidth(0.5).
			SetStrokeColor(0.5, 0.5, 0.5).
			Rectangle(36, 36, size.Width-72, size.Height-72).
			Stroke()
		heading.Show(b, fmt.Sprintf("Page %d of %d", i+1, opts.Pages), 72, size.Height-96)
		body.Show(b, "Sample document for pdfstamp.", 72, size.Height-120)
		if _, err := w.AddPage(size.MediaBox(), b.Bytes(), reg.Resources()); err != nil {
			return nil, fmt.Errorf("failed to add page %d: %w", i+1, err)
		}
	}

	if err := reg.Finish(); err != nil {
		return nil, err
	}
	return w.Bytes()
}
