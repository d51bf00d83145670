// Package stamp draws an "electronically signed" badge on every page of a
// PDF and appends pages of numbered signature certificates.
package stamp

import (
	"errors"
	"fmt"

	"github.com/georgepadayatti/pdfstamp/pdf/fonts"
	"github.com/georgepadayatti/pdfstamp/pdf/generic"
	"github.com/georgepadayatti/pdfstamp/pdf/layout"
	"github.com/georgepadayatti/pdfstamp/pdf/text"
)

// ErrInvalidOptions reports options that cannot produce a layout.
var ErrInvalidOptions = errors.New("invalid stamp options")

// Font resource names used on stamped and appended pages.
const (
	RegularFontResource = "StampRegular"
	BoldFontResource    = "StampBold"
)

// Color is the blue used for text and borders.
var Color = text.RGB(44, 112, 186)

// Style is the appearance shared by the badge and the certificate
// blocks. The two differ only in their Style values and geometry.
type Style struct {
	Color       text.Color
	BorderWidth float64
	FontSize    float64
	// Leading is the baseline distance as a multiple of FontSize.
	Leading float64
	// Padding is the space between a cell border and its text.
	Padding float64
}

// DefaultBadgeStyle returns the thin-bordered badge style.
func DefaultBadgeStyle() Style {
	return Style{Color: Color, BorderWidth: 1, FontSize: 10, Leading: 1, Padding: 2}
}

// DefaultCertificateStyle returns the thick-bordered certificate style.
func DefaultCertificateStyle() Style {
	return Style{Color: Color, BorderWidth: 2.5, FontSize: 10, Leading: 1, Padding: 2}
}

// Validate checks that the style can be laid out.
func (s Style) Validate() error {
	if s.FontSize <= 0 {
		return fmt.Errorf("%w: font size must be positive, got %g", ErrInvalidOptions, s.FontSize)
	}
	if s.BorderWidth < 0 || s.Padding < 0 || s.Leading < 0 {
		return fmt.Errorf("%w: border width, padding and leading must not be negative", ErrInvalidOptions)
	}
	return nil
}

// cell returns an empty bordered cell in this style.
func (s Style) cell() *layout.Cell {
	return &layout.Cell{Padding: s.Padding, Border: s.BorderWidth, BorderColor: s.Color}
}

// paragraph returns a paragraph of s in this style.
func (s Style) paragraph(res *Resources, str string, bold bool) *layout.Paragraph {
	return layout.NewParagraph(str, res.textStyle(s, bold))
}

// Resources holds the fonts drawn by the stamper and the paginator. The
// fonts are embedded once and shared by every page that uses them.
type Resources struct {
	regular  *fonts.TrueTypeFont
	bold     *fonts.TrueTypeFont
	registry *fonts.Registry
}

// NewResources registers the fonts with store. A nil bold font is
// simulated by stroking the regular one.
func NewResources(store fonts.ObjectStore, regular, bold *fonts.TrueTypeFont, compress bool) *Resources {
	r := &Resources{regular: regular, bold: bold, registry: fonts.NewRegistry(store)}
	r.registry.Compress = compress
	r.registry.Register(RegularFontResource, regular)
	if bold != nil {
		r.registry.Register(BoldFontResource, bold)
	}
	return r
}

// FakeBold reports whether bold text is simulated.
func (r *Resources) FakeBold() bool { return r.bold == nil }

// Dict returns a page resource dictionary naming the fonts.
func (r *Resources) Dict() *generic.DictionaryObject { return r.registry.Resources() }

// Finish writes the font objects. Call it after all drawing is done.
func (r *Resources) Finish() error { return r.registry.Finish() }

// CheckCoverage fails when a font has no glyph for a rune of texts.
func (r *Resources) CheckCoverage(texts ...string) error {
	for _, f := range []*fonts.TrueTypeFont{r.regular, r.bold} {
		if f == nil {
			continue
		}
		for _, s := range texts {
			if missing := f.Missing(text.Normalize(s)); len(missing) > 0 {
				return fmt.Errorf("%w: %s has no glyphs for %q", fonts.ErrInvalidFont, f.Name(), string(missing))
			}
		}
	}
	return nil
}

func (r *Resources) textStyle(s Style, bold bool) *text.Style {
	ts := &text.Style{
		Font:     r.regular,
		Resource: RegularFontResource,
		Size:     s.FontSize,
		Leading:  s.Leading,
		Color:    s.Color,
	}
	if bold {
		if r.bold != nil {
			ts.Font = r.bold
			ts.Resource = BoldFontResource
		} else {
			ts.FakeBold = true
		}
	}
	return ts
}
