package stamp

import (
	"fmt"

	"github.com/georgepadayatti/pdfstamp/pdf/content"
	"github.com/georgepadayatti/pdfstamp/pdf/layout"
	"github.com/georgepadayatti/pdfstamp/pdf/text"
	"github.com/georgepadayatti/pdfstamp/pdf/writer"
)

// Default badge text.
const (
	DefaultBadgeTitle    = "ПОДПИСАНО ЭЛЕКТРОННОЙ ПОДПИСЬЮ"
	DefaultDocumentLabel = "Документ"
)

// Badge is the marker drawn at a fixed position on every original page:
// one bordered cell holding a bold title and the document line, both
// centered.
type Badge struct {
	Title         string
	DocumentLabel string
	// Document is the number on the second line. Transform fills it in
	// when it is empty.
	Document string

	Left   float64
	Bottom float64
	Width  float64
	// BandHeight is the height of the background band under the badge,
	// measured from the bottom of the page.
	BandHeight float64
	// Background fills the band. Nil leaves it transparent.
	Background *text.Color

	Style Style
}

// DefaultBadge returns the badge at left 200, bottom 20, width 250 over a
// green 40 pt band.
func DefaultBadge() *Badge {
	green := text.RGB(0, 255, 0)
	return &Badge{
		Title:         DefaultBadgeTitle,
		DocumentLabel: DefaultDocumentLabel,
		Left:          200,
		Bottom:        20,
		Width:         250,
		BandHeight:    40,
		Background:    &green,
		Style:         DefaultBadgeStyle(),
	}
}

// Lines returns the two lines of the badge.
func (b *Badge) Lines() []string {
	return []string{b.Title, fmt.Sprintf("%s: %s", b.DocumentLabel, b.Document)}
}

// Validate checks the badge geometry and style.
func (b *Badge) Validate() error {
	if b.Width <= 0 {
		return fmt.Errorf("%w: badge width must be positive, got %g", ErrInvalidOptions, b.Width)
	}
	if b.BandHeight < 0 {
		return fmt.Errorf("%w: badge band height must not be negative", ErrInvalidOptions)
	}
	return b.Style.Validate()
}

func (b *Badge) table(res *Resources) *layout.Table {
	lines := b.Lines()
	cell := b.Style.cell()
	cell.Paragraphs = []*layout.Paragraph{
		b.Style.paragraph(res, lines[0], true).Centered(),
		b.Style.paragraph(res, lines[1], false).Centered(),
	}
	t := layout.NewTable(1, 0, 0)
	t.AddCell(cell)
	return t
}

// BadgeLayout is the measured badge box.
type BadgeLayout struct {
	Box  layout.Rectangle
	Band layout.Rectangle
}

// PageStamper draws the badge on each original page of a document in a
// new content layer after the existing content.
type PageStamper struct {
	badge *Badge
}

// NewPageStamper creates a stamper for badge.
func NewPageStamper(badge *Badge) *PageStamper {
	return &PageStamper{badge: badge}
}

// Render builds the badge content stream, wrapped in q/Q.
func (p *PageStamper) Render(res *Resources) ([]byte, BadgeLayout) {
	bg := p.badge
	t := bg.table(res)
	measured := t.Measure(bg.Width)
	l := BadgeLayout{
		Box:  layout.NewRectangle(bg.Left, bg.Bottom, bg.Width, measured.Height),
		Band: layout.NewRectangle(bg.Left, 0, bg.Width, bg.BandHeight),
	}

	b := content.NewBuilder().SaveState()
	if bg.Background != nil && bg.BandHeight > 0 {
		b.SetFillColor(bg.Background.R, bg.Background.G, bg.Background.B).
			Rectangle(l.Band.X, l.Band.Y, l.Band.Width, l.Band.Height).
			Fill()
	}
	t.Draw(b, bg.Left, bg.Bottom, bg.Width)
	b.RestoreState()
	return b.Bytes(), l
}

// StampPages appends the badge to every page of the original document,
// in document order, and returns the number of pages stamped. The badge
// is laid out once and the same content is added to each page as its
// own stream.
func (p *PageStamper) StampPages(w *writer.IncrementalWriter, res *Resources) (int, error) {
	if err := p.badge.Validate(); err != nil {
		return 0, err
	}
	data, _ := p.Render(res)
	fontRes := res.Dict()

	n := w.Reader().NumPages()
	for i := 0; i < n; i++ {
		if _, err := w.AppendStreamToPage(i, data, fontRes); err != nil {
			return i, fmt.Errorf("failed to stamp page %d: %w", i+1, err)
		}
	}
	return n, nil
}
