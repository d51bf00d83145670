package layout

import (
	"github.com/georgepadayatti/pdfstamp/pdf/content"
	"github.com/georgepadayatti/pdfstamp/pdf/text"
)

// Paragraph is a run of text in one style. It is wrapped to the width of
// the cell that holds it.
type Paragraph struct {
	Text  string
	Style *text.Style
	Align text.TextAlign
}

// NewParagraph creates a left-aligned paragraph. The text is normalized
// to NFC.
func NewParagraph(s string, style *text.Style) *Paragraph {
	return &Paragraph{Text: text.Normalize(s), Style: style}
}

// Centered returns p with centered alignment.
func (p *Paragraph) Centered() *Paragraph {
	p.Align = text.AlignCenter
	return p
}

// Cell is a box of paragraphs with padding and an optional border and
// background. The border is drawn inside the box.
type Cell struct {
	Paragraphs  []*Paragraph
	Padding     float64
	Border      float64
	BorderColor text.Color
	Background  *text.Color
}

// Line is one wrapped line inside a measured cell, relative to the top
// left of the cell's content area.
type Line struct {
	Text  string
	Style *text.Style
	X     float64
	// Baseline is measured downwards from the top of the content area.
	Baseline float64
}

// CellLayout is the result of measuring a cell at a given width.
type CellLayout struct {
	Width  float64
	Height float64
	Lines  []Line
}

// Inner returns the width available to text in a cell that is width wide.
func (c *Cell) Inner(width float64) float64 {
	return width - 2*c.Border - 2*c.Padding
}

// Measure lays the cell out at width without drawing it. Each paragraph
// is wrapped independently.
func (c *Cell) Measure(width float64) CellLayout {
	inner := c.Inner(width)
	l := CellLayout{Width: width}
	y := 0.0
	for _, p := range c.Paragraphs {
		for _, s := range p.Style.Wrap(p.Text, inner) {
			l.Lines = append(l.Lines, Line{
				Text:     s,
				Style:    p.Style,
				X:        p.Align.Offset(p.Style.StringWidth(s), inner),
				Baseline: y + p.Style.BaselineOffset(),
			})
			y += p.Style.LineHeight()
		}
	}
	l.Height = y + 2*c.Border + 2*c.Padding
	return l
}

// Draw measures the cell at width and draws it into rect, whose height
// may exceed the measured one when the cell is stretched to its row.
func (c *Cell) Draw(b *content.Builder, rect Rectangle) CellLayout {
	l := c.Measure(rect.Width)

	if c.Background != nil {
		b.SetFillColor(c.Background.R, c.Background.G, c.Background.B).
			Rectangle(rect.X, rect.Y, rect.Width, rect.Height).
			Fill()
	}
	if c.Border > 0 {
		box := rect.Inset(c.Border / 2)
		b.SetLineWidth(c.Border).
			SetStrokeColor(c.BorderColor.R, c.BorderColor.G, c.BorderColor.B).
			Rectangle(box.X, box.Y, box.Width, box.Height).
			Stroke()
	}

	left := rect.X + c.Border + c.Padding
	top := rect.Top() - c.Border - c.Padding
	for _, line := range l.Lines {
		line.Style.Show(b, line.Text, left+line.X, top-line.Baseline)
	}
	return l
}
