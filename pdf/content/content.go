// Package content builds and parses PDF content streams.
package content

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/georgepadayatti/pdfstamp/pdf/generic"
)

// ErrInvalidContent reports a malformed content stream.
var ErrInvalidContent = errors.New("invalid content stream")

// Operator represents a PDF content stream operator.
type Operator string

// Operators emitted by the builder, plus the ones the parser has to
// recognize to skip inline images.
const (
	OpSaveState    Operator = "q"
	OpRestoreState Operator = "Q"
	OpSetCTM       Operator = "cm"
	OpSetLineWidth Operator = "w"

	OpMoveTo    Operator = "m"
	OpLineTo    Operator = "l"
	OpRectangle Operator = "re"

	OpStroke        Operator = "S"
	OpFill          Operator = "f"
	OpFillAndStroke Operator = "B"
	OpEndPath       Operator = "n"

	OpBeginText      Operator = "BT"
	OpEndText        Operator = "ET"
	OpSetLeading     Operator = "TL"
	OpSetFont        Operator = "Tf"
	OpSetRenderMode  Operator = "Tr"
	OpTextMove       Operator = "Td"
	OpSetTextMatrix  Operator = "Tm"
	OpTextNextLine   Operator = "T*"
	OpShowText       Operator = "Tj"
	OpShowTextArray  Operator = "TJ"
	OpSetStrokeRGB   Operator = "RG"
	OpSetFillRGB     Operator = "rg"
	OpSetStrokeGray  Operator = "G"
	OpSetFillGray    Operator = "g"
	OpPaintXObject   Operator = "Do"
	OpBeginInlineImg Operator = "BI"
	OpInlineImgData  Operator = "ID"
	OpEndInlineImg   Operator = "EI"
)

// Text render modes used by the builder.
const (
	RenderFill          = 0
	RenderFillAndStroke = 2
)

// Operation is a single operator with its operands.
type Operation struct {
	Operator Operator
	Operands []generic.PdfObject
}

// ContentStream is a parsed content stream.
type ContentStream struct {
	Operations []Operation
}

// Render serializes the operations, one per line.
func (cs *ContentStream) Render() []byte {
	var buf bytes.Buffer
	for _, op := range cs.Operations {
		for _, operand := range op.Operands {
			operand.Write(&buf)
			buf.WriteByte(' ')
		}
		buf.WriteString(string(op.Operator))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Count returns how many times op occurs.
func (cs *ContentStream) Count(op Operator) int {
	n := 0
	for _, o := range cs.Operations {
		if o.Operator == op {
			n++
		}
	}
	return n
}

// Find returns the operations with operator op, in order.
func (cs *ContentStream) Find(op Operator) []Operation {
	var out []Operation
	for _, o := range cs.Operations {
		if o.Operator == op {
			out = append(out, o)
		}
	}
	return out
}

// Parse parses a content stream. Inline image data is skipped.
func Parse(data []byte) (*ContentStream, error) {
	cs := &ContentStream{}
	p := generic.NewParser(data)
	var operands []generic.PdfObject

	for {
		p.SkipSpace()
		start := p.Pos()
		if start >= int64(len(data)) {
			break
		}
		if startsObject(data[start]) {
			obj, err := p.ParseObject()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
			}
			operands = append(operands, obj)
			continue
		}

		tok := p.Token()
		switch tok {
		case "":
			return nil, fmt.Errorf("%w: unexpected byte %q at %d", ErrInvalidContent, data[start], start)
		case "true", "false", "null":
			p.SetPos(start)
			obj, err := p.ParseObject()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
			}
			operands = append(operands, obj)
			continue
		case string(OpInlineImgData):
			end := bytes.Index(data[p.Pos():], []byte("EI"))
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated inline image", ErrInvalidContent)
			}
			p.SetPos(p.Pos() + int64(end) + 2)
			cs.Operations = append(cs.Operations, Operation{Operator: OpEndInlineImg})
			operands = nil
			continue
		}
		cs.Operations = append(cs.Operations, Operation{Operator: Operator(tok), Operands: operands})
		operands = nil
	}
	return cs, nil
}

func startsObject(b byte) bool {
	switch {
	case b == '/' || b == '(' || b == '<' || b == '[':
		return true
	case b == '+' || b == '-' || b == '.' || (b >= '0' && b <= '9'):
		return true
	}
	return false
}

// Builder writes content stream operators into a buffer.
type Builder struct {
	buf bytes.Buffer
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) op(op Operator, nums ...float64) *Builder {
	for _, n := range nums {
		b.buf.WriteString(generic.FormatNumber(n))
		b.buf.WriteByte(' ')
	}
	b.buf.WriteString(string(op))
	b.buf.WriteByte('\n')
	return b
}

// SaveState writes q.
func (b *Builder) SaveState() *Builder { return b.op(OpSaveState) }

// RestoreState writes Q.
func (b *Builder) RestoreState() *Builder { return b.op(OpRestoreState) }

// Transform concatenates a matrix to the CTM.
func (b *Builder) Transform(a, bb, c, d, e, f float64) *Builder {
	return b.op(OpSetCTM, a, bb, c, d, e, f)
}

// Rectangle appends a rectangle path.
func (b *Builder) Rectangle(x, y, width, height float64) *Builder {
	return b.op(OpRectangle, x, y, width, height)
}

// MoveTo starts a subpath.
func (b *Builder) MoveTo(x, y float64) *Builder { return b.op(OpMoveTo, x, y) }

// LineTo appends a line segment.
func (b *Builder) LineTo(x, y float64) *Builder { return b.op(OpLineTo, x, y) }

// Stroke strokes the current path.
func (b *Builder) Stroke() *Builder { return b.op(OpStroke) }

// Fill fills the current path.
func (b *Builder) Fill() *Builder { return b.op(OpFill) }

// FillAndStroke fills, then strokes the current path.
func (b *Builder) FillAndStroke() *Builder { return b.op(OpFillAndStroke) }

// SetLineWidth sets the stroke width.
func (b *Builder) SetLineWidth(width float64) *Builder { return b.op(OpSetLineWidth, width) }

// SetStrokeColor sets an RGB stroke color, components in 0..1.
func (b *Builder) SetStrokeColor(r, g, bl float64) *Builder { return b.op(OpSetStrokeRGB, r, g, bl) }

// SetFillColor sets an RGB fill color, components in 0..1.
func (b *Builder) SetFillColor(r, g, bl float64) *Builder { return b.op(OpSetFillRGB, r, g, bl) }

// BeginText writes BT.
func (b *Builder) BeginText() *Builder { return b.op(OpBeginText) }

// EndText writes ET.
func (b *Builder) EndText() *Builder { return b.op(OpEndText) }

// SetFont selects the font resource name at size.
func (b *Builder) SetFont(name string, size float64) *Builder {
	generic.NameObject(name).Write(&b.buf)
	b.buf.WriteByte(' ')
	return b.op(OpSetFont, size)
}

// SetTextRenderMode sets Tr.
func (b *Builder) SetTextRenderMode(mode int) *Builder {
	b.buf.WriteString(strconv.Itoa(mode))
	b.buf.WriteByte(' ')
	return b.op(OpSetRenderMode)
}

// SetLeading sets TL.
func (b *Builder) SetLeading(leading float64) *Builder { return b.op(OpSetLeading, leading) }

// TextPosition moves to the start of the next line, offset by (x, y).
func (b *Builder) TextPosition(x, y float64) *Builder { return b.op(OpTextMove, x, y) }

// ShowGlyphs shows already encoded text as a hex string.
func (b *Builder) ShowGlyphs(encoded []byte) *Builder {
	b.buf.WriteByte('<')
	b.buf.WriteString(hex.EncodeToString(encoded))
	b.buf.WriteString("> ")
	return b.op(OpShowText)
}

// ShowText shows a single-byte string as a literal.
func (b *Builder) ShowText(text string) *Builder {
	b.buf.Write(generic.EscapeLiteral([]byte(text)))
	b.buf.WriteByte(' ')
	return b.op(OpShowText)
}

// Bytes returns the content written so far.
func (b *Builder) Bytes() []byte { return b.buf.Bytes() }

// Len returns the number of bytes written.
func (b *Builder) Len() int { return b.buf.Len() }
