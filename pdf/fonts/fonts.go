// Package fonts loads TrueType fonts, measures text with them and embeds
// them as Type0 (CID) fonts with Identity-H encoding.
package fonts

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Common errors
var (
	ErrInvalidFont = errors.New("invalid font")
)

// Font measures and encodes text for a content stream.
type Font interface {
	// Name returns the PostScript name.
	Name() string
	// Encode converts text to the byte string shown by Tj.
	Encode(s string) []byte
	// StringWidth returns the advance width of s at fontSize, in points.
	StringWidth(s string, fontSize float64) float64
	// Ascent and Descent are in points at fontSize; Descent is negative.
	Ascent(fontSize float64) float64
	Descent(fontSize float64) float64
}

// TrueTypeFont is a parsed TrueType font. Glyph metrics are kept in
// glyph space (1000 units per em). A TrueTypeFont remembers every glyph
// it has encoded so that the embedded width table and ToUnicode map cover
// exactly the text that was drawn.
type TrueTypeFont struct {
	name string
	data []byte
	font *sfnt.Font
	upem fixed.Int26_6
	buf  sfnt.Buffer

	ascent    float64
	descent   float64
	capHeight float64
	bbox      [4]float64

	glyphs map[rune]sfnt.GlyphIndex
	widths map[sfnt.GlyphIndex]float64
	used   map[sfnt.GlyphIndex]rune
}

// LoadTrueType parses TrueType font data.
func LoadTrueType(data []byte) (*TrueTypeFont, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFont, err)
	}
	upem := f.UnitsPerEm()
	if upem == 0 {
		return nil, fmt.Errorf("%w: zero units per em", ErrInvalidFont)
	}

	t := &TrueTypeFont{
		data:   data,
		font:   f,
		upem:   fixed.I(int(upem)),
		glyphs: make(map[rune]sfnt.GlyphIndex),
		widths: make(map[sfnt.GlyphIndex]float64),
		used:   make(map[sfnt.GlyphIndex]rune),
	}

	name, err := f.Name(&t.buf, sfnt.NameIDPostScript)
	if err != nil || name == "" {
		name, _ = f.Name(&t.buf, sfnt.NameIDFull)
	}
	t.name = sanitizeName(name)

	m, err := f.Metrics(&t.buf, t.upem, font.HintingNone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFont, err)
	}
	t.ascent = t.toGlyphSpace(m.Ascent)
	t.descent = -t.toGlyphSpace(m.Descent)
	t.capHeight = t.toGlyphSpace(m.CapHeight)
	if t.capHeight == 0 {
		t.capHeight = t.ascent
	}

	b, err := f.Bounds(&t.buf, t.upem, font.HintingNone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFont, err)
	}
	// sfnt's y axis points down.
	t.bbox = [4]float64{
		t.toGlyphSpace(b.Min.X), -t.toGlyphSpace(b.Max.Y),
		t.toGlyphSpace(b.Max.X), -t.toGlyphSpace(b.Min.Y),
	}
	return t, nil
}

// LoadTrueTypeFile reads and parses a TrueType file.
func LoadTrueTypeFile(path string) (*TrueTypeFont, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	f, err := LoadTrueType(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return f, nil
}

// GoRegular returns the Go Regular font. It covers Latin, Greek and
// Cyrillic.
func GoRegular() (*TrueTypeFont, error) { return LoadTrueType(goregular.TTF) }

// GoBold returns the Go Bold font.
func GoBold() (*TrueTypeFont, error) { return LoadTrueType(gobold.TTF) }

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r > ' ' && r < 0x7F && !strings.ContainsRune("()<>[]{}/%#", r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "EmbeddedFont"
	}
	return b.String()
}

func (f *TrueTypeFont) toGlyphSpace(v fixed.Int26_6) float64 {
	return float64(v) * 1000 / float64(f.upem)
}

// Name implements Font.
func (f *TrueTypeFont) Name() string { return f.name }

// Data returns the raw font file.
func (f *TrueTypeFont) Data() []byte { return f.data }

// NumGlyphs returns the number of glyphs in the font.
func (f *TrueTypeFont) NumGlyphs() int { return f.font.NumGlyphs() }

// GlyphIndex maps r to a glyph. Zero means the font has no glyph for r.
func (f *TrueTypeFont) GlyphIndex(r rune) sfnt.GlyphIndex {
	if gid, ok := f.glyphs[r]; ok {
		return gid
	}
	gid, err := f.font.GlyphIndex(&f.buf, r)
	if err != nil {
		gid = 0
	}
	f.glyphs[r] = gid
	return gid
}

// HasGlyph reports whether the font can draw r.
func (f *TrueTypeFont) HasGlyph(r rune) bool { return f.GlyphIndex(r) != 0 }

// GlyphWidth returns the advance of gid in glyph space.
func (f *TrueTypeFont) GlyphWidth(gid sfnt.GlyphIndex) float64 {
	if w, ok := f.widths[gid]; ok {
		return w
	}
	adv, err := f.font.GlyphAdvance(&f.buf, gid, f.upem, font.HintingNone)
	w := 0.0
	if err == nil {
		w = f.toGlyphSpace(adv)
	}
	f.widths[gid] = w
	return w
}

// Encode implements Font: two bytes per glyph id (Identity-H).
func (f *TrueTypeFont) Encode(s string) []byte {
	out := make([]byte, 0, 2*len(s))
	for _, r := range s {
		gid := f.GlyphIndex(r)
		if _, seen := f.used[gid]; !seen {
			f.used[gid] = r
		}
		out = append(out, byte(gid>>8), byte(gid))
	}
	return out
}

// StringWidth implements Font.
func (f *TrueTypeFont) StringWidth(s string, fontSize float64) float64 {
	total := 0.0
	for _, r := range s {
		total += f.GlyphWidth(f.GlyphIndex(r))
	}
	return total * fontSize / 1000
}

// Ascent implements Font.
func (f *TrueTypeFont) Ascent(fontSize float64) float64 { return f.ascent * fontSize / 1000 }

// Descent implements Font.
func (f *TrueTypeFont) Descent(fontSize float64) float64 { return f.descent * fontSize / 1000 }

// Missing returns the runes of s the font has no glyph for.
func (f *TrueTypeFont) Missing(s string) []rune {
	var out []rune
	for _, r := range s {
		if r != ' ' && !f.HasGlyph(r) {
			out = append(out, r)
		}
	}
	return out
}
