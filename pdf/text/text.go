// Package text provides text styling, wrapping and rendering for content
// streams.
package text

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
	"golang.org/x/text/unicode/norm"

	"github.com/georgepadayatti/pdfstamp/pdf/content"
	"github.com/georgepadayatti/pdfstamp/pdf/fonts"
)

// ErrInvalidColor is returned by ParseColor.
var ErrInvalidColor = errors.New("invalid color")

// TextAlign represents text alignment.
type TextAlign int

const (
	AlignLeft TextAlign = iota
	AlignCenter
	AlignRight
)

// String returns the string representation.
func (a TextAlign) String() string {
	switch a {
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	default:
		return "left"
	}
}

// ParseTextAlign parses a text alignment string.
func ParseTextAlign(s string) TextAlign {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "center", "centre":
		return AlignCenter
	case "right":
		return AlignRight
	default:
		return AlignLeft
	}
}

// Offset returns the x offset of a line of lineWidth inside boxWidth.
func (a TextAlign) Offset(lineWidth, boxWidth float64) float64 {
	switch a {
	case AlignCenter:
		return (boxWidth - lineWidth) / 2
	case AlignRight:
		return boxWidth - lineWidth
	default:
		return 0
	}
}

// Color represents an RGB color.
type Color struct {
	R, G, B float64 // 0.0 to 1.0
}

// Black returns black color.
func Black() Color {
	return Color{0, 0, 0}
}

// RGB creates a color from RGB values (0-255).
func RGB(r, g, b int) Color {
	return Color{
		R: float64(r) / 255.0,
		G: float64(g) / 255.0,
		B: float64(b) / 255.0,
	}
}

func fromRGBA(c color.RGBA) Color {
	return RGB(int(c.R), int(c.G), int(c.B))
}

// ParseColor parses "#2c70ba", "2c70ba", "44,112,186" or a CSS color
// name such as "green".
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if c, ok := colornames.Map[strings.ToLower(s)]; ok {
		return fromRGBA(c), nil
	}

	if parts := strings.Split(s, ","); len(parts) == 3 {
		var v [3]int
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 0 || n > 255 {
				return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
			}
			v[i] = n
		}
		return RGB(v[0], v[1], v[2]), nil
	}

	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return RGB(int(n>>16), int(n>>8&0xFF), int(n&0xFF)), nil
}

// Hex returns the color as "#rrggbb".
func (c Color) Hex() string {
	to8 := func(v float64) int {
		n := int(v*255 + 0.5)
		return max(0, min(255, n))
	}
	return fmt.Sprintf("#%02x%02x%02x", to8(c.R), to8(c.G), to8(c.B))
}

// Normalize returns s in NFC so that precomposed glyphs are used.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

// Style defines how a run of text is drawn.
type Style struct {
	Font fonts.Font
	// Resource is the font's name in the page resources.
	Resource string
	Size     float64
	// Leading is the baseline distance as a multiple of Size.
	Leading float64
	Color   Color
	// FakeBold strokes the glyph outlines to simulate a bold face.
	FakeBold bool
}

// LineHeight returns the distance between baselines.
func (s *Style) LineHeight() float64 {
	leading := s.Leading
	if leading <= 0 {
		leading = 1
	}
	return s.Size * leading
}

// StringWidth returns the width of text in this style.
func (s *Style) StringWidth(text string) float64 {
	return s.Font.StringWidth(text, s.Size)
}

// BaselineOffset returns the distance from the top of a line to its
// baseline. The line height is split in the font's ascent:descent ratio.
func (s *Style) BaselineOffset() float64 {
	ascent := s.Font.Ascent(s.Size)
	extent := ascent - s.Font.Descent(s.Size)
	if extent <= 0 {
		return s.LineHeight()
	}
	return s.LineHeight() * ascent / extent
}

// Wrap breaks text into lines no wider than width. Explicit newlines
// start a new line. A word wider than width is split between runes.
func (s *Style) Wrap(text string, width float64) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}

		current := ""
		for _, word := range words {
			candidate := word
			if current != "" {
				candidate = current + " " + word
			}
			if s.StringWidth(candidate) <= width {
				current = candidate
				continue
			}
			if current != "" {
				lines = append(lines, current)
			}
			if s.StringWidth(word) <= width {
				current = word
				continue
			}
			pieces := s.splitWord(word, width)
			lines = append(lines, pieces[:len(pieces)-1]...)
			current = pieces[len(pieces)-1]
		}
		lines = append(lines, current)
	}
	return lines
}

// splitWord splits word into pieces no wider than width. Every piece
// holds at least one rune.
func (s *Style) splitWord(word string, width float64) []string {
	var pieces []string
	var current []rune
	for _, r := range word {
		if len(current) > 0 && s.StringWidth(string(append(current, r))) > width {
			pieces = append(pieces, string(current))
			current = current[:0:0]
		}
		current = append(current, r)
	}
	return append(pieces, string(current))
}

// Show draws one line of text with its baseline origin at (x, y).
func (s *Style) Show(b *content.Builder, line string, x, y float64) {
	b.BeginText().
		SetFillColor(s.Color.R, s.Color.G, s.Color.B).
		SetFont(s.Resource, s.Size)
	if s.FakeBold {
		b.SetStrokeColor(s.Color.R, s.Color.G, s.Color.B).
			SetLineWidth(s.Size / 30).
			SetTextRenderMode(content.RenderFillAndStroke)
	} else {
		b.SetTextRenderMode(content.RenderFill)
	}
	b.TextPosition(x, y).
		ShowGlyphs(s.Font.Encode(line)).
		EndText()
}
