package text

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/georgepadayatti/pdfstamp/pdf/content"
	"github.com/georgepadayatti/pdfstamp/pdf/fonts"
)

// monoFont gives every rune an advance of half the font size.
type monoFont struct{}

func (monoFont) Name() string { return "Mono" }

func (monoFont) Encode(s string) []byte {
	out := make([]byte, 0, 2*len(s))
	for _, r := range s {
		out = append(out, byte(r>>8), byte(r))
	}
	return out
}

func (monoFont) StringWidth(s string, size float64) float64 {
	return float64(utf8.RuneCountInString(s)) * size / 2
}

func (monoFont) Ascent(size float64) float64  { return 0.8 * size }
func (monoFont) Descent(size float64) float64 { return -0.2 * size }

var _ fonts.Font = monoFont{}

// monoStyle makes each rune exactly 5pt wide.
func monoStyle() *Style {
	return &Style{Font: monoFont{}, Resource: "F1", Size: 10, Color: Black()}
}

func TestTextAlignString(t *testing.T) {
	tests := []struct {
		align    TextAlign
		expected string
	}{
		{AlignLeft, "left"},
		{AlignCenter, "center"},
		{AlignRight, "right"},
		{TextAlign(99), "left"},
	}

	for _, tt := range tests {
		if got := tt.align.String(); got != tt.expected {
			t.Errorf("TextAlign(%d).String() = %q, want %q", tt.align, got, tt.expected)
		}
	}
}

func TestParseTextAlign(t *testing.T) {
	tests := []struct {
		input    string
		expected TextAlign
	}{
		{"left", AlignLeft},
		{"LEFT", AlignLeft},
		{"center", AlignCenter},
		{" centre ", AlignCenter},
		{"right", AlignRight},
		{"unknown", AlignLeft},
	}

	for _, tt := range tests {
		if got := ParseTextAlign(tt.input); got != tt.expected {
			t.Errorf("ParseTextAlign(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestAlignOffset(t *testing.T) {
	if got := AlignLeft.Offset(40, 100); got != 0 {
		t.Errorf("Expected 0, got %f", got)
	}
	if got := AlignCenter.Offset(40, 100); got != 30 {
		t.Errorf("Expected 30, got %f", got)
	}
	if got := AlignRight.Offset(40, 100); got != 60 {
		t.Errorf("Expected 60, got %f", got)
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		input string
		want  Color
	}{
		{"#2c70ba", RGB(44, 112, 186)},
		{"2C70BA", RGB(44, 112, 186)},
		{"44, 112, 186", RGB(44, 112, 186)},
		{"lime", RGB(0, 255, 0)},
		{"Green", RGB(0, 128, 0)},
		{"black", Black()},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.input)
		if err != nil {
			t.Errorf("ParseColor(%q) failed: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseColor(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	for _, bad := range []string{"", "#12345", "zzzzzz", "1,2", "1,2,300", "notacolor"} {
		if _, err := ParseColor(bad); !errors.Is(err, ErrInvalidColor) {
			t.Errorf("ParseColor(%q): expected ErrInvalidColor, got %v", bad, err)
		}
	}
}

func TestColorHex(t *testing.T) {
	for _, s := range []string{"#2c70ba", "#00ff00", "#000000", "#ffffff"} {
		c, err := ParseColor(s)
		if err != nil {
			t.Fatalf("ParseColor(%q) failed: %v", s, err)
		}
		if got := c.Hex(); got != s {
			t.Errorf("Expected %s, got %s", s, got)
		}
	}
}

func TestNormalize(t *testing.T) {
	decomposed := "Нижеприведе\u0308нная"
	got := Normalize(decomposed)
	if got != "Нижеприведённая" {
		t.Errorf("Expected precomposed text, got %q", got)
	}
	if utf8.RuneCountInString(got) != utf8.RuneCountInString(decomposed)-1 {
		t.Errorf("Expected one rune fewer after NFC")
	}
}

func TestLineHeight(t *testing.T) {
	s := monoStyle()
	if got := s.LineHeight(); got != 10 {
		t.Errorf("Expected default leading 1.0 (10), got %f", got)
	}
	s.Leading = 1.5
	if got := s.LineHeight(); got != 15 {
		t.Errorf("Expected 15, got %f", got)
	}
	if got := s.BaselineOffset(); got != 12 {
		t.Errorf("Expected baseline offset 12, got %f", got)
	}
}

func TestWrap(t *testing.T) {
	s := monoStyle()
	tests := []struct {
		name  string
		text  string
		width float64
		want  []string
	}{
		{"fits", "Since: 1983", 100, []string{"Since: 1983"}},
		// 5 runes per 25pt line
		{"by word", "aa bb cc dd", 25, []string{"aa bb", "cc dd"}},
		{"exact", "abcde", 25, []string{"abcde"}},
		{"long word", "abcdefghijkl", 25, []string{"abcde", "fghij", "kl"}},
		{"long word after short", "x abcdefg yz", 25, []string{"x", "abcde", "fg yz"}},
		{"newline", "one\ntwo", 100, []string{"one", "two"}},
		{"empty", "", 100, []string{""}},
		{"collapses spaces", "a   b", 100, []string{"a b"}},
		{"zero width", "ab", 0, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Wrap(tt.text, tt.width)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Wrap mismatch (-want +got):\n%s", diff)
			}
			for _, line := range got {
				if tt.width > 0 && s.StringWidth(line) > tt.width {
					t.Errorf("Line %q exceeds width %f", line, tt.width)
				}
			}
		})
	}
}

func TestShow(t *testing.T) {
	s := monoStyle()
	s.Color = RGB(255, 0, 0)

	b := content.NewBuilder()
	s.Show(b, "A", 15, 700)
	want := "BT\n1 0 0 rg\n/F1 10 Tf\n0 Tr\n15 700 Td\n<0041> Tj\nET\n"
	if got := string(b.Bytes()); got != want {
		t.Errorf("Expected:\n%s\nGot:\n%s", want, got)
	}
}

func TestShowFakeBold(t *testing.T) {
	s := monoStyle()
	s.FakeBold = true

	b := content.NewBuilder()
	s.Show(b, "A", 0, 0)
	got := string(b.Bytes())
	for _, want := range []string{"0 0 0 RG\n", "0.3333 w\n", "2 Tr\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in:\n%s", want, got)
		}
	}
}
