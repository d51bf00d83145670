package generic

import (
	"errors"
	"testing"
)

func TestParseScalars(t *testing.T) {
	tests := []struct {
		input    string
		expected PdfObject
	}{
		{"null", NullObject{}},
		{"true", BooleanObject(true)},
		{"false", BooleanObject(false)},
		{"42", IntegerObject(42)},
		{"-17", IntegerObject(-17)},
		{"+5", IntegerObject(5)},
		{"3.25", RealObject(3.25)},
		{".5", RealObject(0.5)},
		{"-.5", RealObject(-0.5)},
		{"/Name", NameObject("Name")},
		{"/A#20B", NameObject("A B")},
		{"12 0 R", NewReference(12, 0)},
	}

	for _, tt := range tests {
		obj, err := NewParser([]byte(tt.input)).ParseObject()
		if err != nil {
			t.Errorf("ParseObject(%q) failed: %v", tt.input, err)
			continue
		}
		if obj != tt.expected {
			t.Errorf("ParseObject(%q) = %#v, want %#v", tt.input, obj, tt.expected)
		}
	}
}

func TestParseStrings(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		hex      bool
	}{
		{"(Hello)", "Hello", false},
		{"(a (nested) b)", "a (nested) b", false},
		{`(esc\(\)\\\n)`, "esc()\\\n", false},
		{`(\101\102)`, "AB", false},
		{"(line\\\ncontinued)", "linecontinued", false},
		{"<48656C6C6F>", "Hello", true},
		{"<48 65 6c>", "Hel", true},
		{"<7>", "p", true},
	}

	for _, tt := range tests {
		obj, err := NewParser([]byte(tt.input)).ParseObject()
		if err != nil {
			t.Fatalf("ParseObject(%q) failed: %v", tt.input, err)
		}
		s, ok := obj.(*StringObject)
		if !ok {
			t.Fatalf("Expected StringObject, got %T", obj)
		}
		if string(s.Value) != tt.expected || s.IsHex != tt.hex {
			t.Errorf("ParseObject(%q) = %q (hex %v), want %q", tt.input, s.Value, s.IsHex, tt.expected)
		}
	}
}

func TestParseArrayWithNumbersAndReferences(t *testing.T) {
	obj, err := NewParser([]byte("[0 0 612 792 3 0 R [1 2] /N]")).ParseObject()
	if err != nil {
		t.Fatalf("ParseObject failed: %v", err)
	}
	arr := obj.(ArrayObject)
	if len(arr) != 7 {
		t.Fatalf("Expected 7 elements, got %d: %v", len(arr), arr)
	}
	if arr[3] != IntegerObject(792) {
		t.Errorf("Expected 792, got %v", arr[3])
	}
	if arr[4] != NewReference(3, 0) {
		t.Errorf("Expected reference, got %v", arr[4])
	}
	if inner, ok := arr[5].(ArrayObject); !ok || len(inner) != 2 {
		t.Errorf("Expected nested array, got %v", arr[5])
	}
}

func TestParseDictionary(t *testing.T) {
	input := `<< /Type /Page /Parent 2 0 R % comment
		/MediaBox [0 0 595 842] /Resources << /Font << /F1 5 0 R >> >> /Empty <> >>`
	obj, err := NewParser([]byte(input)).ParseObject()
	if err != nil {
		t.Fatalf("ParseObject failed: %v", err)
	}
	d := obj.(*DictionaryObject)
	if d.GetName("Type") != "Page" {
		t.Errorf("Expected Page, got %s", d.GetName("Type"))
	}
	if d.Get("Parent") != NewReference(2, 0) {
		t.Errorf("Unexpected parent %v", d.Get("Parent"))
	}
	font := d.GetDict("Resources").GetDict("Font")
	if font == nil || font.Get("F1") != NewReference(5, 0) {
		t.Error("Nested font dictionary not parsed")
	}
	if s, ok := d.Get("Empty").(*StringObject); !ok || len(s.Value) != 0 {
		t.Errorf("Expected empty hex string, got %v", d.Get("Empty"))
	}
}

func TestParseErrors(t *testing.T) {
	inputs := []string{"", "(unterminated", "<< /A 1", "[1 2", "<< 1 2 >>", "<zz>", "endobj"}
	for _, input := range inputs {
		if _, err := NewParser([]byte(input)).ParseObject(); err == nil {
			t.Errorf("Expected error for %q", input)
		}
	}

	_, err := NewParser([]byte("<< /A 1")).ParseObject()
	if !errors.Is(err, ErrInvalidDictionary) {
		t.Errorf("Expected ErrInvalidDictionary, got %v", err)
	}
}

func TestParseIndirectObject(t *testing.T) {
	obj, err := NewParser([]byte("7 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")).ParseIndirectObject()
	if err != nil {
		t.Fatalf("ParseIndirectObject failed: %v", err)
	}
	if obj.ObjectNumber != 7 || obj.GenerationNumber != 0 {
		t.Errorf("Unexpected header %d %d", obj.ObjectNumber, obj.GenerationNumber)
	}
	if obj.Object.(*DictionaryObject).GetName("Type") != "Catalog" {
		t.Error("Expected catalog dictionary")
	}
}

func TestParseStream(t *testing.T) {
	input := "4 0 obj\n<< /Length 11 >>\nstream\nBT (hi) Tj\nendstream\nendobj"
	obj, err := NewParser([]byte(input)).ParseIndirectObject()
	if err != nil {
		t.Fatalf("ParseIndirectObject failed: %v", err)
	}
	s, ok := obj.Object.(*StreamObject)
	if !ok {
		t.Fatalf("Expected stream, got %T", obj.Object)
	}
	if string(s.Data) != "BT (hi) Tj\n" {
		t.Errorf("Unexpected stream data %q", s.Data)
	}
}

func TestParseStreamIndirectLength(t *testing.T) {
	input := "4 0 obj\n<< /Length 9 0 R >>\nstream\r\nq 1 0 0 1 0 0 cm Q\r\nendstream\nendobj"

	p := NewParser([]byte(input))
	p.ResolveLength = func(ref Reference) (int64, bool) {
		if ref.ObjectNumber == 9 {
			return 18, true
		}
		return 0, false
	}
	obj, err := p.ParseIndirectObject()
	if err != nil {
		t.Fatalf("ParseIndirectObject failed: %v", err)
	}
	if got := string(obj.Object.(*StreamObject).Data); got != "q 1 0 0 1 0 0 cm Q" {
		t.Errorf("Unexpected data with resolver: %q", got)
	}

	// Without a resolver the parser falls back to scanning for endstream.
	obj, err = NewParser([]byte(input)).ParseIndirectObject()
	if err != nil {
		t.Fatalf("ParseIndirectObject failed: %v", err)
	}
	if got := string(obj.Object.(*StreamObject).Data); got != "q 1 0 0 1 0 0 cm Q" {
		t.Errorf("Unexpected data without resolver: %q", got)
	}
}

func TestParseStreamWrongLength(t *testing.T) {
	input := "4 0 obj\n<< /Length 3 >>\nstream\nabcdef\nendstream\nendobj"
	obj, err := NewParser([]byte(input)).ParseIndirectObject()
	if err != nil {
		t.Fatalf("ParseIndirectObject failed: %v", err)
	}
	if got := string(obj.Object.(*StreamObject).Data); got != "abcdef" {
		t.Errorf("Expected recovery to full data, got %q", got)
	}
}

func TestParserPositioning(t *testing.T) {
	data := []byte("xref garbage 1 0 obj 5 endobj")
	p := NewParserAt(data, 13)
	obj, err := p.ParseIndirectObject()
	if err != nil {
		t.Fatalf("ParseIndirectObject failed: %v", err)
	}
	if obj.Object != IntegerObject(5) {
		t.Errorf("Expected 5, got %v", obj.Object)
	}
	if p.Pos() != int64(len(data)) {
		t.Errorf("Expected parser at end, got %d", p.Pos())
	}
	if err := NewParser([]byte("trailer")).ExpectKeyword("xref"); err == nil {
		t.Error("Expected keyword mismatch")
	}
}

func TestParserSetPos(t *testing.T) {
	data := []byte("1 2 3")
	tests := []struct {
		offset   int64
		expected int64
		token    string
	}{
		{2, 2, "2"},
		{-4, 0, "1"},
		{99, int64(len(data)), ""},
		{4, 4, "3"},
	}
	p := NewParser(data)
	for _, tt := range tests {
		p.SetPos(tt.offset)
		if p.Pos() != tt.expected {
			t.Errorf("SetPos(%d): expected position %d, got %d", tt.offset, tt.expected, p.Pos())
		}
		if tok := p.Token(); tok != tt.token {
			t.Errorf("SetPos(%d): expected token %q, got %q", tt.offset, tt.token, tok)
		}
	}
}

func TestCharacterClasses(t *testing.T) {
	tests := []struct {
		b                    byte
		white, delim, normal bool
	}{
		{' ', true, false, false},
		{'\n', true, false, false},
		{0, true, false, false},
		{'/', false, true, false},
		{'%', false, true, false},
		{'<', false, true, false},
		{'a', false, false, true},
		{'9', false, false, true},
		{'.', false, false, true},
	}
	for _, tt := range tests {
		if got := IsWhitespace(tt.b); got != tt.white {
			t.Errorf("IsWhitespace(%q): expected %v, got %v", tt.b, tt.white, got)
		}
		if got := IsDelimiter(tt.b); got != tt.delim {
			t.Errorf("IsDelimiter(%q): expected %v, got %v", tt.b, tt.delim, got)
		}
		if got := IsRegular(tt.b); got != tt.normal {
			t.Errorf("IsRegular(%q): expected %v, got %v", tt.b, tt.normal, got)
		}
	}
}
