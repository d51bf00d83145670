package fonts

import (
	"errors"
	"math"
	"strings"
	"testing"

	"golang.org/x/image/font/sfnt"

	"github.com/georgepadayatti/pdfstamp/pdf/generic"
)

// memStore is an in-memory ObjectStore numbering objects from 1.
type memStore struct {
	objects []generic.PdfObject
}

func (s *memStore) AddObject(obj generic.PdfObject) generic.Reference {
	s.objects = append(s.objects, obj)
	return generic.NewReference(len(s.objects), 0)
}

func (s *memStore) UpdateObject(num int, obj generic.PdfObject) {
	s.objects[num-1] = obj
}

func (s *memStore) get(ref generic.PdfObject) generic.PdfObject {
	return s.objects[ref.(generic.Reference).ObjectNumber-1]
}

func loadRegular(t *testing.T) *TrueTypeFont {
	t.Helper()
	f, err := GoRegular()
	if err != nil {
		t.Fatalf("GoRegular failed: %v", err)
	}
	return f
}

func TestLoadGoFonts(t *testing.T) {
	regular := loadRegular(t)
	bold, err := GoBold()
	if err != nil {
		t.Fatalf("GoBold failed: %v", err)
	}

	if regular.Name() == "" || bold.Name() == "" {
		t.Fatal("Expected non-empty font names")
	}
	if regular.Name() == bold.Name() {
		t.Errorf("Expected different names, both are %s", regular.Name())
	}
	if regular.NumGlyphs() == 0 {
		t.Error("Expected glyphs in font")
	}
	if regular.Ascent(10) <= 0 {
		t.Errorf("Expected positive ascent, got %f", regular.Ascent(10))
	}
	if regular.Descent(10) >= 0 {
		t.Errorf("Expected negative descent, got %f", regular.Descent(10))
	}
}

func TestLoadTrueTypeInvalid(t *testing.T) {
	_, err := LoadTrueType([]byte("not a font"))
	if !errors.Is(err, ErrInvalidFont) {
		t.Errorf("Expected ErrInvalidFont, got %v", err)
	}
	if _, err := LoadTrueTypeFile("/nonexistent/font.ttf"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestCyrillicCoverage(t *testing.T) {
	f := loadRegular(t)
	text := "ПОДПИСАНО ЭЛЕКТРОННОЙ ПОДПИСЬЮ Нижеприведённая №"
	if missing := f.Missing(text); len(missing) != 0 {
		t.Errorf("Expected full coverage, missing %q", string(missing))
	}
	if f.HasGlyph('\uE000') {
		t.Error("Expected no glyph for private use code point")
	}
}

func TestStringWidth(t *testing.T) {
	f := loadRegular(t)

	one := f.StringWidth("A", 10)
	if one <= 0 {
		t.Fatalf("Expected positive width, got %f", one)
	}
	if two := f.StringWidth("AA", 10); math.Abs(two-2*one) > 1e-9 {
		t.Errorf("Expected width %f, got %f", 2*one, two)
	}
	if scaled := f.StringWidth("A", 20); math.Abs(scaled-2*one) > 1e-9 {
		t.Errorf("Expected width to scale with size, got %f", scaled)
	}
	if w := f.StringWidth("", 10); w != 0 {
		t.Errorf("Expected zero width, got %f", w)
	}
}

func TestEncode(t *testing.T) {
	f := loadRegular(t)

	encoded := f.Encode("AЖ")
	if len(encoded) != 4 {
		t.Fatalf("Expected 4 bytes, got %d", len(encoded))
	}
	gidA := int(encoded[0])<<8 | int(encoded[1])
	if gidA != int(f.GlyphIndex('A')) || gidA == 0 {
		t.Errorf("Expected gid %d, got %d", f.GlyphIndex('A'), gidA)
	}
	if len(f.usedGlyphs()) != 2 {
		t.Errorf("Expected 2 used glyphs, got %d", len(f.usedGlyphs()))
	}
}

func TestWidthArrayRuns(t *testing.T) {
	f := loadRegular(t)
	gids := f.usedGlyphs()
	if len(gids) != 0 {
		t.Fatalf("Expected no used glyphs, got %d", len(gids))
	}

	first := f.GlyphIndex('A')
	w := f.widthArray([]sfnt.GlyphIndex{first, first + 1, first + 5})
	if len(w) != 4 {
		t.Fatalf("Expected 2 runs (4 items), got %d: %v", len(w), w)
	}
	if run, ok := w[1].(generic.ArrayObject); !ok || len(run) != 2 {
		t.Errorf("Expected first run of 2 widths, got %v", w[1])
	}
	if start, ok := w[2].(generic.IntegerObject); !ok || int(start) != int(first)+5 {
		t.Errorf("Expected second run to start at %d, got %v", int(first)+5, w[2])
	}
}

func TestRegistryEmbedsType0(t *testing.T) {
	store := &memStore{}
	reg := NewRegistry(store)
	f := loadRegular(t)

	ref := reg.Register("StampRegular", f)
	if again := reg.Register("StampRegular", f); again != ref {
		t.Errorf("Expected same reference %v, got %v", ref, again)
	}
	if reg.Get("StampRegular") != f || reg.Get("Other") != nil {
		t.Error("Unexpected Get result")
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "StampRegular" {
		t.Errorf("Expected [StampRegular], got %v", names)
	}
	if _, ok := store.get(ref).(generic.NullObject); !ok {
		t.Errorf("Expected placeholder before Finish, got %T", store.get(ref))
	}

	f.Encode("Ж A")
	if err := reg.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	type0, ok := store.get(ref).(*generic.DictionaryObject)
	if !ok {
		t.Fatalf("Expected Type0 dictionary, got %T", store.get(ref))
	}
	if type0.GetName("Subtype") != "Type0" || type0.GetName("Encoding") != "Identity-H" {
		t.Errorf("Unexpected Type0 dictionary %v", type0)
	}

	cid := store.get(type0.GetArray("DescendantFonts")[0]).(*generic.DictionaryObject)
	if cid.GetName("Subtype") != "CIDFontType2" || cid.GetName("CIDToGIDMap") != "Identity" {
		t.Errorf("Unexpected CIDFont %v", cid)
	}
	if len(cid.GetArray("W")) == 0 {
		t.Error("Expected width array")
	}

	desc := store.get(cid.Get("FontDescriptor")).(*generic.DictionaryObject)
	file := store.get(desc.Get("FontFile2")).(*generic.StreamObject)
	if n, _ := file.Dictionary.GetInt("Length1"); int(n) != len(f.Data()) {
		t.Errorf("Expected Length1 %d, got %d", len(f.Data()), n)
	}

	cmap := string(store.get(type0.Get("ToUnicode")).(*generic.StreamObject).Content())
	for _, want := range []string{"3 beginbfchar", " <0416>\n", " <0041>\n", " <0020>\n", "endcmap"} {
		if !strings.Contains(cmap, want) {
			t.Errorf("Expected ToUnicode to contain %q:\n%s", want, cmap)
		}
	}

	res := reg.Resources()
	if res.GetDict("Font").Get("StampRegular") != ref {
		t.Errorf("Unexpected resources %v", res)
	}
}

func TestToUnicodeChunks(t *testing.T) {
	f := loadRegular(t)
	var sb strings.Builder
	for r := 'A'; r < 'A'+26; r++ {
		sb.WriteRune(r)
	}
	for r := 'a'; r < 'a'+26; r++ {
		sb.WriteRune(r)
	}
	for r := 'А'; r <= 'я'; r++ {
		sb.WriteRune(r)
	}
	f.Encode(sb.String())

	gids := f.usedGlyphs()
	if len(gids) <= bfcharChunk {
		t.Fatalf("Expected more than %d glyphs, got %d", bfcharChunk, len(gids))
	}
	cmap, err := f.toUnicode(gids)
	if err != nil {
		t.Fatalf("toUnicode failed: %v", err)
	}
	blocks := (len(gids) + bfcharChunk - 1) / bfcharChunk
	if got := strings.Count(string(cmap), "beginbfchar"); got != blocks {
		t.Errorf("Expected %d bfchar blocks for %d glyphs, got %d", blocks, len(gids), got)
	}
	if !strings.Contains(string(cmap), "100 beginbfchar\n") {
		t.Errorf("Expected a full chunk:\n%s", cmap)
	}
}
