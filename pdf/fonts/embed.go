package fonts

import (
	"bytes"
	"fmt"
	"math"
	"slices"

	"golang.org/x/image/font/sfnt"
	"golang.org/x/text/encoding/unicode"

	"github.com/georgepadayatti/pdfstamp/pdf/filters"
	"github.com/georgepadayatti/pdfstamp/pdf/generic"
)

// ObjectStore receives the objects of an embedded font. Both the
// document writer and the incremental writer satisfy it.
type ObjectStore interface {
	AddObject(obj generic.PdfObject) generic.Reference
	UpdateObject(num int, obj generic.PdfObject)
}

// bfcharChunk is the maximum number of entries in one beginbfchar block.
const bfcharChunk = 100

type registered struct {
	name string
	font *TrueTypeFont
	ref  generic.Reference
}

// Registry assigns resource names to fonts used on new content and
// writes them as Type0 fonts once drawing is done.
//
// A font's Type0 dictionary is reserved when it is registered, so content
// can refer to it right away. Finish fills in the dictionaries using only
// the glyphs that were encoded in the meantime.
type Registry struct {
	// Compress Flate-encodes the font file and the ToUnicode map.
	Compress bool

	store ObjectStore
	fonts []*registered
}

// NewRegistry creates a registry writing into store.
func NewRegistry(store ObjectStore) *Registry {
	return &Registry{Compress: true, store: store}
}

// Register adds f under resource name and returns the reference of its
// font dictionary. Registering the same name again returns the first
// reference.
func (r *Registry) Register(name string, f *TrueTypeFont) generic.Reference {
	for _, reg := range r.fonts {
		if reg.name == name {
			return reg.ref
		}
	}
	ref := r.store.AddObject(generic.NullObject{})
	r.fonts = append(r.fonts, &registered{name: name, font: f, ref: ref})
	return ref
}

// Get returns the font registered under name.
func (r *Registry) Get(name string) *TrueTypeFont {
	for _, reg := range r.fonts {
		if reg.name == name {
			return reg.font
		}
	}
	return nil
}

// Names returns the registered resource names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.fonts))
	for i, reg := range r.fonts {
		names[i] = reg.name
	}
	return names
}

// Resources returns a resource dictionary with a /Font entry for every
// registered font.
func (r *Registry) Resources() *generic.DictionaryObject {
	fontDict := generic.NewDictionary()
	for _, reg := range r.fonts {
		fontDict.Set(reg.name, reg.ref)
	}
	res := generic.NewDictionary()
	res.Set("Font", fontDict)
	return res
}

// Finish writes the font programs, descriptors, width tables and
// ToUnicode maps of all registered fonts.
func (r *Registry) Finish() error {
	for _, reg := range r.fonts {
		if err := r.embed(reg); err != nil {
			return fmt.Errorf("failed to embed font %s: %w", reg.name, err)
		}
	}
	return nil
}

func (r *Registry) stream(data []byte) (*generic.StreamObject, error) {
	if !r.Compress {
		return generic.NewStream(nil, data), nil
	}
	encoded, err := filters.Flate{}.Encode(data, nil)
	if err != nil {
		return nil, err
	}
	s := generic.NewStream(nil, encoded)
	s.Dictionary.Set("Filter", generic.NameObject("FlateDecode"))
	s.Decoded = data
	return s, nil
}

func (r *Registry) embed(reg *registered) error {
	f := reg.font

	file, err := r.stream(f.Data())
	if err != nil {
		return err
	}
	file.Dictionary.Set("Length1", generic.IntegerObject(len(f.Data())))
	fileRef := r.store.AddObject(file)

	desc := generic.NewDictionary()
	desc.Set("Type", generic.NameObject("FontDescriptor"))
	desc.Set("FontName", generic.NameObject(f.Name()))
	desc.Set("Flags", generic.IntegerObject(32))
	desc.Set("FontBBox", generic.NumberArray(f.bbox[:]...))
	desc.Set("ItalicAngle", generic.IntegerObject(0))
	desc.Set("Ascent", generic.RealObject(math.Round(f.ascent)))
	desc.Set("Descent", generic.RealObject(math.Round(f.descent)))
	desc.Set("CapHeight", generic.RealObject(math.Round(f.capHeight)))
	desc.Set("StemV", generic.IntegerObject(80))
	desc.Set("FontFile2", fileRef)
	descRef := r.store.AddObject(desc)

	sysInfo := generic.NewDictionary()
	sysInfo.Set("Registry", generic.NewLiteralString("Adobe"))
	sysInfo.Set("Ordering", generic.NewLiteralString("Identity"))
	sysInfo.Set("Supplement", generic.IntegerObject(0))

	gids := f.usedGlyphs()

	cid := generic.NewDictionary()
	cid.Set("Type", generic.NameObject("Font"))
	cid.Set("Subtype", generic.NameObject("CIDFontType2"))
	cid.Set("BaseFont", generic.NameObject(f.Name()))
	cid.Set("CIDSystemInfo", sysInfo)
	cid.Set("FontDescriptor", descRef)
	cid.Set("DW", generic.IntegerObject(1000))
	cid.Set("W", f.widthArray(gids))
	cid.Set("CIDToGIDMap", generic.NameObject("Identity"))
	cidRef := r.store.AddObject(cid)

	cmap, err := f.toUnicode(gids)
	if err != nil {
		return err
	}
	cmapStream, err := r.stream(cmap)
	if err != nil {
		return err
	}
	cmapRef := r.store.AddObject(cmapStream)

	type0 := generic.NewDictionary()
	type0.Set("Type", generic.NameObject("Font"))
	type0.Set("Subtype", generic.NameObject("Type0"))
	type0.Set("BaseFont", generic.NameObject(f.Name()))
	type0.Set("Encoding", generic.NameObject("Identity-H"))
	type0.Set("DescendantFonts", generic.NewArray(cidRef))
	type0.Set("ToUnicode", cmapRef)
	r.store.UpdateObject(reg.ref.ObjectNumber, type0)
	return nil
}

func (f *TrueTypeFont) usedGlyphs() []sfnt.GlyphIndex {
	gids := make([]sfnt.GlyphIndex, 0, len(f.used))
	for gid := range f.used {
		gids = append(gids, gid)
	}
	slices.Sort(gids)
	return gids
}

// widthArray builds a /W array, one run per range of consecutive glyphs:
// [first [w1 w2 ...] first [w1 ...] ...].
func (f *TrueTypeFont) widthArray(gids []sfnt.GlyphIndex) generic.ArrayObject {
	out := generic.ArrayObject{}
	var run generic.ArrayObject
	for i, gid := range gids {
		if i == 0 || gid != gids[i-1]+1 {
			if run != nil {
				out = append(out, run)
			}
			out = append(out, generic.IntegerObject(gid))
			run = generic.ArrayObject{}
		}
		run = append(run, generic.IntegerObject(int64(math.Round(f.GlyphWidth(gid)))))
	}
	if run != nil {
		out = append(out, run)
	}
	return out
}

func (f *TrueTypeFont) toUnicode(gids []sfnt.GlyphIndex) ([]byte, error) {
	enc := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder()

	type pair struct {
		gid sfnt.GlyphIndex
		utf []byte
	}
	var pairs []pair
	for _, gid := range gids {
		if gid == 0 {
			continue
		}
		u, err := enc.Bytes([]byte(string(f.used[gid])))
		if err != nil {
			return nil, fmt.Errorf("failed to encode %q: %w", f.used[gid], err)
		}
		pairs = append(pairs, pair{gid: gid, utf: u})
	}

	var buf bytes.Buffer
	buf.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	buf.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	buf.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	buf.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	for start := 0; start < len(pairs); start += bfcharChunk {
		chunk := pairs[start:min(start+bfcharChunk, len(pairs))]
		fmt.Fprintf(&buf, "%d beginbfchar\n", len(chunk))
		for _, p := range chunk {
			fmt.Fprintf(&buf, "<%04X> <%X>\n", uint16(p.gid), p.utf)
		}
		buf.WriteString("endbfchar\n")
	}
	buf.WriteString("endcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return buf.Bytes(), nil
}
