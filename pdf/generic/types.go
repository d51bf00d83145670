// Package generic provides the PDF object model shared by the reader and
// the writers.
package generic

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
)

// PdfObject is implemented by every PDF value.
type PdfObject interface {
	// Write serializes the object in PDF syntax.
	Write(w io.Writer) error
	// Clone returns a deep copy.
	Clone() PdfObject
}

// Reference is an indirect reference ("12 0 R").
type Reference struct {
	ObjectNumber     int
	GenerationNumber int
}

// NewReference creates a new reference.
func NewReference(objNum, genNum int) Reference {
	return Reference{ObjectNumber: objNum, GenerationNumber: genNum}
}

// Write implements PdfObject.
func (r Reference) Write(w io.Writer) error {
	_, err := io.WriteString(w, r.String())
	return err
}

// Clone implements PdfObject.
func (r Reference) Clone() PdfObject { return r }

// IsZero reports whether the reference points nowhere.
func (r Reference) IsZero() bool { return r.ObjectNumber == 0 }

func (r Reference) String() string {
	return strconv.Itoa(r.ObjectNumber) + " " + strconv.Itoa(r.GenerationNumber) + " R"
}

// IndirectObject is an object definition ("12 0 obj ... endobj").
type IndirectObject struct {
	ObjectNumber     int
	GenerationNumber int
	Object           PdfObject
}

// NewIndirectObject creates a new indirect object.
func NewIndirectObject(objNum, genNum int, obj PdfObject) *IndirectObject {
	return &IndirectObject{ObjectNumber: objNum, GenerationNumber: genNum, Object: obj}
}

// Write implements PdfObject.
func (i *IndirectObject) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%d %d obj\n", i.ObjectNumber, i.GenerationNumber); err != nil {
		return err
	}
	obj := i.Object
	if obj == nil {
		obj = NullObject{}
	}
	if err := obj.Write(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\nendobj\n")
	return err
}

// Clone implements PdfObject.
func (i *IndirectObject) Clone() PdfObject {
	c := &IndirectObject{ObjectNumber: i.ObjectNumber, GenerationNumber: i.GenerationNumber}
	if i.Object != nil {
		c.Object = i.Object.Clone()
	}
	return c
}

// Reference returns a reference to this object.
func (i *IndirectObject) Reference() Reference {
	return Reference{ObjectNumber: i.ObjectNumber, GenerationNumber: i.GenerationNumber}
}

// NullObject is the PDF null.
type NullObject struct{}

// Write implements PdfObject.
func (NullObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, "null")
	return err
}

// Clone implements PdfObject.
func (NullObject) Clone() PdfObject { return NullObject{} }

// BooleanObject is a PDF boolean.
type BooleanObject bool

// Write implements PdfObject.
func (b BooleanObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatBool(bool(b)))
	return err
}

// Clone implements PdfObject.
func (b BooleanObject) Clone() PdfObject { return b }

// IntegerObject is a PDF integer.
type IntegerObject int64

// Write implements PdfObject.
func (i IntegerObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatInt(int64(i), 10))
	return err
}

// Clone implements PdfObject.
func (i IntegerObject) Clone() PdfObject { return i }

// RealObject is a PDF real number.
type RealObject float64

// Write implements PdfObject.
func (r RealObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, FormatNumber(float64(r)))
	return err
}

// Clone implements PdfObject.
func (r RealObject) Clone() PdfObject { return r }

// FormatNumber formats a coordinate or size the way content streams expect
// it: at most four decimals, no exponent, no trailing zeros.
func FormatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	v = math.Round(v*10000) / 10000
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// NameObject is a PDF name, stored without the leading slash.
type NameObject string

// Write implements PdfObject.
func (n NameObject) Write(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < '!' || c > '~' || c == '#' || IsDelimiter(c) {
			fmt.Fprintf(&buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Clone implements PdfObject.
func (n NameObject) Clone() PdfObject { return n }

func (n NameObject) String() string { return string(n) }

// StringObject is a PDF string, literal or hexadecimal.
type StringObject struct {
	Value []byte
	IsHex bool
}

// NewLiteralString creates a literal string.
func NewLiteralString(s string) *StringObject {
	return &StringObject{Value: []byte(s)}
}

// NewHexString creates a hex string.
func NewHexString(data []byte) *StringObject {
	return &StringObject{Value: data, IsHex: true}
}

// NewTextString creates a text string, using UTF-16BE with a BOM when the
// text does not fit in a single byte per character.
func NewTextString(s string) *StringObject {
	ascii := true
	for _, r := range s {
		if r > 0x7E {
			ascii = false
			break
		}
	}
	if ascii {
		return NewLiteralString(s)
	}
	buf := []byte{0xFE, 0xFF}
	for _, u := range utf16Units(s) {
		buf = append(buf, byte(u>>8), byte(u))
	}
	return &StringObject{Value: buf}
}

// Write implements PdfObject.
func (s *StringObject) Write(w io.Writer) error {
	if s.IsHex {
		_, err := fmt.Fprintf(w, "<%s>", hex.EncodeToString(s.Value))
		return err
	}
	_, err := w.Write(EscapeLiteral(s.Value))
	return err
}

// Clone implements PdfObject.
func (s *StringObject) Clone() PdfObject {
	return &StringObject{Value: bytes.Clone(s.Value), IsHex: s.IsHex}
}

// Text decodes the string as a PDF text string.
func (s *StringObject) Text() string {
	if len(s.Value) >= 2 && s.Value[0] == 0xFE && s.Value[1] == 0xFF {
		units := make([]uint16, 0, len(s.Value)/2)
		for i := 2; i+1 < len(s.Value); i += 2 {
			units = append(units, uint16(s.Value[i])<<8|uint16(s.Value[i+1]))
		}
		return decodeUTF16(units)
	}
	return string(s.Value)
}

// EscapeLiteral renders data as a parenthesized literal string.
func EscapeLiteral(data []byte) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, '(')
	for _, b := range data {
		switch b {
		case '\\', '(', ')':
			out = append(out, '\\', b)
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		default:
			if b < 0x20 || b > 0x7E {
				out = append(out, fmt.Sprintf("\\%03o", b)...)
			} else {
				out = append(out, b)
			}
		}
	}
	return append(out, ')')
}

// ArrayObject is a PDF array.
type ArrayObject []PdfObject

// NewArray creates a new array.
func NewArray(items ...PdfObject) ArrayObject {
	return ArrayObject(items)
}

// Write implements PdfObject.
func (a ArrayObject) Write(w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i, item := range a {
		if i > 0 {
			if _, err := io.WriteString(w, " "); err != nil {
				return err
			}
		}
		if err := item.Write(w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]")
	return err
}

// Clone implements PdfObject.
func (a ArrayObject) Clone() PdfObject {
	c := make(ArrayObject, len(a))
	for i, item := range a {
		c[i] = item.Clone()
	}
	return c
}

// NumberArray builds an array of reals.
func NumberArray(values ...float64) ArrayObject {
	arr := make(ArrayObject, len(values))
	for i, v := range values {
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			arr[i] = IntegerObject(int64(v))
		} else {
			arr[i] = RealObject(v)
		}
	}
	return arr
}

// DictionaryObject is a PDF dictionary. Keys keep their insertion order
// so that serialized output is stable.
type DictionaryObject struct {
	entries map[string]PdfObject
	order   []string
}

// NewDictionary creates an empty dictionary.
func NewDictionary() *DictionaryObject {
	return &DictionaryObject{entries: make(map[string]PdfObject)}
}

// Write implements PdfObject.
func (d *DictionaryObject) Write(w io.Writer) error {
	if _, err := io.WriteString(w, "<<"); err != nil {
		return err
	}
	for _, key := range d.order {
		if _, err := io.WriteString(w, " "); err != nil {
			return err
		}
		if err := NameObject(key).Write(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, " "); err != nil {
			return err
		}
		if err := d.entries[key].Write(w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, " >>")
	return err
}

// Clone implements PdfObject.
func (d *DictionaryObject) Clone() PdfObject {
	c := NewDictionary()
	for _, key := range d.order {
		c.Set(key, d.entries[key].Clone())
	}
	return c
}

// Set stores value under key. A nil value is stored as null.
func (d *DictionaryObject) Set(key string, value PdfObject) {
	if value == nil {
		value = NullObject{}
	}
	if _, ok := d.entries[key]; !ok {
		d.order = append(d.order, key)
	}
	d.entries[key] = value
}

// Get returns the value stored under key, or nil.
func (d *DictionaryObject) Get(key string) PdfObject {
	return d.entries[key]
}

// GetName returns the name stored under key, or "".
func (d *DictionaryObject) GetName(key string) string {
	if n, ok := d.entries[key].(NameObject); ok {
		return string(n)
	}
	return ""
}

// GetInt returns the integer stored under key.
func (d *DictionaryObject) GetInt(key string) (int64, bool) {
	i, ok := d.entries[key].(IntegerObject)
	return int64(i), ok
}

// GetArray returns the direct array stored under key, or nil.
func (d *DictionaryObject) GetArray(key string) ArrayObject {
	a, _ := d.entries[key].(ArrayObject)
	return a
}

// GetDict returns the direct dictionary stored under key, or nil.
func (d *DictionaryObject) GetDict(key string) *DictionaryObject {
	sub, _ := d.entries[key].(*DictionaryObject)
	return sub
}

// Delete removes key.
func (d *DictionaryObject) Delete(key string) {
	if _, ok := d.entries[key]; !ok {
		return
	}
	delete(d.entries, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Has reports whether key is present.
func (d *DictionaryObject) Has(key string) bool {
	_, ok := d.entries[key]
	return ok
}

// Keys returns the keys in insertion order.
func (d *DictionaryObject) Keys() []string {
	return append([]string(nil), d.order...)
}

// Len returns the number of entries.
func (d *DictionaryObject) Len() int {
	return len(d.order)
}

// StreamObject is a stream: a dictionary plus bytes.
// Data holds the filtered bytes as they appear in the file, after any
// decryption. Decoded holds
// the unfiltered bytes when the reader managed to decode them.
type StreamObject struct {
	Dictionary *DictionaryObject
	Data       []byte
	Decoded    []byte
}

// NewStream creates a stream whose file bytes are data.
func NewStream(dict *DictionaryObject, data []byte) *StreamObject {
	if dict == nil {
		dict = NewDictionary()
	}
	return &StreamObject{Dictionary: dict, Data: data}
}

// Write implements PdfObject. /Length always reflects Data.
func (s *StreamObject) Write(w io.Writer) error {
	s.Dictionary.Set("Length", IntegerObject(len(s.Data)))
	if err := s.Dictionary.Write(w); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\nstream\n"); err != nil {
		return err
	}
	if _, err := w.Write(s.Data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\nendstream")
	return err
}

// Clone implements PdfObject.
func (s *StreamObject) Clone() PdfObject {
	return &StreamObject{
		Dictionary: s.Dictionary.Clone().(*DictionaryObject),
		Data:       bytes.Clone(s.Data),
		Decoded:    bytes.Clone(s.Decoded),
	}
}

// Content returns the decoded bytes if known, else the raw bytes.
func (s *StreamObject) Content() []byte {
	if s.Decoded != nil {
		return s.Decoded
	}
	return s.Data
}

// Rectangle is a PDF rectangle given by its lower-left and upper-right
// corners.
type Rectangle struct {
	LLX, LLY float64
	URX, URY float64
}

// NewRectangle reads a rectangle from a four-number array.
func NewRectangle(arr ArrayObject) (*Rectangle, error) {
	if len(arr) != 4 {
		return nil, fmt.Errorf("%w: rectangle needs 4 numbers, got %d", ErrInvalidObject, len(arr))
	}
	var v [4]float64
	for i, obj := range arr {
		n, ok := Number(obj)
		if !ok {
			return nil, fmt.Errorf("%w: rectangle element %d is not a number", ErrInvalidObject, i)
		}
		v[i] = n
	}
	return &Rectangle{
		LLX: math.Min(v[0], v[2]), LLY: math.Min(v[1], v[3]),
		URX: math.Max(v[0], v[2]), URY: math.Max(v[1], v[3]),
	}, nil
}

// ToArray converts the rectangle to a PDF array.
func (r *Rectangle) ToArray() ArrayObject {
	return NumberArray(r.LLX, r.LLY, r.URX, r.URY)
}

// Width returns the rectangle width.
func (r *Rectangle) Width() float64 { return r.URX - r.LLX }

// Height returns the rectangle height.
func (r *Rectangle) Height() float64 { return r.URY - r.LLY }

// Number extracts a numeric value from an integer or real object.
func Number(obj PdfObject) (float64, bool) {
	switch v := obj.(type) {
	case IntegerObject:
		return float64(v), true
	case RealObject:
		return float64(v), true
	}
	return 0, false
}

// TrailerDictionary is the file trailer (or the dictionary of an xref
// stream, which plays the same role).
type TrailerDictionary struct {
	*DictionaryObject
}

// NewTrailer creates an empty trailer.
func NewTrailer() *TrailerDictionary {
	return &TrailerDictionary{DictionaryObject: NewDictionary()}
}

// GetRoot returns the catalog reference, or nil.
func (t *TrailerDictionary) GetRoot() *Reference {
	if ref, ok := t.Get("Root").(Reference); ok {
		return &ref
	}
	return nil
}

// GetInfo returns the info dictionary reference, or nil.
func (t *TrailerDictionary) GetInfo() *Reference {
	if ref, ok := t.Get("Info").(Reference); ok {
		return &ref
	}
	return nil
}

// GetSize returns /Size.
func (t *TrailerDictionary) GetSize() int64 {
	size, _ := t.GetInt("Size")
	return size
}

// GetPrev returns the offset of the previous cross-reference section.
func (t *TrailerDictionary) GetPrev() (int64, bool) {
	return t.GetInt("Prev")
}
