package reader

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/georgepadayatti/pdfstamp/pdf/generic"
)

// XRefType represents different types of cross-reference entries.
type XRefType int

const (
	// XRefTypeFree marks a deleted object.
	XRefTypeFree XRefType = iota
	// XRefTypeStandard is an object stored at a byte offset.
	XRefTypeStandard
	// XRefTypeInObjStream is an object stored inside an object stream.
	XRefTypeInObjStream
)

// String returns the string representation of the XRef type.
func (t XRefType) String() string {
	switch t {
	case XRefTypeFree:
		return "free"
	case XRefTypeStandard:
		return "standard"
	case XRefTypeInObjStream:
		return "in_obj_stream"
	default:
		return "unknown"
	}
}

// XRefEntry is one resolved cross-reference entry.
type XRefEntry struct {
	Type       XRefType
	Offset     int64
	Generation int
	// StreamObject and Index locate objects of type XRefTypeInObjStream.
	StreamObject int
	Index        int
}

// XRefSection describes one section of the xref chain, newest first.
type XRefSection struct {
	Offset   int64
	IsStream bool
	Entries  int
}

// findStartXRef returns the offset recorded after the last "startxref".
func findStartXRef(data []byte) (int64, error) {
	tail := data
	if len(tail) > 4096 {
		tail = tail[len(tail)-4096:]
	}
	pos := bytes.LastIndex(tail, []byte("startxref"))
	if pos < 0 {
		return 0, ErrNoXRef
	}
	p := generic.NewParser(tail[pos+len("startxref"):])
	tok := p.Token()
	offset, err := strconv.ParseInt(tok, 10, 64)
	if err != nil || offset < 0 || offset >= int64(len(data)) {
		return 0, fmt.Errorf("%w: bad startxref offset %q", ErrInvalidXRef, tok)
	}
	return offset, nil
}

// loadXRefChain walks the xref sections from offset through /Prev links.
// Entries from newer sections win over older ones.
func (r *Reader) loadXRefChain(offset int64) error {
	visited := make(map[int64]bool)
	first := true

	for {
		if visited[offset] {
			return fmt.Errorf("%w: /Prev loop at offset %d", ErrInvalidXRef, offset)
		}
		visited[offset] = true

		trailer, err := r.loadXRefSection(offset)
		if err != nil {
			return err
		}
		if first {
			r.trailer = trailer
			first = false
		}

		// Hybrid files keep extra entries in a stream named by /XRefStm.
		if stmOffset, ok := trailer.GetInt("XRefStm"); ok && !visited[stmOffset] {
			visited[stmOffset] = true
			if _, err := r.loadXRefStream(stmOffset); err != nil {
				return err
			}
		}

		prev, ok := trailer.GetPrev()
		if !ok {
			return nil
		}
		offset = prev
	}
}

func (r *Reader) loadXRefSection(offset int64) (*generic.TrailerDictionary, error) {
	if offset < 0 || offset >= int64(len(r.data)) {
		return nil, fmt.Errorf("%w: offset %d out of range", ErrInvalidXRef, offset)
	}
	p := generic.NewParserAt(r.data, offset)
	p.SkipSpace()
	start := p.Pos()
	if p.Token() == "xref" {
		return r.loadXRefTable(p, start)
	}
	return r.loadXRefStream(start)
}

func (r *Reader) setEntry(num int, e XRefEntry) {
	if _, seen := r.xref[num]; !seen {
		r.xref[num] = e
	}
}

// loadXRefTable parses a classic table; p is positioned after "xref".
func (r *Reader) loadXRefTable(p *generic.Parser, start int64) (*generic.TrailerDictionary, error) {
	section := XRefSection{Offset: start}
	for {
		p.SkipSpace()
		tok := p.Token()
		if tok == "trailer" {
			break
		}
		first, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: expected subsection start, got %q", ErrInvalidXRef, tok)
		}
		p.SkipSpace()
		count, err := strconv.Atoi(p.Token())
		if err != nil || count < 0 {
			return nil, fmt.Errorf("%w: bad subsection count", ErrInvalidXRef)
		}

		for i := 0; i < count; i++ {
			p.SkipSpace()
			offTok := p.Token()
			p.SkipSpace()
			genTok := p.Token()
			p.SkipSpace()
			kind := p.Token()

			off, err1 := strconv.ParseInt(offTok, 10, 64)
			gen, err2 := strconv.Atoi(genTok)
			if err1 != nil || err2 != nil || (kind != "n" && kind != "f") {
				return nil, fmt.Errorf("%w: bad entry for object %d", ErrInvalidXRef, first+i)
			}
			// Some writers number the first subsection from 1 even though
			// it describes object 0; the free head entry gives it away.
			num := first + i
			if first == 1 && i == 0 && kind == "f" && gen == 65535 {
				first, num = 0, 0
			}
			if kind == "n" {
				r.setEntry(num, XRefEntry{Type: XRefTypeStandard, Offset: off, Generation: gen})
			} else {
				r.setEntry(num, XRefEntry{Type: XRefTypeFree, Generation: gen})
			}
			section.Entries++
		}
	}

	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse trailer: %v", ErrInvalidXRef, err)
	}
	dict, ok := obj.(*generic.DictionaryObject)
	if !ok {
		return nil, fmt.Errorf("%w: trailer is not a dictionary", ErrInvalidXRef)
	}
	r.sections = append(r.sections, section)
	return &generic.TrailerDictionary{DictionaryObject: dict}, nil
}

// loadXRefStream parses a cross-reference stream object at offset.
func (r *Reader) loadXRefStream(offset int64) (*generic.TrailerDictionary, error) {
	p := generic.NewParserAt(r.data, offset)
	ind, err := p.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("%w: no xref table or stream at %d: %v", ErrInvalidXRef, offset, err)
	}
	stream, ok := ind.Object.(*generic.StreamObject)
	if !ok || stream.Dictionary.GetName("Type") != "XRef" {
		return nil, fmt.Errorf("%w: object at %d is not an xref stream", ErrInvalidXRef, offset)
	}

	data, err := r.decodeStream(stream, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXRef, err)
	}

	w := stream.Dictionary.GetArray("W")
	if len(w) != 3 {
		return nil, fmt.Errorf("%w: /W must have three entries", ErrInvalidXRef)
	}
	var widths [3]int
	rowLen := 0
	for i, obj := range w {
		n, ok := obj.(generic.IntegerObject)
		if !ok || n < 0 || n > 8 {
			return nil, fmt.Errorf("%w: bad /W entry %v", ErrInvalidXRef, obj)
		}
		widths[i] = int(n)
		rowLen += int(n)
	}
	if rowLen == 0 {
		return nil, fmt.Errorf("%w: empty /W", ErrInvalidXRef)
	}

	size, _ := stream.Dictionary.GetInt("Size")
	index := stream.Dictionary.GetArray("Index")
	if index == nil {
		index = generic.NewArray(generic.IntegerObject(0), generic.IntegerObject(size))
	}

	section := XRefSection{Offset: offset, IsStream: true}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, ok1 := index[i].(generic.IntegerObject)
		count, ok2 := index[i+1].(generic.IntegerObject)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: bad /Index", ErrInvalidXRef)
		}
		for j := 0; j < int(count); j++ {
			if pos+rowLen > len(data) {
				return nil, fmt.Errorf("%w: xref stream truncated", ErrInvalidXRef)
			}
			row := data[pos : pos+rowLen]
			pos += rowLen

			kind := int64(1)
			if widths[0] > 0 {
				kind = readField(row[:widths[0]])
			}
			f2 := readField(row[widths[0] : widths[0]+widths[1]])
			f3 := readField(row[widths[0]+widths[1]:])

			num := int(first) + j
			switch kind {
			case 0:
				r.setEntry(num, XRefEntry{Type: XRefTypeFree, Generation: int(f3)})
			case 1:
				r.setEntry(num, XRefEntry{Type: XRefTypeStandard, Offset: f2, Generation: int(f3)})
			case 2:
				r.setEntry(num, XRefEntry{Type: XRefTypeInObjStream, StreamObject: int(f2), Index: int(f3)})
			default:
				// Unknown types are treated as null references.
				continue
			}
			section.Entries++
		}
	}

	r.sections = append(r.sections, section)
	return &generic.TrailerDictionary{DictionaryObject: stream.Dictionary}, nil
}

func readField(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}
