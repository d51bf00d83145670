package generic

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
)

// LengthResolver looks up the value of an indirect /Length entry.
type LengthResolver func(ref Reference) (int64, bool)

// Parser reads PDF objects from an in-memory buffer.
type Parser struct {
	data []byte
	pos  int

	// ResolveLength is consulted when a stream's /Length is an indirect
	// reference. When nil, or when the lookup fails, the stream extends
	// to the next "endstream" keyword.
	ResolveLength LengthResolver
}

// NewParser returns a parser positioned at the start of data.
func NewParser(data []byte) *Parser {
	return &Parser{data: data}
}

// NewParserAt returns a parser positioned at offset.
func NewParserAt(data []byte, offset int64) *Parser {
	p := &Parser{data: data}
	p.SetPos(offset)
	return p
}

// Pos returns the current offset.
func (p *Parser) Pos() int64 { return int64(p.pos) }

// SetPos moves to offset, clamped to the buffer.
func (p *Parser) SetPos(offset int64) {
	switch {
	case offset < 0:
		p.pos = 0
	case offset > int64(len(p.data)):
		p.pos = len(p.data)
	default:
		p.pos = int(offset)
	}
}

func (p *Parser) eof() bool { return p.pos >= len(p.data) }

func (p *Parser) peek() (byte, bool) {
	if p.eof() {
		return 0, false
	}
	return p.data[p.pos], true
}

func (p *Parser) errorf(base error, format string, args ...any) error {
	return NewPdfError(fmt.Sprintf(format, args...), int64(p.pos), base)
}

// SkipSpace skips whitespace and comments.
func (p *Parser) SkipSpace() {
	for !p.eof() {
		b := p.data[p.pos]
		switch {
		case IsWhitespace(b):
			p.pos++
		case b == '%':
			for !p.eof() && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
				p.pos++
			}
		default:
			return
		}
	}
}

// Token reads the next bare token (keyword or number) without
// interpreting it.
func (p *Parser) Token() string {
	p.SkipSpace()
	start := p.pos
	for !p.eof() && IsRegular(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

// ExpectKeyword consumes kw or returns an error.
func (p *Parser) ExpectKeyword(kw string) error {
	start := p.pos
	if tok := p.Token(); tok != kw {
		p.pos = start
		return p.errorf(ErrInvalidObject, "expected %q, got %q", kw, tok)
	}
	return nil
}

// ParseObject parses one object. A pair of integers followed by R is
// returned as a Reference.
func (p *Parser) ParseObject() (PdfObject, error) {
	p.SkipSpace()
	b, ok := p.peek()
	if !ok {
		return nil, p.errorf(ErrUnexpectedEOF, "object expected")
	}

	switch {
	case b == '(':
		return p.parseLiteralString()
	case b == '<':
		if p.pos+1 < len(p.data) && p.data[p.pos+1] == '<' {
			p.pos += 2
			return p.parseDictionary()
		}
		return p.parseHexString()
	case b == '[':
		p.pos++
		return p.parseArray()
	case b == '/':
		return p.parseName()
	case b == '+' || b == '-' || b == '.' || (b >= '0' && b <= '9'):
		return p.parseNumberOrReference()
	}

	start := p.pos
	switch tok := p.Token(); tok {
	case "true":
		return BooleanObject(true), nil
	case "false":
		return BooleanObject(false), nil
	case "null":
		return NullObject{}, nil
	case "":
		p.pos++
		return nil, NewPdfError(fmt.Sprintf("unexpected character %q", b), int64(start), ErrInvalidObject)
	default:
		return nil, NewPdfError(fmt.Sprintf("unexpected keyword %q", tok), int64(start), ErrInvalidObject)
	}
}

func (p *Parser) parseNumber() (PdfObject, error) {
	start := p.pos
	tok := p.Token()
	if tok == "" {
		return nil, NewPdfError("number expected", int64(start), ErrInvalidNumber)
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return IntegerObject(i), nil
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		// Producers occasionally write "--5" or "1.2.3"; keep what parses.
		f, err = parseLooseReal(tok)
		if err != nil {
			return nil, NewPdfError(fmt.Sprintf("bad number %q", tok), int64(start), ErrInvalidNumber)
		}
	}
	return RealObject(f), nil
}

func parseLooseReal(tok string) (float64, error) {
	neg := false
	for len(tok) > 0 && (tok[0] == '-' || tok[0] == '+') {
		neg = neg != (tok[0] == '-')
		tok = tok[1:]
	}
	end, dot := 0, false
	for end < len(tok) {
		c := tok[end]
		if c == '.' && !dot {
			dot = true
		} else if c < '0' || c > '9' {
			break
		}
		end++
	}
	f, err := strconv.ParseFloat("0"+tok[:end], 64)
	if neg {
		f = -f
	}
	return f, err
}

func (p *Parser) parseNumberOrReference() (PdfObject, error) {
	first, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	objNum, ok := first.(IntegerObject)
	if !ok || objNum < 0 {
		return first, nil
	}

	save := p.pos
	p.SkipSpace()
	genStart := p.pos
	for !p.eof() && p.data[p.pos] >= '0' && p.data[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == genStart || (!p.eof() && IsRegular(p.data[p.pos])) {
		p.pos = save
		return first, nil
	}
	gen, _ := strconv.Atoi(string(p.data[genStart:p.pos]))
	p.SkipSpace()
	if !p.eof() && p.data[p.pos] == 'R' && (p.pos+1 == len(p.data) || !IsRegular(p.data[p.pos+1])) {
		p.pos++
		return Reference{ObjectNumber: int(objNum), GenerationNumber: gen}, nil
	}
	p.pos = save
	return first, nil
}

func (p *Parser) parseName() (NameObject, error) {
	p.pos++ // '/'
	var buf []byte
	for !p.eof() && IsRegular(p.data[p.pos]) {
		c := p.data[p.pos]
		if c == '#' && p.pos+2 < len(p.data) {
			if v, err := strconv.ParseUint(string(p.data[p.pos+1:p.pos+3]), 16, 8); err == nil {
				buf = append(buf, byte(v))
				p.pos += 3
				continue
			}
		}
		buf = append(buf, c)
		p.pos++
	}
	return NameObject(buf), nil
}

func (p *Parser) parseLiteralString() (*StringObject, error) {
	start := p.pos
	p.pos++ // '('
	var buf []byte
	depth := 1
	for {
		if p.eof() {
			return nil, NewPdfError("unterminated string", int64(start), ErrInvalidString)
		}
		c := p.data[p.pos]
		p.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return &StringObject{Value: buf}, nil
			}
		case '\\':
			if p.eof() {
				continue
			}
			e := p.data[p.pos]
			p.pos++
			switch e {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case '\r':
				if b, ok := p.peek(); ok && b == '\n' {
					p.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2; i++ {
						b, ok := p.peek()
						if !ok || b < '0' || b > '7' {
							break
						}
						v = v*8 + int(b-'0')
						p.pos++
					}
					buf = append(buf, byte(v))
				} else {
					buf = append(buf, e)
				}
			}
			continue
		}
		buf = append(buf, c)
	}
}

func (p *Parser) parseHexString() (*StringObject, error) {
	start := p.pos
	p.pos++ // '<'
	end := bytes.IndexByte(p.data[p.pos:], '>')
	if end < 0 {
		return nil, NewPdfError("unterminated hex string", int64(start), ErrInvalidString)
	}
	digits := make([]byte, 0, end)
	for _, c := range p.data[p.pos : p.pos+end] {
		if !IsWhitespace(c) {
			digits = append(digits, c)
		}
	}
	p.pos += end + 1
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	value, err := hex.DecodeString(string(digits))
	if err != nil {
		return nil, NewPdfError("bad hex string", int64(start), ErrInvalidString)
	}
	return &StringObject{Value: value, IsHex: true}, nil
}

func (p *Parser) parseArray() (ArrayObject, error) {
	arr := ArrayObject{}
	for {
		p.SkipSpace()
		b, ok := p.peek()
		if !ok {
			return nil, p.errorf(ErrInvalidArray, "unterminated array")
		}
		if b == ']' {
			p.pos++
			return arr, nil
		}
		item, err := p.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArray, err)
		}
		arr = append(arr, item)
	}
}

func (p *Parser) parseDictionary() (*DictionaryObject, error) {
	dict := NewDictionary()
	for {
		p.SkipSpace()
		b, ok := p.peek()
		if !ok {
			return nil, p.errorf(ErrInvalidDictionary, "unterminated dictionary")
		}
		if b == '>' {
			if p.pos+1 < len(p.data) && p.data[p.pos+1] == '>' {
				p.pos += 2
				return dict, nil
			}
			return nil, p.errorf(ErrInvalidDictionary, "expected '>>'")
		}
		if b != '/' {
			return nil, p.errorf(ErrInvalidDictionary, "key must be a name")
		}
		key, _ := p.parseName()
		value, err := p.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("%w: value of /%s: %v", ErrInvalidDictionary, key, err)
		}
		dict.Set(string(key), value)
	}
}

// ParseIndirectObject parses "n g obj ... endobj" at the current position,
// including stream data when present.
func (p *Parser) ParseIndirectObject() (*IndirectObject, error) {
	p.SkipSpace()
	start := p.pos
	num, err := strconv.Atoi(p.Token())
	if err != nil {
		return nil, NewPdfError("object number expected", int64(start), ErrInvalidObject)
	}
	gen, err := strconv.Atoi(p.Token())
	if err != nil {
		return nil, NewPdfError("generation number expected", int64(start), ErrInvalidObject)
	}
	if err := p.ExpectKeyword("obj"); err != nil {
		return nil, err
	}

	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("object %d %d: %w", num, gen, err)
	}

	if dict, ok := obj.(*DictionaryObject); ok {
		save := p.pos
		if p.Token() == "stream" {
			stream, err := p.readStreamData(dict)
			if err != nil {
				return nil, fmt.Errorf("object %d %d: %w", num, gen, err)
			}
			obj = stream
		} else {
			p.pos = save
		}
	}

	// endobj is optional in the wild.
	save := p.pos
	if p.Token() != "endobj" {
		p.pos = save
	}
	return NewIndirectObject(num, gen, obj), nil
}

func (p *Parser) readStreamData(dict *DictionaryObject) (*StreamObject, error) {
	// The keyword is followed by CRLF or LF.
	if b, ok := p.peek(); ok && b == '\r' {
		p.pos++
	}
	if b, ok := p.peek(); ok && b == '\n' {
		p.pos++
	}
	begin := p.pos

	length := int64(-1)
	switch l := dict.Get("Length").(type) {
	case IntegerObject:
		length = int64(l)
	case Reference:
		if p.ResolveLength != nil {
			if v, ok := p.ResolveLength(l); ok {
				length = v
			}
		}
	}

	if length >= 0 && begin+int(length) <= len(p.data) {
		after := NewParserAt(p.data, int64(begin)+length)
		if after.Token() == "endstream" {
			p.pos = after.pos
			return NewStream(dict, p.data[begin:begin+int(length)]), nil
		}
	}

	// Length is missing or wrong: scan for the keyword instead.
	idx := bytes.Index(p.data[begin:], []byte("endstream"))
	if idx < 0 {
		return nil, NewPdfError("missing endstream", int64(begin), ErrInvalidStream)
	}
	end := begin + idx
	if end > begin && p.data[end-1] == '\n' {
		end--
		if end > begin && p.data[end-1] == '\r' {
			end--
		}
	} else if end > begin && p.data[end-1] == '\r' {
		end--
	}
	p.pos = begin + idx + len("endstream")
	return NewStream(dict, p.data[begin:end]), nil
}
