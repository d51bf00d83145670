// Package reader parses existing PDF files: the cross-reference chain,
// indirect objects (including compressed object streams) and the page
// tree.
package reader

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"

	"github.com/georgepadayatti/pdfstamp/pdf/crypt"
	"github.com/georgepadayatti/pdfstamp/pdf/filters"
	"github.com/georgepadayatti/pdfstamp/pdf/generic"
)

// Common errors
var (
	ErrInvalidPDF     = errors.New("invalid PDF file")
	ErrNoXRef         = errors.New("no xref found")
	ErrInvalidXRef    = errors.New("invalid xref")
	ErrObjectNotFound = errors.New("object not found")
	ErrEncrypted      = errors.New("cannot open encrypted PDF")
	ErrInvalidPages   = errors.New("invalid page tree")
)

// DefaultMediaBox is used for pages that do not declare or inherit one.
var DefaultMediaBox = generic.Rectangle{URX: 595, URY: 842}

var headerRegex = regexp.MustCompile(`%PDF-(\d+\.\d+)`)

// Page is a leaf of the page tree with its inheritable attributes
// resolved.
type Page struct {
	Ref      generic.Reference
	Dict     *generic.DictionaryObject
	MediaBox generic.Rectangle
	// Resources is the page's own or inherited resource dictionary, with
	// the top-level reference resolved. It is nil when the page has none.
	Resources *generic.DictionaryObject
	Rotate    int
}

// Reader gives random access to the objects of a PDF file held in memory.
type Reader struct {
	data      []byte
	Version   string
	trailer   *generic.TrailerDictionary
	startXRef int64
	xref      map[int]XRefEntry
	sections  []XRefSection

	cache      map[int]generic.PdfObject
	objStreams map[int]*objectStream
	resolving  map[int]bool

	pagesRef generic.Reference
	pages    []*Page

	security   *crypt.StandardSecurityHandler
	encryptNum int
}

type objectStream struct {
	data    []byte
	first   int
	offsets []int
	numbers []int
}

// Open reads and parses the file at path.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF file: %w", err)
	}
	return New(data)
}

// New parses data. The slice is retained and must not be modified.
func New(data []byte) (*Reader, error) {
	r := &Reader{
		data:       data,
		xref:       make(map[int]XRefEntry),
		cache:      make(map[int]generic.PdfObject),
		objStreams: make(map[int]*objectStream),
		resolving:  make(map[int]bool),
	}
	if err := r.parse(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) parse() error {
	head := r.data[:min(1024, len(r.data))]
	match := headerRegex.FindSubmatch(head)
	if match == nil {
		return fmt.Errorf("%w: missing PDF header", ErrInvalidPDF)
	}
	r.Version = string(match[1])

	offset, err := findStartXRef(r.data)
	if err != nil {
		return err
	}
	r.startXRef = offset
	if err := r.loadXRefChain(offset); err != nil {
		return err
	}

	if r.trailer.Has("Encrypt") {
		if err := r.initSecurity(); err != nil {
			return err
		}
	}
	if r.trailer.GetRoot() == nil {
		return fmt.Errorf("%w: trailer has no /Root", ErrInvalidPDF)
	}
	return r.loadPageTree()
}

// initSecurity opens an encrypted file with the empty user password.
// Permissions in /P are not enforced.
func (r *Reader) initSecurity() error {
	enc := r.trailer.Get("Encrypt")
	if ref, ok := enc.(generic.Reference); ok {
		r.encryptNum = ref.ObjectNumber
	}
	dict, err := r.ResolveDict(enc)
	if err != nil {
		return fmt.Errorf("failed to read /Encrypt: %w", err)
	}
	if dict == nil {
		return fmt.Errorf("%w: /Encrypt is not a dictionary", ErrInvalidPDF)
	}
	var fileID []byte
	if id := r.trailer.GetArray("ID"); len(id) > 0 {
		if s, ok := id[0].(*generic.StringObject); ok {
			fileID = s.Value
		}
	}
	h, err := crypt.FromDictionary(dict, fileID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncrypted, err)
	}
	if err := h.Authenticate(""); err != nil {
		return fmt.Errorf("%w: %w", ErrEncrypted, err)
	}
	// Objects read so far were parsed as plaintext.
	for num := range r.cache {
		if num != r.encryptNum {
			delete(r.cache, num)
		}
	}
	clear(r.objStreams)
	r.security = h
	return nil
}

// Security returns the handler of an encrypted file, or nil.
func (r *Reader) Security() *crypt.StandardSecurityHandler { return r.security }

// EncryptRef returns the /Encrypt entry of the trailer, or nil.
func (r *Reader) EncryptRef() generic.PdfObject { return r.trailer.Get("Encrypt") }

// Data returns the file bytes.
func (r *Reader) Data() []byte { return r.data }

// Trailer returns the newest trailer dictionary.
func (r *Reader) Trailer() *generic.TrailerDictionary { return r.trailer }

// StartXRef returns the offset of the newest cross-reference section.
func (r *Reader) StartXRef() int64 { return r.startXRef }

// Sections returns the xref sections, newest first.
func (r *Reader) Sections() []XRefSection { return r.sections }

// Size returns one more than the highest object number in use.
func (r *Reader) Size() int {
	size := int(r.trailer.GetSize())
	for num := range r.xref {
		if num+1 > size {
			size = num + 1
		}
	}
	return size
}

// ObjectNumbers returns all object numbers with an in-use entry, sorted.
func (r *Reader) ObjectNumbers() []int {
	nums := make([]int, 0, len(r.xref))
	for num, e := range r.xref {
		if e.Type != XRefTypeFree {
			nums = append(nums, num)
		}
	}
	sort.Ints(nums)
	return nums
}

// Entry returns the xref entry for an object number.
func (r *Reader) Entry(num int) (XRefEntry, bool) {
	e, ok := r.xref[num]
	return e, ok
}

// GetObject returns the direct value of object num. Free and missing
// objects are null.
func (r *Reader) GetObject(num int) (generic.PdfObject, error) {
	if obj, ok := r.cache[num]; ok {
		return obj, nil
	}
	e, ok := r.xref[num]
	if !ok || e.Type == XRefTypeFree {
		return generic.NullObject{}, nil
	}
	if r.resolving[num] {
		return nil, fmt.Errorf("%w: object %d refers to itself", ErrInvalidPDF, num)
	}
	r.resolving[num] = true
	defer delete(r.resolving, num)

	var obj generic.PdfObject
	var err error
	switch e.Type {
	case XRefTypeStandard:
		obj, err = r.readObjectAt(num, e.Offset)
	case XRefTypeInObjStream:
		obj, err = r.readCompressedObject(num, e)
	}
	if err != nil {
		return nil, err
	}
	r.cache[num] = obj
	return obj, nil
}

func (r *Reader) readObjectAt(num int, offset int64) (generic.PdfObject, error) {
	if offset < 0 || offset >= int64(len(r.data)) {
		return nil, fmt.Errorf("%w: object %d offset %d out of range", ErrObjectNotFound, num, offset)
	}
	p := generic.NewParserAt(r.data, offset)
	p.ResolveLength = r.resolveLength
	ind, err := p.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("failed to read object %d: %w", num, err)
	}
	if ind.ObjectNumber != num {
		return nil, fmt.Errorf("%w: xref says object %d, file has %d", ErrObjectNotFound, num, ind.ObjectNumber)
	}
	if r.security != nil && num != r.encryptNum {
		if err := r.security.DecryptObject(ind.Object, ind.ObjectNumber, ind.GenerationNumber); err != nil {
			return nil, fmt.Errorf("failed to decrypt object %d: %w", num, err)
		}
	}
	return ind.Object, nil
}

func (r *Reader) resolveLength(ref generic.Reference) (int64, bool) {
	obj, err := r.GetObject(ref.ObjectNumber)
	if err != nil {
		return 0, false
	}
	n, ok := obj.(generic.IntegerObject)
	return int64(n), ok
}

func (r *Reader) readCompressedObject(num int, e XRefEntry) (generic.PdfObject, error) {
	stm, err := r.loadObjectStream(e.StreamObject)
	if err != nil {
		return nil, err
	}
	idx := e.Index
	if idx < 0 || idx >= len(stm.offsets) || stm.numbers[idx] != num {
		// Fall back to a search when the index is stale.
		idx = -1
		for i, n := range stm.numbers {
			if n == num {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: object %d not in object stream %d", ErrObjectNotFound, num, e.StreamObject)
		}
	}
	p := generic.NewParserAt(stm.data, int64(stm.first+stm.offsets[idx]))
	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("failed to read object %d from object stream %d: %w", num, e.StreamObject, err)
	}
	return obj, nil
}

func (r *Reader) loadObjectStream(num int) (*objectStream, error) {
	if stm, ok := r.objStreams[num]; ok {
		return stm, nil
	}
	e, ok := r.xref[num]
	if !ok || e.Type != XRefTypeStandard {
		return nil, fmt.Errorf("%w: object stream %d", ErrObjectNotFound, num)
	}
	obj, err := r.GetObject(num)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*generic.StreamObject)
	if !ok {
		return nil, fmt.Errorf("%w: object %d is not an object stream", ErrInvalidPDF, num)
	}
	data, err := r.DecodeStream(stream)
	if err != nil {
		return nil, err
	}
	n, _ := stream.Dictionary.GetInt("N")
	first, _ := stream.Dictionary.GetInt("First")

	stm := &objectStream{data: data, first: int(first)}
	p := generic.NewParser(data)
	for i := 0; i < int(n); i++ {
		objNum, err1 := strconv.Atoi(p.Token())
		off, err2 := strconv.Atoi(p.Token())
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: bad header in object stream %d", ErrInvalidPDF, num)
		}
		stm.numbers = append(stm.numbers, objNum)
		stm.offsets = append(stm.offsets, off)
	}
	r.objStreams[num] = stm
	return stm, nil
}

// Resolve follows references until it reaches a direct object.
func (r *Reader) Resolve(obj generic.PdfObject) (generic.PdfObject, error) {
	for depth := 0; depth < 32; depth++ {
		ref, ok := obj.(generic.Reference)
		if !ok {
			return obj, nil
		}
		var err error
		if obj, err = r.GetObject(ref.ObjectNumber); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: reference chain too deep", ErrInvalidPDF)
}

// ResolveDict resolves obj and returns it as a dictionary. Streams yield
// their dictionary. A nil result with a nil error means obj was absent or
// not a dictionary.
func (r *Reader) ResolveDict(obj generic.PdfObject) (*generic.DictionaryObject, error) {
	if obj == nil {
		return nil, nil
	}
	v, err := r.Resolve(obj)
	if err != nil {
		return nil, err
	}
	switch d := v.(type) {
	case *generic.DictionaryObject:
		return d, nil
	case *generic.StreamObject:
		return d.Dictionary, nil
	}
	return nil, nil
}

// Catalog returns the document catalog.
func (r *Reader) Catalog() (*generic.DictionaryObject, error) {
	d, err := r.ResolveDict(*r.trailer.GetRoot())
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w: /Root is not a dictionary", ErrInvalidPDF)
	}
	return d, nil
}

// DecodeStream returns the unfiltered bytes of s, caching them in
// s.Decoded.
func (r *Reader) DecodeStream(s *generic.StreamObject) ([]byte, error) {
	return r.decodeStream(s, true)
}

func (r *Reader) decodeStream(s *generic.StreamObject, resolve bool) ([]byte, error) {
	if s.Decoded != nil {
		return s.Decoded, nil
	}
	names, params, err := r.filterChain(s.Dictionary, resolve)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		s.Decoded = s.Data
		return s.Data, nil
	}
	out, err := filters.DecodeStream(s.Data, names, params)
	if err != nil {
		return nil, err
	}
	s.Decoded = out
	return out, nil
}

func (r *Reader) filterChain(dict *generic.DictionaryObject, resolve bool) ([]string, []*filters.Params, error) {
	get := func(key string) (generic.PdfObject, error) {
		v := dict.Get(key)
		if resolve && v != nil {
			return r.Resolve(v)
		}
		return v, nil
	}

	f, err := get("Filter")
	if err != nil {
		return nil, nil, err
	}
	var names []string
	switch v := f.(type) {
	case generic.NameObject:
		names = []string{string(v)}
	case generic.ArrayObject:
		for _, item := range v {
			if n, ok := item.(generic.NameObject); ok {
				names = append(names, string(n))
			}
		}
	}

	dp, err := get("DecodeParms")
	if err != nil {
		return nil, nil, err
	}
	var params []*filters.Params
	switch v := dp.(type) {
	case *generic.DictionaryObject:
		params = []*filters.Params{ParamsFromDict(v)}
	case generic.ArrayObject:
		for _, item := range v {
			if resolve {
				if item, err = r.Resolve(item); err != nil {
					return nil, nil, err
				}
			}
			d, _ := item.(*generic.DictionaryObject)
			params = append(params, ParamsFromDict(d))
		}
	}
	return names, params, nil
}

// ParamsFromDict converts a /DecodeParms dictionary.
func ParamsFromDict(d *generic.DictionaryObject) *filters.Params {
	if d == nil {
		return nil
	}
	p := &filters.Params{}
	if v, ok := d.GetInt("Predictor"); ok {
		p.Predictor = int(v)
	}
	if v, ok := d.GetInt("Colors"); ok {
		p.Colors = int(v)
	}
	if v, ok := d.GetInt("BitsPerComponent"); ok {
		p.BitsPerComponent = int(v)
	}
	if v, ok := d.GetInt("Columns"); ok {
		p.Columns = int(v)
	}
	if v, ok := d.GetInt("EarlyChange"); ok {
		ec := int(v)
		p.EarlyChange = &ec
	}
	return p
}

// NumPages returns the number of pages.
func (r *Reader) NumPages() int { return len(r.pages) }

// Pages returns the pages in document order.
func (r *Reader) Pages() []*Page { return r.pages }

// Page returns page i (zero-based).
func (r *Reader) Page(i int) (*Page, error) {
	if i < 0 || i >= len(r.pages) {
		return nil, fmt.Errorf("%w: page %d of %d", ErrInvalidPages, i+1, len(r.pages))
	}
	return r.pages[i], nil
}

// PageRefs returns the page references in document order.
func (r *Reader) PageRefs() []generic.Reference {
	refs := make([]generic.Reference, len(r.pages))
	for i, p := range r.pages {
		refs[i] = p.Ref
	}
	return refs
}

// PagesRef returns the reference of the root page tree node.
func (r *Reader) PagesRef() generic.Reference { return r.pagesRef }

// PageContent returns the decoded content of page i, with multiple
// content streams joined by newlines.
func (r *Reader) PageContent(i int) ([]byte, error) {
	page, err := r.Page(i)
	if err != nil {
		return nil, err
	}
	contents, err := r.Resolve(page.Dict.Get("Contents"))
	if err != nil {
		return nil, err
	}
	var parts []generic.PdfObject
	switch v := contents.(type) {
	case nil, generic.NullObject:
		return nil, nil
	case generic.ArrayObject:
		parts = v
	default:
		parts = []generic.PdfObject{v}
	}

	var buf bytes.Buffer
	for i, part := range parts {
		obj, err := r.Resolve(part)
		if err != nil {
			return nil, err
		}
		stream, ok := obj.(*generic.StreamObject)
		if !ok {
			continue
		}
		data, err := r.DecodeStream(stream)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

type inherited struct {
	resources *generic.DictionaryObject
	mediaBox  *generic.Rectangle
	rotate    int
}

func (r *Reader) loadPageTree() error {
	catalog, err := r.Catalog()
	if err != nil {
		return err
	}
	ref, ok := catalog.Get("Pages").(generic.Reference)
	if !ok {
		return fmt.Errorf("%w: catalog /Pages is not a reference", ErrInvalidPages)
	}
	r.pagesRef = ref
	return r.walkPages(ref, inherited{}, make(map[int]bool))
}

func (r *Reader) walkPages(ref generic.Reference, inh inherited, visited map[int]bool) error {
	if visited[ref.ObjectNumber] {
		return fmt.Errorf("%w: cycle at object %d", ErrInvalidPages, ref.ObjectNumber)
	}
	visited[ref.ObjectNumber] = true

	node, err := r.ResolveDict(ref)
	if err != nil {
		return err
	}
	if node == nil {
		return fmt.Errorf("%w: object %d is not a dictionary", ErrInvalidPages, ref.ObjectNumber)
	}

	if res := node.Get("Resources"); res != nil {
		d, err := r.ResolveDict(res)
		if err != nil {
			return err
		}
		inh.resources = d
	}
	if mb, err := r.Resolve(node.Get("MediaBox")); err == nil {
		if arr, ok := mb.(generic.ArrayObject); ok {
			if rect, err := generic.NewRectangle(arr); err == nil {
				inh.mediaBox = rect
			}
		}
	}
	if rot, ok := node.GetInt("Rotate"); ok {
		inh.rotate = int(rot)
	}

	kidsObj, err := r.Resolve(node.Get("Kids"))
	if err != nil {
		return err
	}
	kids, isNode := kidsObj.(generic.ArrayObject)
	if node.GetName("Type") == "Page" || (!isNode && node.GetName("Type") != "Pages") {
		page := &Page{Ref: ref, Dict: node, MediaBox: DefaultMediaBox, Resources: inh.resources, Rotate: inh.rotate}
		if inh.mediaBox != nil {
			page.MediaBox = *inh.mediaBox
		}
		r.pages = append(r.pages, page)
		return nil
	}

	for _, kid := range kids {
		kidRef, ok := kid.(generic.Reference)
		if !ok {
			return fmt.Errorf("%w: kid of object %d is not a reference", ErrInvalidPages, ref.ObjectNumber)
		}
		if err := r.walkPages(kidRef, inh, visited); err != nil {
			return err
		}
	}
	return nil
}
