package writer

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/jonboulle/clockwork"

	"github.com/georgepadayatti/pdfstamp/pdf/generic"
	"github.com/georgepadayatti/pdfstamp/pdf/metadata"
	"github.com/georgepadayatti/pdfstamp/pdf/reader"
)

// IncrementalWriter collects changes to an existing document and writes
// them as one incremental update appended to the original bytes, which
// are never modified.
type IncrementalWriter struct {
	// Compress Flate-encodes new content streams.
	Compress bool
	// PageBox is the media box of pages added with AddPage.
	PageBox generic.Rectangle
	// WrapContents puts the existing content of a page between q and Q
	// before AppendStreamToPage adds to it, so the new stream starts from
	// the default graphics state.
	WrapContents bool
	Clock        clockwork.Clock

	reader  *reader.Reader
	nextNum int
	objects map[int]generic.PdfObject
	added   []generic.Reference

	// save and restore are the shared q and Q streams.
	save, restore *generic.Reference
}

// NewIncrementalWriter starts an update of the document read by r.
func NewIncrementalWriter(r *reader.Reader) *IncrementalWriter {
	return &IncrementalWriter{
		Compress:     true,
		PageBox:      reader.DefaultMediaBox,
		WrapContents: true,
		Clock:        clockwork.NewRealClock(),
		reader:       r,
		nextNum:      r.Size(),
		objects:      make(map[int]generic.PdfObject),
	}
}

// Reader returns the reader of the original document.
func (w *IncrementalWriter) Reader() *reader.Reader { return w.reader }

// HasChanges reports whether anything would be written.
func (w *IncrementalWriter) HasChanges() bool { return len(w.objects) > 0 }

// AddObject stores a new object and returns its reference.
func (w *IncrementalWriter) AddObject(obj generic.PdfObject) generic.Reference {
	num := w.nextNum
	w.nextNum++
	w.objects[num] = obj
	return generic.NewReference(num, 0)
}

// UpdateObject replaces object num in the update section.
func (w *IncrementalWriter) UpdateObject(num int, obj generic.PdfObject) {
	w.objects[num] = obj
	if num >= w.nextNum {
		w.nextNum = num + 1
	}
}

// Object returns the current value of object num: the pending version if
// one exists, otherwise the original.
func (w *IncrementalWriter) Object(num int) (generic.PdfObject, error) {
	if obj, ok := w.objects[num]; ok {
		return obj, nil
	}
	return w.reader.GetObject(num)
}

func (w *IncrementalWriter) resolve(obj generic.PdfObject) (generic.PdfObject, error) {
	for depth := 0; depth < 32; depth++ {
		ref, ok := obj.(generic.Reference)
		if !ok {
			return obj, nil
		}
		var err error
		if obj, err = w.Object(ref.ObjectNumber); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: reference chain too deep", reader.ErrInvalidPDF)
}

// writableDict returns a dictionary for object num that is safe to
// modify and is already registered as an update.
func (w *IncrementalWriter) writableDict(num int) (*generic.DictionaryObject, error) {
	if obj, ok := w.objects[num]; ok {
		if d, ok := obj.(*generic.DictionaryObject); ok {
			return d, nil
		}
	}
	obj, err := w.reader.GetObject(num)
	if err != nil {
		return nil, err
	}
	d, ok := obj.(*generic.DictionaryObject)
	if !ok {
		return nil, fmt.Errorf("%w: object %d is not a dictionary", generic.ErrInvalidDictionary, num)
	}
	d = d.Clone().(*generic.DictionaryObject)
	w.objects[num] = d
	return d, nil
}

// AddStream stores content as a new stream object.
func (w *IncrementalWriter) AddStream(content []byte) (generic.Reference, error) {
	stream, err := NewContentStream(content, w.Compress)
	if err != nil {
		return generic.Reference{}, err
	}
	return w.AddObject(stream), nil
}

// wrapStreams returns the q and Q streams, creating them on first use.
// Every wrapped page refers to the same two objects.
func (w *IncrementalWriter) wrapStreams() (save, restore generic.Reference, err error) {
	if w.save == nil {
		s, err := w.AddStream([]byte("q\n"))
		if err != nil {
			return save, restore, err
		}
		r, err := w.AddStream([]byte("\nQ\n"))
		if err != nil {
			return save, restore, err
		}
		w.save, w.restore = &s, &r
	}
	return *w.save, *w.restore, nil
}

// AppendStreamToPage adds content as the last content stream of original
// page pageIndex and merges resources into the page's resources. The
// existing content streams keep their order and are not rewritten. With
// WrapContents they are enclosed in q ... Q first, so a page that leaves
// its CTM, color or clip changed does not affect the new stream.
func (w *IncrementalWriter) AppendStreamToPage(pageIndex int, content []byte, resources *generic.DictionaryObject) (generic.Reference, error) {
	page, err := w.reader.Page(pageIndex)
	if err != nil {
		return generic.Reference{}, fmt.Errorf("%w: %v", ErrPageOutOfRange, err)
	}
	dict, err := w.writableDict(page.Ref.ObjectNumber)
	if err != nil {
		return generic.Reference{}, err
	}

	streamRef, err := w.AddStream(content)
	if err != nil {
		return generic.Reference{}, err
	}

	var contents generic.ArrayObject
	switch existing := dict.Get("Contents").(type) {
	case nil, generic.NullObject:
	case generic.ArrayObject:
		contents = append(contents, existing...)
	case generic.Reference:
		target, err := w.resolve(existing)
		if err != nil {
			return generic.Reference{}, err
		}
		if arr, ok := target.(generic.ArrayObject); ok {
			contents = append(contents, arr...)
		} else {
			contents = append(contents, existing)
		}
	default:
		return generic.Reference{}, fmt.Errorf("%w: page %d has invalid /Contents", reader.ErrInvalidPDF, pageIndex+1)
	}
	if w.WrapContents && len(contents) > 0 {
		save, restore, err := w.wrapStreams()
		if err != nil {
			return generic.Reference{}, err
		}
		contents = append(append(generic.ArrayObject{save}, contents...), restore)
	}
	dict.Set("Contents", append(contents, streamRef))

	merged, err := w.pageResources(dict, page)
	if err != nil {
		return generic.Reference{}, err
	}
	if err := w.mergeResources(merged, resources); err != nil {
		return generic.Reference{}, err
	}
	dict.Set("Resources", merged)
	return streamRef, nil
}

// pageResources returns a private copy of the page's effective resources.
func (w *IncrementalWriter) pageResources(dict *generic.DictionaryObject, page *reader.Page) (*generic.DictionaryObject, error) {
	own := dict.Get("Resources")
	if own == nil {
		if page.Resources == nil {
			return generic.NewDictionary(), nil
		}
		return page.Resources.Clone().(*generic.DictionaryObject), nil
	}
	obj, err := w.resolve(own)
	if err != nil {
		return nil, err
	}
	d, ok := obj.(*generic.DictionaryObject)
	if !ok {
		return generic.NewDictionary(), nil
	}
	if _, direct := own.(*generic.DictionaryObject); direct {
		return d, nil
	}
	return d.Clone().(*generic.DictionaryObject), nil
}

// mergeResources copies every category of extra (Font, XObject, ...) into
// dst. Referenced category dictionaries are inlined first so the shared
// originals stay untouched.
func (w *IncrementalWriter) mergeResources(dst, extra *generic.DictionaryObject) error {
	if extra == nil {
		return nil
	}
	for _, category := range extra.Keys() {
		add, ok := extra.Get(category).(*generic.DictionaryObject)
		if !ok {
			if !dst.Has(category) {
				dst.Set(category, extra.Get(category).Clone())
			}
			continue
		}
		var target *generic.DictionaryObject
		switch cur := dst.Get(category).(type) {
		case *generic.DictionaryObject:
			target = cur
		case generic.Reference:
			obj, err := w.resolve(cur)
			if err != nil {
				return err
			}
			if d, ok := obj.(*generic.DictionaryObject); ok {
				target = d.Clone().(*generic.DictionaryObject)
			}
		}
		if target == nil {
			target = generic.NewDictionary()
		}
		for _, name := range add.Keys() {
			target.Set(name, add.Get(name).Clone())
		}
		dst.Set(category, target)
	}
	return nil
}

// AddPage appends a new page after all existing pages. The page is added
// to the root /Pages node and its /Count is incremented.
func (w *IncrementalWriter) AddPage(content []byte, resources *generic.DictionaryObject) (generic.Reference, error) {
	pagesRef := w.reader.PagesRef()
	root, err := w.writableDict(pagesRef.ObjectNumber)
	if err != nil {
		return generic.Reference{}, fmt.Errorf("%w: %v", ErrInvalidPages, err)
	}

	kidsObj, err := w.resolve(root.Get("Kids"))
	if err != nil {
		return generic.Reference{}, err
	}
	kids, _ := kidsObj.(generic.ArrayObject)
	countObj, err := w.resolve(root.Get("Count"))
	if err != nil {
		return generic.Reference{}, err
	}
	count, _ := countObj.(generic.IntegerObject)

	streamRef, err := w.AddStream(content)
	if err != nil {
		return generic.Reference{}, err
	}
	page := generic.NewDictionary()
	page.Set("Type", generic.NameObject("Page"))
	page.Set("Parent", pagesRef)
	page.Set("MediaBox", w.PageBox.ToArray())
	if resources != nil {
		page.Set("Resources", resources)
	}
	page.Set("Contents", streamRef)
	pageRef := w.AddObject(page)

	newKids := append(kids.Clone().(generic.ArrayObject), pageRef)
	root.Set("Kids", newKids)
	root.Set("Count", count+1)
	w.added = append(w.added, pageRef)
	return pageRef, nil
}

// AddedPages returns the pages created by AddPage, in order.
func (w *IncrementalWriter) AddedPages() []generic.Reference { return w.added }

// NumPages returns the page count after the update.
func (w *IncrementalWriter) NumPages() int {
	return w.reader.NumPages() + len(w.added)
}

// Bytes returns the original document followed by the update section.
func (w *IncrementalWriter) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := w.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write writes the original bytes followed by the update section.
func (w *IncrementalWriter) Write(out io.Writer) error {
	original := w.reader.Data()
	var buf bytes.Buffer
	buf.Grow(len(original) + 4096)
	buf.Write(original)
	if len(original) > 0 && original[len(original)-1] != '\n' && original[len(original)-1] != '\r' {
		buf.WriteByte('\n')
	}
	sectionStart := buf.Len()

	if w.HasChanges() {
		if err := w.touchInfo(); err != nil {
			return err
		}
	}

	nums := make([]int, 0, len(w.objects))
	for num := range w.objects {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	rows := make([]xrefRow, 0, len(nums))
	for _, num := range nums {
		gen := 0
		if e, ok := w.reader.Entry(num); ok && e.Type == reader.XRefTypeStandard {
			gen = e.Generation
		}
		obj := w.objects[num]
		if sec := w.reader.Security(); sec != nil {
			var err error
			if obj, err = sec.EncryptObject(obj, num, gen); err != nil {
				return fmt.Errorf("failed to encrypt object %d: %w", num, err)
			}
		}
		rows = append(rows, xrefRow{num: num, offset: int64(buf.Len()), generation: gen})
		if err := generic.NewIndirectObject(num, gen, obj).Write(&buf); err != nil {
			return fmt.Errorf("failed to write object %d: %w", num, err)
		}
	}

	xrefOffset := buf.Len()
	writeXRefTable(&buf, rows)

	trailer, err := w.trailer(buf.Bytes()[sectionStart:])
	if err != nil {
		return err
	}
	buf.WriteString("trailer\n")
	if err := trailer.Write(&buf); err != nil {
		return err
	}
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	_, err = out.Write(buf.Bytes())
	return err
}

// trailer builds the update trailer. Only Size, Root, Info, Encrypt, ID
// and Prev are carried over; xref-stream keys such as /W or /Filter do
// not belong in a classic trailer. An encrypted file keeps the ID[0] its
// key was derived from.
func (w *IncrementalWriter) trailer(section []byte) (*generic.DictionaryObject, error) {
	old := w.reader.Trailer()
	root := old.GetRoot()
	if root == nil {
		return nil, fmt.Errorf("%w: trailer has no /Root", reader.ErrInvalidPDF)
	}

	size := w.nextNum
	if s := w.reader.Size(); s > size {
		size = s
	}
	t := generic.NewDictionary()
	t.Set("Size", generic.IntegerObject(size))
	t.Set("Root", *root)
	if info := old.GetInfo(); info != nil {
		t.Set("Info", *info)
	}

	if enc := w.reader.EncryptRef(); enc != nil {
		t.Set("Encrypt", enc)
	}

	updated := generic.NewHexString(fileID(section))
	first := updated
	if sec := w.reader.Security(); sec != nil {
		first = generic.NewHexString(sec.FileID)
	}
	if ids, ok := old.Get("ID").(generic.ArrayObject); ok && len(ids) == 2 {
		if s, ok := ids[0].(*generic.StringObject); ok {
			first = s
		}
	}
	t.Set("ID", generic.NewArray(first, updated))
	t.Set("Prev", generic.IntegerObject(w.reader.StartXRef()))
	return t, nil
}

// touchInfo records the modification in the information dictionary.
func (w *IncrementalWriter) touchInfo() error {
	info := w.reader.Trailer().GetInfo()
	if info == nil {
		return nil
	}
	d, err := w.writableDict(info.ObjectNumber)
	if err != nil {
		// An unreadable info dictionary is left alone.
		return nil
	}
	d.Set("ModDate", generic.NewLiteralString(metadata.FormatPDFDate(w.Clock.Now())))
	return nil
}
