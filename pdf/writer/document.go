package writer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jonboulle/clockwork"

	"github.com/georgepadayatti/pdfstamp/pdf/crypt"
	"github.com/georgepadayatti/pdfstamp/pdf/generic"
	"github.com/georgepadayatti/pdfstamp/pdf/metadata"
)

// DocumentWriter creates new PDF files.
type DocumentWriter struct {
	Version string
	// Compress Flate-encodes content streams.
	Compress bool
	// XRefStream stores non-stream objects in an object stream and writes
	// a cross-reference stream instead of a classic table.
	XRefStream bool
	Clock      clockwork.Clock
	Info       *generic.DictionaryObject
	// Security encrypts the file. Its FileID becomes ID[0].
	Security *crypt.StandardSecurityHandler

	objects  []generic.PdfObject
	catalog  *generic.DictionaryObject
	pages    *generic.DictionaryObject
	pagesRef generic.Reference
}

// NewDocumentWriter creates a writer with an empty page tree.
func NewDocumentWriter() *DocumentWriter {
	w := &DocumentWriter{
		Version:  "1.7",
		Compress: true,
		Clock:    clockwork.NewRealClock(),
		Info:     generic.NewDictionary(),
	}

	w.pages = generic.NewDictionary()
	w.pages.Set("Type", generic.NameObject("Pages"))
	w.pages.Set("Kids", generic.ArrayObject{})
	w.pages.Set("Count", generic.IntegerObject(0))
	w.pagesRef = w.AddObject(w.pages)

	w.catalog = generic.NewDictionary()
	w.catalog.Set("Type", generic.NameObject("Catalog"))
	w.catalog.Set("Pages", w.pagesRef)
	w.AddObject(w.catalog)

	w.Info.Set("Producer", generic.NewTextString(metadata.Producer))
	return w
}

// Catalog returns the document catalog.
func (w *DocumentWriter) Catalog() *generic.DictionaryObject { return w.catalog }

// AddObject adds an object and returns its reference.
func (w *DocumentWriter) AddObject(obj generic.PdfObject) generic.Reference {
	w.objects = append(w.objects, obj)
	return generic.NewReference(len(w.objects), 0)
}

// UpdateObject replaces object num. Numbers past the end are ignored.
func (w *DocumentWriter) UpdateObject(num int, obj generic.PdfObject) {
	if num < 1 || num > len(w.objects) {
		return
	}
	w.objects[num-1] = obj
}

// NumPages returns the number of pages added so far.
func (w *DocumentWriter) NumPages() int {
	return len(w.pages.GetArray("Kids"))
}

// AddPage appends a page with the given content stream and resources.
func (w *DocumentWriter) AddPage(mediaBox generic.Rectangle, content []byte, resources *generic.DictionaryObject) (generic.Reference, error) {
	page := generic.NewDictionary()
	page.Set("Type", generic.NameObject("Page"))
	page.Set("Parent", w.pagesRef)
	page.Set("MediaBox", mediaBox.ToArray())
	if resources != nil {
		page.Set("Resources", resources)
	}
	if content != nil {
		stream, err := NewContentStream(content, w.Compress)
		if err != nil {
			return generic.Reference{}, err
		}
		page.Set("Contents", w.AddObject(stream))
	}

	pageRef := w.AddObject(page)
	kids := append(w.pages.GetArray("Kids"), pageRef)
	w.pages.Set("Kids", kids)
	w.pages.Set("Count", generic.IntegerObject(len(kids)))
	return pageRef, nil
}

// Bytes serializes the document.
func (w *DocumentWriter) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := w.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write writes the PDF to out.
func (w *DocumentWriter) Write(out io.Writer) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n", w.Version)
	buf.Write(binaryComment)

	if !w.Info.Has("CreationDate") {
		w.Info.Set("CreationDate", generic.NewLiteralString(metadata.FormatPDFDate(w.Clock.Now())))
	}
	objects := append(append([]generic.PdfObject(nil), w.objects...), w.Info)
	t := bodyTrailer{
		root: generic.NewReference(2, 0),
		info: generic.NewReference(len(objects), 0),
		sec:  w.Security,
	}
	if w.Security != nil {
		objects = append(objects, w.Security.Dictionary())
		t.encrypt = generic.NewReference(len(objects), 0)
	}

	var err error
	if w.XRefStream {
		err = writeCompressedBody(&buf, objects, t)
	} else {
		err = writeClassicBody(&buf, objects, t)
	}
	if err != nil {
		return err
	}

	_, err = out.Write(buf.Bytes())
	return err
}

// bodyTrailer holds the trailer entries shared by both body layouts.
type bodyTrailer struct {
	root, info, encrypt generic.Reference
	sec                 *crypt.StandardSecurityHandler
}

// encryptObject returns obj as it must be stored under num.
func (t bodyTrailer) encryptObject(obj generic.PdfObject, num int) (generic.PdfObject, error) {
	if t.sec == nil || num == t.encrypt.ObjectNumber {
		return obj, nil
	}
	return t.sec.EncryptObject(obj, num, 0)
}

func (t bodyTrailer) set(d *generic.DictionaryObject, written []byte) {
	d.Set("Root", t.root)
	d.Set("Info", t.info)
	id := generic.NewHexString(fileID(written))
	first := id
	if t.sec != nil {
		d.Set("Encrypt", t.encrypt)
		first = generic.NewHexString(t.sec.FileID)
	}
	d.Set("ID", generic.NewArray(first, id))
}

func writeClassicBody(buf *bytes.Buffer, objects []generic.PdfObject, t bodyTrailer) error {
	rows := make([]xrefRow, 0, len(objects))
	for i, obj := range objects {
		num := i + 1
		obj, err := t.encryptObject(obj, num)
		if err != nil {
			return fmt.Errorf("failed to encrypt object %d: %w", num, err)
		}
		rows = append(rows, xrefRow{num: num, offset: int64(buf.Len())})
		if err := generic.NewIndirectObject(num, 0, obj).Write(buf); err != nil {
			return fmt.Errorf("failed to write object %d: %w", num, err)
		}
	}
	written := bytes.Clone(buf.Bytes())

	xrefOffset := buf.Len()
	writeXRefTable(buf, rows)

	trailer := generic.NewDictionary()
	trailer.Set("Size", generic.IntegerObject(len(objects)+1))
	t.set(trailer, written)
	buf.WriteString("trailer\n")
	if err := trailer.Write(buf); err != nil {
		return err
	}
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return nil
}

// writeCompressedBody packs every non-stream object into one object
// stream and indexes the file with a cross-reference stream.
// With encryption the object stream is encrypted as a whole; the
// objects inside it are not encrypted again.
func writeCompressedBody(buf *bytes.Buffer, objects []generic.PdfObject, t bodyTrailer) error {
	n := len(objects)
	objStmNum, xrefNum := n+1, n+2

	type entry struct {
		kind  byte
		field int64
		index int
	}
	entries := make([]entry, n+3)
	entries[0] = entry{kind: 0, index: 65535}

	var header, body bytes.Buffer
	packed := 0
	for i, obj := range objects {
		num := i + 1
		_, isStream := obj.(*generic.StreamObject)
		if isStream || num == t.encrypt.ObjectNumber {
			obj, err := t.encryptObject(obj, num)
			if err != nil {
				return fmt.Errorf("failed to encrypt object %d: %w", num, err)
			}
			entries[num] = entry{kind: 1, field: int64(buf.Len())}
			if err := generic.NewIndirectObject(num, 0, obj).Write(buf); err != nil {
				return fmt.Errorf("failed to write object %d: %w", num, err)
			}
			continue
		}
		fmt.Fprintf(&header, "%d %d ", num, body.Len())
		if err := obj.Write(&body); err != nil {
			return fmt.Errorf("failed to write object %d: %w", num, err)
		}
		body.WriteByte('\n')
		entries[num] = entry{kind: 2, field: int64(objStmNum), index: packed}
		packed++
	}

	objStm, err := NewContentStream(append(header.Bytes(), body.Bytes()...), true)
	if err != nil {
		return err
	}
	objStm.Dictionary.Set("Type", generic.NameObject("ObjStm"))
	objStm.Dictionary.Set("N", generic.IntegerObject(packed))
	objStm.Dictionary.Set("First", generic.IntegerObject(header.Len()))
	stored, err := t.encryptObject(objStm, objStmNum)
	if err != nil {
		return fmt.Errorf("failed to encrypt object stream: %w", err)
	}
	entries[objStmNum] = entry{kind: 1, field: int64(buf.Len())}
	if err := generic.NewIndirectObject(objStmNum, 0, stored).Write(buf); err != nil {
		return err
	}
	written := bytes.Clone(buf.Bytes())

	xrefOffset := buf.Len()
	entries[xrefNum] = entry{kind: 1, field: int64(xrefOffset)}

	var rows bytes.Buffer
	for _, e := range entries {
		rows.WriteByte(e.kind)
		binary.Write(&rows, binary.BigEndian, uint32(e.field))
		binary.Write(&rows, binary.BigEndian, uint16(e.index))
	}
	xref, err := NewContentStream(rows.Bytes(), true)
	if err != nil {
		return err
	}
	xref.Dictionary.Set("Type", generic.NameObject("XRef"))
	xref.Dictionary.Set("Size", generic.IntegerObject(len(entries)))
	xref.Dictionary.Set("W", generic.NumberArray(1, 4, 2))
	t.set(xref.Dictionary, written)
	if err := generic.NewIndirectObject(xrefNum, 0, xref).Write(buf); err != nil {
		return err
	}
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return nil
}
