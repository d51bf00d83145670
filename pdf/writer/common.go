// Package writer creates new PDF files and appends incremental updates to
// existing ones.
package writer

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/georgepadayatti/pdfstamp/pdf/filters"
	"github.com/georgepadayatti/pdfstamp/pdf/generic"
)

// Common errors
var (
	ErrPageOutOfRange = errors.New("page index out of range")
	ErrInvalidPages   = errors.New("page tree cannot be updated")
)

// binaryComment marks the file as binary for transfer tools.
var binaryComment = []byte{0x25, 0xE2, 0xE3, 0xCF, 0xD3, 0x0A}

// NewContentStream wraps content in a stream object, Flate-compressed
// when compress is set.
func NewContentStream(content []byte, compress bool) (*generic.StreamObject, error) {
	if !compress {
		return generic.NewStream(nil, content), nil
	}
	encoded, err := filters.Flate{}.Encode(content, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compress stream: %w", err)
	}
	stream := generic.NewStream(nil, encoded)
	stream.Dictionary.Set("Filter", generic.NameObject("FlateDecode"))
	stream.Decoded = content
	return stream, nil
}

// fileID derives a 16-byte file identifier from data.
func fileID(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:16]
}

// xrefRow is one in-use entry of a classic xref table.
type xrefRow struct {
	num        int
	offset     int64
	generation int
}

// writeXRefTable writes a classic table with contiguous subsections. The
// free head entry for object 0 is always included.
func writeXRefTable(buf *bytes.Buffer, rows []xrefRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].num < rows[j].num })

	type run struct {
		start int
		rows  []xrefRow
	}
	var runs []run
	for _, row := range rows {
		if n := len(runs); n > 0 && runs[n-1].start+len(runs[n-1].rows) == row.num {
			runs[n-1].rows = append(runs[n-1].rows, row)
			continue
		}
		runs = append(runs, run{start: row.num, rows: []xrefRow{row}})
	}

	buf.WriteString("xref\n")
	if len(runs) > 0 && runs[0].start == 1 {
		fmt.Fprintf(buf, "0 %d\n0000000000 65535 f \n", len(runs[0].rows)+1)
		writeXRefRows(buf, runs[0].rows)
		runs = runs[1:]
	} else {
		buf.WriteString("0 1\n0000000000 65535 f \n")
	}
	for _, r := range runs {
		fmt.Fprintf(buf, "%d %d\n", r.start, len(r.rows))
		writeXRefRows(buf, r.rows)
	}
}

func writeXRefRows(buf *bytes.Buffer, rows []xrefRow) {
	for _, row := range rows {
		fmt.Fprintf(buf, "%010d %05d n \n", row.offset, row.generation)
	}
}
