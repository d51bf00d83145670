package layout

import (
	"github.com/georgepadayatti/pdfstamp/pdf/content"
)

// Table is a grid of cells filled row by row, with separate borders and
// spacing around every cell.
type Table struct {
	Columns  int
	Cells    []*Cell
	HSpacing float64
	VSpacing float64
}

// NewTable creates an empty table with columns columns.
func NewTable(columns int, hSpacing, vSpacing float64) *Table {
	if columns < 1 {
		columns = 1
	}
	return &Table{Columns: columns, HSpacing: hSpacing, VSpacing: vSpacing}
}

// AddCell appends a cell in the next free column.
func (t *Table) AddCell(c *Cell) {
	t.Cells = append(t.Cells, c)
}

// Rows returns the number of rows the cells occupy.
func (t *Table) Rows() int {
	return (len(t.Cells) + t.Columns - 1) / t.Columns
}

// TableLayout is the result of measuring a table.
type TableLayout struct {
	Width       float64
	Height      float64
	ColumnWidth float64
	RowHeights  []float64
	// Cells holds each cell's rectangle relative to the table's bottom
	// left corner.
	Cells []Rectangle
}

// Measure lays the table out at width without drawing it. Every cell in
// a row is stretched to the tallest one.
func (t *Table) Measure(width float64) TableLayout {
	cols := float64(t.Columns)
	l := TableLayout{
		Width:       width,
		ColumnWidth: (width - (cols+1)*t.HSpacing) / cols,
		RowHeights:  make([]float64, t.Rows()),
	}
	for i, c := range t.Cells {
		row := i / t.Columns
		l.RowHeights[row] = max(l.RowHeights[row], c.Measure(l.ColumnWidth).Height)
	}

	l.Height = float64(len(l.RowHeights)+1) * t.VSpacing
	for _, h := range l.RowHeights {
		l.Height += h
	}

	top := l.Height - t.VSpacing
	for row, h := range l.RowHeights {
		for col := 0; col < t.Columns; col++ {
			if row*t.Columns+col >= len(t.Cells) {
				break
			}
			x := t.HSpacing + float64(col)*(l.ColumnWidth+t.HSpacing)
			l.Cells = append(l.Cells, NewRectangle(x, top-h, l.ColumnWidth, h))
		}
		top -= h + t.VSpacing
	}
	return l
}

// Draw measures the table at width and draws it with its bottom left
// corner at (left, bottom).
func (t *Table) Draw(b *content.Builder, left, bottom, width float64) TableLayout {
	l := t.Measure(width)
	for i, c := range t.Cells {
		r := l.Cells[i]
		c.Draw(b, NewRectangle(left+r.X, bottom+r.Y, r.Width, r.Height))
	}
	return l
}
