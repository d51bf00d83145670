package stamp

import (
	"fmt"

	"github.com/georgepadayatti/pdfstamp/pdf/content"
	"github.com/georgepadayatti/pdfstamp/pdf/generic"
	"github.com/georgepadayatti/pdfstamp/pdf/layout"
)

// Default certificate page text.
const (
	DefaultWarningText = "Нижеприведённая информация о цифровых подписях без заверения " +
		"собственноручной подписью доверенного лица на бумаге или без личной проверки " +
		"подлинности не действительна и может использоваться только в справочных целях."
	DefaultHolder = "Princess Leia"
	DefaultLabel  = "Certificate № Episode VI : Return of The Jedi"
	DefaultSince  = "1983"
)

// CertificateOptions configures the appended certificate pages.
type CertificateOptions struct {
	// Signatures is the number of certificate cells (N).
	Signatures int
	// Capacity is the maximum number of cells per page (C).
	Capacity int
	// Columns is the number of cells per row (K).
	Columns int

	PageSize layout.PageSize
	// Margin is the page margin. Gap separates the banner from the block
	// and cells from each other.
	Margin         float64
	Gap            float64
	WarningHeight  float64
	WarningPadding float64

	WarningText string
	Holder      string
	Label       string
	Since       string

	Style Style
}

// DefaultCertificateOptions returns 16 signatures, 10 per page in 2
// columns, on A4.
func DefaultCertificateOptions() CertificateOptions {
	return CertificateOptions{
		Signatures:     16,
		Capacity:       10,
		Columns:        2,
		PageSize:       layout.A4,
		Margin:         15,
		Gap:            5,
		WarningHeight:  30,
		WarningPadding: 5,
		WarningText:    DefaultWarningText,
		Holder:         DefaultHolder,
		Label:          DefaultLabel,
		Since:          DefaultSince,
		Style:          DefaultCertificateStyle(),
	}
}

// Validate checks the options.
func (o *CertificateOptions) Validate() error {
	switch {
	case o.Signatures < 0:
		return fmt.Errorf("%w: signatures must not be negative, got %d", ErrInvalidOptions, o.Signatures)
	case o.Capacity < 1:
		return fmt.Errorf("%w: capacity must be at least 1, got %d", ErrInvalidOptions, o.Capacity)
	case o.Columns < 1:
		return fmt.Errorf("%w: columns must be at least 1, got %d", ErrInvalidOptions, o.Columns)
	case o.PageSize.Width <= 4*o.Margin || o.PageSize.Height <= 0:
		return fmt.Errorf("%w: page %gx%g is too small for margin %g", ErrInvalidOptions,
			o.PageSize.Width, o.PageSize.Height, o.Margin)
	case o.Margin < 0 || o.Gap < 0 || o.WarningHeight < 0 || o.WarningPadding < 0:
		return fmt.Errorf("%w: margins and gaps must not be negative", ErrInvalidOptions)
	}
	return o.Style.Validate()
}

// Pages returns the number of pages the options produce: ceil(N/C).
func (o *CertificateOptions) Pages() int {
	if o.Capacity < 1 {
		return 0
	}
	return (o.Signatures + o.Capacity - 1) / o.Capacity
}

// CertificateCell is one numbered signature certificate.
type CertificateCell struct {
	Index  int
	Holder string
	Label  string
	Since  string
}

// Lines returns the holder line, the label and the "Since" line.
func (c CertificateCell) Lines() []string {
	return []string{
		fmt.Sprintf("%s %d", c.Holder, c.Index),
		c.Label,
		"Since: " + c.Since,
	}
}

// Block is the grid of cells drawn on one certificate page.
type Block struct {
	Cells []CertificateCell
	table *layout.Table
}

// PlacedBlock describes a block after it was committed to a page.
type PlacedBlock struct {
	// Page is the ordinal of the appended page, from 0.
	Page    int
	PageRef generic.Reference
	Indices []int
	Rows    int
	// Height is the measured height of the block.
	Height float64
	Block  layout.Rectangle
	Banner layout.Rectangle
}

// PageSink receives the finished certificate pages.
// *writer.IncrementalWriter implements it.
type PageSink interface {
	AddPage(content []byte, resources *generic.DictionaryObject) (generic.Reference, error)
}

type blockState int

const (
	// stateAccumulating adds cells to the current block.
	stateAccumulating blockState = iota
	// stateFlushing measures, places and commits the current block.
	stateFlushing
)

func (s blockState) String() string {
	if s == stateFlushing {
		return "FLUSHING"
	}
	return "ACCUMULATING"
}

// CertificatePaginator packs certificate cells onto new pages, Capacity
// cells per page, below a warning banner.
type CertificatePaginator struct {
	opts CertificateOptions
}

// NewCertificatePaginator validates opts and creates a paginator.
func NewCertificatePaginator(opts CertificateOptions) (*CertificatePaginator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &CertificatePaginator{opts: opts}, nil
}

// Options returns the paginator's options.
func (p *CertificatePaginator) Options() CertificateOptions { return p.opts }

func (p *CertificatePaginator) newBlock() *Block {
	gap := p.opts.Gap
	return &Block{table: layout.NewTable(p.opts.Columns, gap, gap)}
}

func (p *CertificatePaginator) addCell(b *Block, res *Resources, index int) {
	c := CertificateCell{Index: index, Holder: p.opts.Holder, Label: p.opts.Label, Since: p.opts.Since}
	lines := c.Lines()
	s := p.opts.Style

	cell := s.cell()
	cell.Paragraphs = []*layout.Paragraph{
		s.paragraph(res, lines[0], true),
		s.paragraph(res, lines[1], false),
		s.paragraph(res, lines[2], false),
	}
	b.Cells = append(b.Cells, c)
	b.table.AddCell(cell)
}

func (p *CertificatePaginator) banner(res *Resources) *layout.Cell {
	s := p.opts.Style
	return &layout.Cell{
		Padding:    p.opts.WarningPadding,
		Paragraphs: []*layout.Paragraph{s.paragraph(res, p.opts.WarningText, true)},
	}
}

// Paginate appends ceil(N/C) pages to sink. Cells are numbered 0..N-1 in
// order. Each block is measured at its final width before it is placed:
//
//	bottom = top - margin - warningHeight - 2*gap - height
//
// and its banner sits at top - margin - warningHeight. N == 0 appends no
// pages.
func (p *CertificatePaginator) Paginate(sink PageSink, res *Resources) ([]PlacedBlock, error) {
	o := p.opts
	n := o.Signatures
	top := o.PageSize.Height
	width := o.PageSize.Width - 2*o.Margin

	var placed []PlacedBlock
	state := stateAccumulating
	block := p.newBlock()
	added := 0

	for added < n || state == stateFlushing {
		switch state {
		case stateAccumulating:
			p.addCell(block, res, added)
			added++
			if added%o.Capacity == 0 || added == n {
				state = stateFlushing
			}

		case stateFlushing:
			measured := block.table.Measure(width)
			blockRect := layout.NewRectangle(o.Margin,
				top-o.Margin-o.WarningHeight-2*o.Gap-measured.Height,
				width, measured.Height)

			banner := p.banner(res)
			bannerWidth := o.PageSize.Width - 4*o.Margin
			bannerRect := layout.NewRectangle(o.Margin+o.Gap, top-o.Margin-o.WarningHeight,
				bannerWidth, banner.Measure(bannerWidth).Height)

			b := content.NewBuilder().SaveState()
			banner.Draw(b, bannerRect)
			block.table.Draw(b, blockRect.X, blockRect.Y, blockRect.Width)
			b.RestoreState()

			ref, err := sink.AddPage(b.Bytes(), res.Dict())
			if err != nil {
				return placed, fmt.Errorf("failed to add certificate page %d: %w", len(placed)+1, err)
			}

			indices := make([]int, len(block.Cells))
			for i, c := range block.Cells {
				indices[i] = c.Index
			}
			placed = append(placed, PlacedBlock{
				Page:    len(placed),
				PageRef: ref,
				Indices: indices,
				Rows:    block.table.Rows(),
				Height:  measured.Height,
				Block:   blockRect,
				Banner:  bannerRect,
			})

			block = p.newBlock()
			state = stateAccumulating
		}
	}
	return placed, nil
}

// Texts returns every string the paginator draws for its options, for
// font coverage checks.
func (o *CertificateOptions) Texts() []string {
	c := CertificateCell{Index: 0, Holder: o.Holder, Label: o.Label, Since: o.Since}
	return append(c.Lines(), o.WarningText, "0123456789")
}
