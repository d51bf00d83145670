// Package layout provides page geometry and fixed-position boxes and
// tables that are measured before they are drawn.
package layout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/georgepadayatti/pdfstamp/pdf/generic"
)

// ErrUnknownPageSize is returned by ParsePageSize.
var ErrUnknownPageSize = errors.New("unknown page size")

// PageSize represents standard page dimensions.
type PageSize struct {
	Width  float64
	Height float64
}

// Standard page sizes in points
var (
	A3     = PageSize{842, 1191}
	A4     = PageSize{595, 842}
	A5     = PageSize{420, 595}
	Letter = PageSize{612, 792}
	Legal  = PageSize{612, 1008}
)

var pageSizes = map[string]PageSize{
	"a3":     A3,
	"a4":     A4,
	"a5":     A5,
	"letter": Letter,
	"legal":  Legal,
}

// ParsePageSize parses a page size name such as "A4" or
// "letter-landscape".
func ParsePageSize(name string) (PageSize, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	landscape := false
	if base, ok := strings.CutSuffix(key, "-landscape"); ok {
		key, landscape = base, true
	}
	size, ok := pageSizes[key]
	if !ok {
		return PageSize{}, fmt.Errorf("%w: %q", ErrUnknownPageSize, name)
	}
	if landscape {
		size = size.Landscape()
	}
	return size, nil
}

// Landscape returns the page size in landscape orientation.
func (p PageSize) Landscape() PageSize {
	if p.Width < p.Height {
		return PageSize{p.Height, p.Width}
	}
	return p
}

// MediaBox returns [0 0 width height].
func (p PageSize) MediaBox() generic.Rectangle {
	return generic.Rectangle{URX: p.Width, URY: p.Height}
}

// Rectangle represents a rectangle with origin at bottom-left (PDF coordinates).
type Rectangle struct {
	X, Y          float64 // Bottom-left corner
	Width, Height float64
}

// NewRectangle creates a new rectangle.
func NewRectangle(x, y, width, height float64) Rectangle {
	return Rectangle{X: x, Y: y, Width: width, Height: height}
}

// Right returns the right edge X coordinate.
func (r Rectangle) Right() float64 {
	return r.X + r.Width
}

// Top returns the top edge Y coordinate.
func (r Rectangle) Top() float64 {
	return r.Y + r.Height
}

// Inset returns a rectangle inset by the same amount on all sides.
func (r Rectangle) Inset(amount float64) Rectangle {
	return Rectangle{
		X:      r.X + amount,
		Y:      r.Y + amount,
		Width:  r.Width - 2*amount,
		Height: r.Height - 2*amount,
	}
}

// ContainsRect returns true if the other rectangle is inside this one.
func (r Rectangle) ContainsRect(other Rectangle) bool {
	return other.X >= r.X && other.Right() <= r.Right() &&
		other.Y >= r.Y && other.Top() <= r.Top()
}

// Intersects returns true if the rectangles overlap.
func (r Rectangle) Intersects(other Rectangle) bool {
	return r.X < other.Right() && r.Right() > other.X &&
		r.Y < other.Top() && r.Top() > other.Y
}
