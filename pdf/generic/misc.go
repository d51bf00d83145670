package generic

import (
	"errors"
	"fmt"
	"unicode/utf16"
)

// Common errors
var (
	ErrInvalidObject     = errors.New("invalid PDF object")
	ErrInvalidStream     = errors.New("invalid PDF stream")
	ErrInvalidDictionary = errors.New("invalid PDF dictionary")
	ErrInvalidArray      = errors.New("invalid PDF array")
	ErrInvalidString     = errors.New("invalid PDF string")
	ErrInvalidName       = errors.New("invalid PDF name")
	ErrInvalidNumber     = errors.New("invalid PDF number")
	ErrUnexpectedEOF     = errors.New("unexpected end of data")
)

// PdfError carries a message, the byte offset it refers to and a cause.
type PdfError struct {
	Message string
	Offset  int64
	Cause   error
}

func (e *PdfError) Error() string {
	msg := e.Message
	if e.Offset >= 0 {
		msg = fmt.Sprintf("%s at offset %d", msg, e.Offset)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *PdfError) Unwrap() error {
	return e.Cause
}

// NewPdfError creates a PdfError wrapping cause at the given offset.
// Pass a negative offset when no position applies.
func NewPdfError(msg string, offset int64, cause error) *PdfError {
	return &PdfError{Message: msg, Offset: offset, Cause: cause}
}

// IsWhitespace reports whether b is PDF whitespace.
func IsWhitespace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

// IsDelimiter reports whether b is a PDF delimiter.
func IsDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// IsRegular reports whether b can appear inside a bare token.
func IsRegular(b byte) bool {
	return !IsWhitespace(b) && !IsDelimiter(b)
}

func utf16Units(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

func decodeUTF16(units []uint16) string {
	return string(utf16.Decode(units))
}
