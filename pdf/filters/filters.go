// Package filters implements the PDF stream filters needed to read
// arbitrary input documents and to compress the streams we write.
package filters

import (
	"bytes"
	"compress/lzw"
	"compress/zlib"
	"encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	tifflzw "golang.org/x/image/tiff/lzw"
)

// Common errors
var (
	ErrUnsupportedFilter = errors.New("unsupported filter")
	ErrDecodeFailed      = errors.New("decode failed")
)

// Params holds the /DecodeParms entries the filters understand.
// Zero values mean "use the PDF default".
type Params struct {
	Predictor        int
	Colors           int
	BitsPerComponent int
	Columns          int
	// EarlyChange is a pointer because the PDF default is 1, not 0.
	EarlyChange *int
}

func (p *Params) predictor() int {
	if p == nil || p.Predictor == 0 {
		return 1
	}
	return p.Predictor
}

func (p *Params) geometry() (colors, bpc, columns int) {
	colors, bpc, columns = 1, 8, 1
	if p == nil {
		return
	}
	if p.Colors > 0 {
		colors = p.Colors
	}
	if p.BitsPerComponent > 0 {
		bpc = p.BitsPerComponent
	}
	if p.Columns > 0 {
		columns = p.Columns
	}
	return
}

// Filter is a PDF stream filter.
type Filter interface {
	Name() string
	Decode(data []byte, params *Params) ([]byte, error)
	Encode(data []byte, params *Params) ([]byte, error)
}

// Flate implements /FlateDecode.
type Flate struct{}

// Name implements Filter.
func (Flate) Name() string { return "FlateDecode" }

// Decode implements Filter.
func (Flate) Decode(data []byte, params *Params) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil && !(errors.Is(err, io.ErrUnexpectedEOF) && len(out) > 0) {
		// Truncated zlib trailers are common; keep the data we got.
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return unpredict(out, params)
}

// Encode implements Filter.
func (Flate) Encode(data []byte, _ *Params) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("flate encode failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flate encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

// LZW implements /LZWDecode. With the default EarlyChange of 1 the code
// width grows one code early, exactly like TIFF, so the TIFF decoder is
// used; EarlyChange 0 is the classic variant.
type LZW struct{}

// Name implements Filter.
func (LZW) Name() string { return "LZWDecode" }

// Decode implements Filter.
func (LZW) Decode(data []byte, params *Params) ([]byte, error) {
	var r io.ReadCloser
	if params != nil && params.EarlyChange != nil && *params.EarlyChange == 0 {
		r = lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	} else {
		r = tifflzw.NewReader(bytes.NewReader(data), tifflzw.MSB, 8)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return unpredict(out, params)
}

// Encode implements Filter.
func (LZW) Encode([]byte, *Params) ([]byte, error) {
	return nil, fmt.Errorf("%w: LZWDecode encoding", ErrUnsupportedFilter)
}

// ASCIIHex implements /ASCIIHexDecode.
type ASCIIHex struct{}

// Name implements Filter.
func (ASCIIHex) Name() string { return "ASCIIHexDecode" }

// Decode implements Filter.
func (ASCIIHex) Decode(data []byte, _ *Params) ([]byte, error) {
	digits := make([]byte, 0, len(data))
	for _, b := range data {
		if b == '>' {
			break
		}
		switch b {
		case ' ', '\t', '\n', '\r', '\f', 0:
			continue
		}
		digits = append(digits, b)
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out, err := hex.DecodeString(string(digits))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return out, nil
}

// Encode implements Filter.
func (ASCIIHex) Encode(data []byte, _ *Params) ([]byte, error) {
	return []byte(hex.EncodeToString(data) + ">"), nil
}

// ASCII85 implements /ASCII85Decode.
type ASCII85 struct{}

// Name implements Filter.
func (ASCII85) Name() string { return "ASCII85Decode" }

// Decode implements Filter.
func (ASCII85) Decode(data []byte, _ *Params) ([]byte, error) {
	if end := bytes.Index(data, []byte("~>")); end >= 0 {
		data = data[:end]
	}
	data = bytes.TrimPrefix(bytes.TrimSpace(data), []byte("<~"))
	out, err := io.ReadAll(ascii85.NewDecoder(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return out, nil
}

// Encode implements Filter.
func (ASCII85) Encode(data []byte, _ *Params) ([]byte, error) {
	var buf bytes.Buffer
	enc := ascii85.NewEncoder(&buf)
	if _, err := enc.Write(data); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteString("~>")
	return buf.Bytes(), nil
}

// Registry maps filter names, including the abbreviations allowed in
// inline images, to implementations.
var Registry = map[string]Filter{
	"FlateDecode":    Flate{},
	"Fl":             Flate{},
	"LZWDecode":      LZW{},
	"LZW":            LZW{},
	"ASCIIHexDecode": ASCIIHex{},
	"AHx":            ASCIIHex{},
	"ASCII85Decode":  ASCII85{},
	"A85":            ASCII85{},
}

// GetFilter looks up a filter by name.
func GetFilter(name string) (Filter, error) {
	if f, ok := Registry[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
}

// DecodeStream applies the filter chain in order.
func DecodeStream(data []byte, names []string, params []*Params) ([]byte, error) {
	out := data
	for i, name := range names {
		f, err := GetFilter(name)
		if err != nil {
			return nil, err
		}
		var p *Params
		if i < len(params) {
			p = params[i]
		}
		if out, err = f.Decode(out, p); err != nil {
			return nil, fmt.Errorf("filter %s decode failed: %w", name, err)
		}
	}
	return out, nil
}

// EncodeStream applies the filter chain so that DecodeStream with the
// same names reverses it.
func EncodeStream(data []byte, names []string) ([]byte, error) {
	out := data
	for i := len(names) - 1; i >= 0; i-- {
		f, err := GetFilter(names[i])
		if err != nil {
			return nil, err
		}
		if out, err = f.Encode(out, nil); err != nil {
			return nil, fmt.Errorf("filter %s encode failed: %w", names[i], err)
		}
	}
	return out, nil
}
