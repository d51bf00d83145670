package filters

import "fmt"

// unpredict reverses a TIFF (2) or PNG (10-15) predictor.
func unpredict(data []byte, params *Params) ([]byte, error) {
	pred := params.predictor()
	if pred == 1 {
		return data, nil
	}
	colors, bpc, columns := params.geometry()
	bpp := (colors*bpc + 7) / 8
	rowLen := (columns*colors*bpc + 7) / 8

	switch {
	case pred == 2:
		if bpc != 8 {
			return nil, fmt.Errorf("%w: TIFF predictor with %d bits per component", ErrUnsupportedFilter, bpc)
		}
		out := append([]byte(nil), data...)
		for row := 0; row+rowLen <= len(out); row += rowLen {
			for i := bpp; i < rowLen; i++ {
				out[row+i] += out[row+i-bpp]
			}
		}
		return out, nil
	case pred >= 10 && pred <= 15:
		return unpredictPNG(data, rowLen, bpp)
	}
	return nil, fmt.Errorf("%w: predictor %d", ErrUnsupportedFilter, pred)
}

// unpredictPNG decodes rows that each start with a PNG filter-type byte.
func unpredictPNG(data []byte, rowLen, bpp int) ([]byte, error) {
	stride := rowLen + 1
	out := make([]byte, 0, len(data)/stride*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)

	for off := 0; off+stride <= len(data); off += stride {
		kind := data[off]
		src := data[off+1 : off+stride]
		for i := 0; i < rowLen; i++ {
			var left, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch kind {
			case 0:
				cur[i] = src[i]
			case 1:
				cur[i] = src[i] + left
			case 2:
				cur[i] = src[i] + up
			case 3:
				cur[i] = src[i] + byte((int(left)+int(up))/2)
			case 4:
				cur[i] = src[i] + paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("%w: PNG filter type %d", ErrDecodeFailed, kind)
			}
		}
		out = append(out, cur...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
