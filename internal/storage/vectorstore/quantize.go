package vectorstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// QuantileBound is the fraction of absolute component values kept inside
// the int8 range; the rest saturate.
const QuantileBound = 0.98

// Quantize maps v to int8 with a per-vector scale. The scale is the
// QuantileBound quantile of |v| divided by 127.
func Quantize(v []float32) ([]int8, float32) {
	if len(v) == 0 {
		return nil, 0
	}
	abs := make([]float64, len(v))
	for i, x := range v {
		abs[i] = math.Abs(float64(x))
	}
	sort.Float64s(abs)
	idx := int(math.Ceil(QuantileBound*float64(len(abs)))) - 1
	idx = max(0, min(idx, len(abs)-1))
	bound := abs[idx]
	if bound == 0 {
		bound = abs[len(abs)-1]
	}
	if bound == 0 {
		return make([]int8, len(v)), 0
	}
	scale := bound / 127

	out := make([]int8, len(v))
	for i, x := range v {
		q := math.Round(float64(x) / scale)
		out[i] = int8(max(-127, min(127, q)))
	}
	return out, float32(scale)
}

// Dequantize reverses Quantize approximately.
func Dequantize(q []int8, scale float32) []float32 {
	out := make([]float32, len(q))
	for i, x := range q {
		out[i] = float32(x) * scale
	}
	return out
}

// encodeVector serializes v as little-endian float32, or as int8 when
// quantized.
func encodeVector(v []float32, quantized bool) ([]byte, float32) {
	if quantized {
		q, scale := Quantize(v)
		buf := make([]byte, len(q))
		for i, x := range q {
			buf[i] = byte(x)
		}
		return buf, scale
	}
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf, 1
}

func decodeVector(buf []byte, scale float32, dimension int) ([]float32, error) {
	switch len(buf) {
	case dimension:
		q := make([]int8, len(buf))
		for i, b := range buf {
			q[i] = int8(b)
		}
		return Dequantize(q, scale), nil
	case 4 * dimension:
		out := make([]float32, dimension)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("vector blob of %d bytes does not match dimension %d", len(buf), dimension)
	}
}
