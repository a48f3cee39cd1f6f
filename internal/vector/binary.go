package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MarshalBinary encodes vec as little-endian IEEE 754 float32 values with no
// length prefix.
func MarshalBinary(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// UnmarshalBinary decodes a value produced by [MarshalBinary].
func UnmarshalBinary(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector: invalid binary length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
