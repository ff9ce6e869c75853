package sqlite

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// encodeEmbedding packs a float32 vector into little-endian bytes plus a
// JSON shape tag. The shape tag lets readers validate the blob length before
// decoding.
func encodeEmbedding(vec []float32) ([]byte, string) {
	blob := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	shape, _ := json.Marshal([]int{len(vec)})
	return blob, string(shape)
}

// decodeEmbedding unpacks a little-endian float32 blob, validating it
// against the stored shape tag.
func decodeEmbedding(blob []byte, shape string) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	n := len(blob) / 4

	if shape != "" {
		var dims []int
		if err := json.Unmarshal([]byte(shape), &dims); err != nil {
			return nil, fmt.Errorf("invalid embedding shape %q: %w", shape, err)
		}
		if len(dims) != 1 || dims[0] != n {
			return nil, fmt.Errorf("embedding shape %v does not match blob of %d floats", dims, n)
		}
	}

	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
