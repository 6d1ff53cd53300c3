package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/roach88/texgraph/internal/buffer"
)

// EncodePixels packs float32 samples as little-endian IEEE bits. Every
// backend stores pixels in this form.
func EncodePixels(pix []float32) []byte {
	out := make([]byte, len(pix)*4)
	for i, v := range pix {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// DecodeBuffer rebuilds a buffer and checks it against the stored digest.
func DecodeBuffer(width, height, channels int, digest string, data []byte) (*buffer.Buffer, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("decode buffer: %d bytes is not a whole number of samples", len(data))
	}
	pix := make([]float32, len(data)/4)
	for i := range pix {
		pix[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	b, err := buffer.FromPixels(buffer.Size{Width: width, Height: height}, channels, pix)
	if err != nil {
		return nil, fmt.Errorf("decode buffer: %w", err)
	}
	if got := b.Digest(); got != digest {
		return nil, fmt.Errorf("decode buffer: digest mismatch (stored %s, computed %s)", digest, got)
	}
	return b, nil
}
