// Package buffer implements the pixel buffers produced by node output slots.
//
// A Buffer is immutable once published: the engine replaces buffers on
// recomputation and shares them read-only with every consumer. Channel values
// are float32 in the closed range [0, 1], row-major and interleaved.
package buffer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
)

// Channel counts for the two supported pixel formats.
const (
	Gray = 1
	RGBA = 4
)

// DomainBuffer prefixes the content digest of a buffer.
const DomainBuffer = "texgraph/buffer/v1"

// Size is a width/height pair.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Pixels returns width*height.
func (s Size) Pixels() int {
	return s.Width * s.Height
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Buffer is a materialized pixel array for one (node, slot).
type Buffer struct {
	size     Size
	channels int
	pix      []float32

	digestOnce sync.Once
	digest     string
}

// New allocates a zeroed buffer. Panics on a non-positive size or an
// unsupported channel count; callers validate user input before this point.
func New(size Size, channels int) *Buffer {
	if size.Width <= 0 || size.Height <= 0 {
		panic(fmt.Sprintf("buffer: invalid size %s", size))
	}
	if channels != Gray && channels != RGBA {
		panic(fmt.Sprintf("buffer: invalid channel count %d", channels))
	}
	return &Buffer{
		size:     size,
		channels: channels,
		pix:      make([]float32, size.Pixels()*channels),
	}
}

// FromPixels wraps pix without copying. The caller must not modify pix afterwards.
func FromPixels(size Size, channels int, pix []float32) (*Buffer, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("buffer: invalid size %s", size)
	}
	if channels != Gray && channels != RGBA {
		return nil, fmt.Errorf("buffer: invalid channel count %d", channels)
	}
	if len(pix) != size.Pixels()*channels {
		return nil, fmt.Errorf("buffer: %d values for %s with %d channels", len(pix), size, channels)
	}
	return &Buffer{size: size, channels: channels, pix: pix}, nil
}

// Uniform returns a buffer where every channel of every pixel equals v (clamped).
func Uniform(size Size, channels int, v float32) *Buffer {
	b := New(size, channels)
	v = Clamp(v)
	for i := range b.pix {
		b.pix[i] = v
	}
	return b
}

// Size returns the buffer dimensions.
func (b *Buffer) Size() Size { return b.size }

// Width returns the buffer width in pixels.
func (b *Buffer) Width() int { return b.size.Width }

// Height returns the buffer height in pixels.
func (b *Buffer) Height() int { return b.size.Height }

// Channels returns 1 for gray buffers and 4 for RGBA buffers.
func (b *Buffer) Channels() int { return b.channels }

// Pix exposes the backing slice. It must be treated as read-only once the
// buffer has been handed to anyone else.
func (b *Buffer) Pix() []float32 { return b.pix }

// At returns channel c of pixel (x, y).
func (b *Buffer) At(x, y, c int) float32 {
	return b.pix[(y*b.size.Width+x)*b.channels+c]
}

// Set writes channel c of pixel (x, y), clamped to [0, 1].
// Only valid while the buffer is still private to its producer.
func (b *Buffer) Set(x, y, c int, v float32) {
	b.pix[(y*b.size.Width+x)*b.channels+c] = Clamp(v)
}

// ToRGBA promotes a gray buffer by replicating its value into all four
// channels. RGBA buffers are returned unchanged.
func (b *Buffer) ToRGBA() *Buffer {
	if b.channels == RGBA {
		return b
	}
	out := New(b.size, RGBA)
	for i, v := range b.pix {
		j := i * RGBA
		out.pix[j] = v
		out.pix[j+1] = v
		out.pix[j+2] = v
		out.pix[j+3] = v
	}
	return out
}

// RGBA8 returns the buffer as width*height*4 bytes suitable for texture upload
// or PNG export. Gray buffers are expanded with an opaque alpha channel.
func (b *Buffer) RGBA8() []byte {
	out := make([]byte, b.size.Pixels()*RGBA)
	for p := 0; p < b.size.Pixels(); p++ {
		if b.channels == Gray {
			v := ToByte(b.pix[p])
			out[p*4] = v
			out[p*4+1] = v
			out[p*4+2] = v
			out[p*4+3] = 255
			continue
		}
		for c := 0; c < RGBA; c++ {
			out[p*4+c] = ToByte(b.pix[p*4+c])
		}
	}
	return out
}

// Digest returns the hex SHA-256 of the buffer's format and contents.
// Computed once and memoized, which is safe because buffers are immutable
// after publication.
func (b *Buffer) Digest() string {
	b.digestOnce.Do(func() {
		h := sha256.New()
		h.Write([]byte(DomainBuffer))
		h.Write([]byte{0x00})
		var word [4]byte
		for _, v := range []int{b.size.Width, b.size.Height, b.channels} {
			binary.LittleEndian.PutUint32(word[:], uint32(v))
			h.Write(word[:])
		}
		for _, v := range b.pix {
			binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
			h.Write(word[:])
		}
		b.digest = hex.EncodeToString(h.Sum(nil))
	})
	return b.digest
}

// Clamp limits v to [0, 1]. NaN maps to 0.
func Clamp(v float32) float32 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// ToByte quantizes a [0, 1] channel value to 0..255 with rounding.
func ToByte(v float32) byte {
	return byte(math.Round(float64(Clamp(v)) * 255))
}
