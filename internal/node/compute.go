package node

import (
	"math"

	"github.com/roach88/texgraph/internal/buffer"
)

// Compute runs the variant's compute function. inputs has one entry per input
// slot; nil marks an unconnected slot. The returned slice has one buffer per
// output slot. Compute never mutates its inputs.
func Compute(n Node, inputs []*buffer.Buffer) ([]*buffer.Buffer, error) {
	out, err := compute(n, inputs)
	if err != nil {
		if ce, ok := err.(*ComputeError); ok && ce.Node == 0 {
			ce.Node = n.ID
		}
		return nil, err
	}
	return out, nil
}

func compute(n Node, inputs []*buffer.Buffer) ([]*buffer.Buffer, error) {
	t := n.Type
	if want := len(t.Inputs()); len(inputs) != want {
		return nil, computeErrorf(ErrCodeInvalidBufferCount, "%s expects %d inputs, got %d", t.Kind, want, len(inputs))
	}
	for i, in := range inputs {
		if in == nil {
			return nil, computeErrorf(ErrCodeInvalidBufferCount, "%s input %d is not connected", t.Kind, i)
		}
	}

	switch t.Kind {
	case KindValue:
		size := buffer.Size{Width: 1, Height: 1}
		if n.Resize.Kind == buffer.PolicySpecificSize {
			size = n.Resize.Size
		}
		if size.Width <= 0 || size.Height <= 0 {
			return nil, computeErrorf(ErrCodeInvalidBufferSize, "value size %s", size)
		}
		return []*buffer.Buffer{buffer.Uniform(size, buffer.Gray, t.Value)}, nil

	case KindImage:
		if t.Image == nil {
			return nil, computeErrorf(ErrCodeMissingImage, "image %q has no pixels", t.Path)
		}
		img := t.Image.ToRGBA()
		if n.Resize.Kind == buffer.PolicySpecificSize {
			size, err := buffer.Reconcile(n.Resize, nil)
			if err != nil {
				return nil, &ComputeError{Code: ErrCodeInvalidBufferSize, Message: "image resize", Err: err}
			}
			img = buffer.Resample(img, size, n.Filter)
		}
		return []*buffer.Buffer{img}, nil
	}

	size, err := buffer.Reconcile(n.Resize, inputs)
	if err != nil {
		return nil, &ComputeError{Code: ErrCodeInvalidBufferSize, Message: "reconcile input sizes", Err: err}
	}
	resized := make([]*buffer.Buffer, len(inputs))
	for i, in := range inputs {
		resized[i] = buffer.Resample(in, size, n.Filter)
	}

	switch t.Kind {
	case KindCombine:
		return combine(size, resized)
	case KindSeparate:
		return separate(size, resized[0]), nil
	case KindMix:
		return []*buffer.Buffer{mix(t.Mix, size, resized[0], resized[1])}, nil
	case KindHeightToNormal:
		if resized[0].Channels() != buffer.Gray {
			return nil, computeErrorf(ErrCodeInvalidChannels, "height input must be gray")
		}
		return []*buffer.Buffer{heightToNormal(resized[0], t.Strength)}, nil
	case KindOutputRgba:
		return []*buffer.Buffer{resized[0].ToRGBA()}, nil
	case KindOutputGray:
		if resized[0].Channels() != buffer.Gray {
			return nil, computeErrorf(ErrCodeInvalidChannels, "output_gray input must be gray")
		}
		return []*buffer.Buffer{resized[0]}, nil
	default:
		return nil, computeErrorf(ErrCodeInvalidBufferCount, "unknown node kind %d", int(t.Kind))
	}
}

func combine(size buffer.Size, in []*buffer.Buffer) ([]*buffer.Buffer, error) {
	out := buffer.New(size, buffer.RGBA)
	for c, ch := range in {
		if ch.Channels() != buffer.Gray {
			return nil, computeErrorf(ErrCodeInvalidChannels, "combine input %d must be gray", c)
		}
		src := ch.Pix()
		dst := out.Pix()
		for p := range src {
			dst[p*buffer.RGBA+c] = src[p]
		}
	}
	return []*buffer.Buffer{out}, nil
}

func separate(size buffer.Size, in *buffer.Buffer) []*buffer.Buffer {
	rgba := in.ToRGBA()
	src := rgba.Pix()
	out := make([]*buffer.Buffer, buffer.RGBA)
	for c := range out {
		ch := buffer.New(size, buffer.Gray)
		dst := ch.Pix()
		for p := range dst {
			dst[p] = src[p*buffer.RGBA+c]
		}
		out[c] = ch
	}
	return out
}

// mix applies op per channel. If either input is RGBA the gray one is
// promoted and the result is RGBA.
func mix(op MixOp, size buffer.Size, a, b *buffer.Buffer) *buffer.Buffer {
	if a.Channels() != b.Channels() {
		a, b = a.ToRGBA(), b.ToRGBA()
	}
	out := buffer.New(size, a.Channels())
	ap, bp, dst := a.Pix(), b.Pix(), out.Pix()
	for i := range dst {
		dst[i] = buffer.Clamp(applyMix(op, ap[i], bp[i]))
	}
	return out
}

func applyMix(op MixOp, a, b float32) float32 {
	switch op {
	case MixAdd:
		return a + b
	case MixSubtract:
		return a - b
	case MixMultiply:
		return a * b
	case MixDivide:
		if b == 0 {
			return 0
		}
		return a / b
	default:
		return 0
	}
}

// heightToNormal derives normals from central differences with clamp-to-edge
// sampling and encodes them into [0, 1] as n*0.5+0.5. Alpha is opaque.
func heightToNormal(h *buffer.Buffer, strength float32) *buffer.Buffer {
	w, ht := h.Width(), h.Height()
	out := buffer.New(h.Size(), buffer.RGBA)
	at := func(x, y int) float64 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), ht-1)
		return float64(h.At(x, y, 0))
	}
	s := float64(strength)
	for y := 0; y < ht; y++ {
		for x := 0; x < w; x++ {
			dx := (at(x+1, y) - at(x-1, y)) * 0.5 * s
			dy := (at(x, y+1) - at(x, y-1)) * 0.5 * s
			nx, ny, nz := -dx, -dy, 1.0
			l := math.Sqrt(nx*nx + ny*ny + nz*nz)
			out.Set(x, y, 0, float32(nx/l*0.5+0.5))
			out.Set(x, y, 1, float32(ny/l*0.5+0.5))
			out.Set(x, y, 2, float32(nz/l*0.5+0.5))
			out.Set(x, y, 3, 1)
		}
	}
	return out
}
