package buffer

import (
	"errors"
	"fmt"
	"math"
)

// PolicyKind selects how a node reconciles differing input sizes.
type PolicyKind int

const (
	// PolicyMostPixels takes the size of the input with the greatest width*height.
	PolicyMostPixels PolicyKind = iota
	// PolicyLeastPixels takes the size of the input with the smallest width*height.
	PolicyLeastPixels
	// PolicyLargest takes the greatest width and the greatest height independently.
	PolicyLargest
	// PolicySmallest takes the smallest width and the smallest height independently.
	PolicySmallest
	// PolicySpecificSlot takes the size of one designated input slot.
	PolicySpecificSlot
	// PolicySpecificSize ignores inputs and uses a fixed size.
	PolicySpecificSize
)

var policyNames = map[PolicyKind]string{
	PolicyMostPixels:   "most_pixels",
	PolicyLeastPixels:  "least_pixels",
	PolicyLargest:      "largest",
	PolicySmallest:     "smallest",
	PolicySpecificSlot: "specific_slot",
	PolicySpecificSize: "specific_size",
}

func (k PolicyKind) String() string {
	if name, ok := policyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("policy(%d)", int(k))
}

// ParsePolicyKind is the inverse of PolicyKind.String.
func ParsePolicyKind(s string) (PolicyKind, error) {
	for k, name := range policyNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown resize policy %q", s)
}

// Policy is a resize policy plus the parameter its kind needs.
type Policy struct {
	Kind PolicyKind
	Slot int  // PolicySpecificSlot
	Size Size // PolicySpecificSize
}

// MostPixels is the default policy.
func MostPixels() Policy { return Policy{Kind: PolicyMostPixels} }

// SpecificSlot builds a policy that follows input slot.
func SpecificSlot(slot int) Policy { return Policy{Kind: PolicySpecificSlot, Slot: slot} }

// SpecificSize builds a policy with a fixed working size.
func SpecificSize(w, h int) Policy {
	return Policy{Kind: PolicySpecificSize, Size: Size{Width: w, Height: h}}
}

// ParsePolicy builds a policy from its name. slot is read by specific_slot
// and size, as [width, height], by specific_size.
func ParsePolicy(name string, slot int, size []int) (Policy, error) {
	kind, err := ParsePolicyKind(name)
	if err != nil {
		return Policy{}, err
	}
	switch kind {
	case PolicySpecificSlot:
		if slot < 0 {
			return Policy{}, fmt.Errorf("specific_slot: negative slot %d", slot)
		}
		return SpecificSlot(slot), nil
	case PolicySpecificSize:
		if len(size) != 2 || size[0] <= 0 || size[1] <= 0 {
			return Policy{}, fmt.Errorf("specific_size needs size: [width, height], got %v", size)
		}
		return SpecificSize(size[0], size[1]), nil
	default:
		return Policy{Kind: kind}, nil
	}
}

func (p Policy) String() string {
	switch p.Kind {
	case PolicySpecificSlot:
		return fmt.Sprintf("%s(%d)", p.Kind, p.Slot)
	case PolicySpecificSize:
		return fmt.Sprintf("%s(%s)", p.Kind, p.Size)
	default:
		return p.Kind.String()
	}
}

// Filter selects the resampling kernel.
type Filter int

const (
	// FilterNearest samples the closest source pixel, no interpolation.
	FilterNearest Filter = iota
	// FilterTriangle is a tent-weighted average of neighbouring source pixels.
	FilterTriangle
)

func (f Filter) String() string {
	switch f {
	case FilterNearest:
		return "nearest"
	case FilterTriangle:
		return "triangle"
	default:
		return fmt.Sprintf("filter(%d)", int(f))
	}
}

// ParseFilter is the inverse of Filter.String.
func ParseFilter(s string) (Filter, error) {
	switch s {
	case "nearest", "":
		return FilterNearest, nil
	case "triangle":
		return FilterTriangle, nil
	default:
		return 0, fmt.Errorf("unknown resize filter %q", s)
	}
}

var (
	// ErrNoInputSize is returned when a size-following policy has no connected input.
	ErrNoInputSize = errors.New("buffer: no input to take size from")
	// ErrInvalidSize is returned for non-positive fixed sizes.
	ErrInvalidSize = errors.New("buffer: invalid size")
)

// Reconcile picks the common working size for a node from the sizes of its
// input buffers. A nil entry in inputs means the slot is unconnected; it is
// skipped by every policy except PolicySpecificSlot, where it is an error.
func Reconcile(p Policy, inputs []*Buffer) (Size, error) {
	if p.Kind == PolicySpecificSize {
		if p.Size.Width <= 0 || p.Size.Height <= 0 {
			return Size{}, fmt.Errorf("%w: %s", ErrInvalidSize, p.Size)
		}
		return p.Size, nil
	}
	if p.Kind == PolicySpecificSlot {
		if p.Slot < 0 || p.Slot >= len(inputs) || inputs[p.Slot] == nil {
			return Size{}, fmt.Errorf("%w: slot %d", ErrNoInputSize, p.Slot)
		}
		return inputs[p.Slot].Size(), nil
	}

	var out Size
	found := false
	for _, in := range inputs {
		if in == nil {
			continue
		}
		s := in.Size()
		if !found {
			out = s
			found = true
			continue
		}
		switch p.Kind {
		case PolicyMostPixels:
			if s.Pixels() > out.Pixels() {
				out = s
			}
		case PolicyLeastPixels:
			if s.Pixels() < out.Pixels() {
				out = s
			}
		case PolicyLargest:
			out.Width = max(out.Width, s.Width)
			out.Height = max(out.Height, s.Height)
		case PolicySmallest:
			out.Width = min(out.Width, s.Width)
			out.Height = min(out.Height, s.Height)
		}
	}
	if !found {
		return Size{}, ErrNoInputSize
	}
	return out, nil
}

// Resample returns b scaled to size with filter f. When b already has the
// requested size it is returned as is.
func Resample(b *Buffer, size Size, f Filter) *Buffer {
	if b.Size() == size {
		return b
	}
	out := New(size, b.Channels())
	switch f {
	case FilterTriangle:
		resampleTriangle(b, out)
	default:
		resampleNearest(b, out)
	}
	return out
}

func resampleNearest(src, dst *Buffer) {
	sw, sh := src.Width(), src.Height()
	dw, dh := dst.Width(), dst.Height()
	ch := src.Channels()
	for y := 0; y < dh; y++ {
		sy := min(int(float64(y)*float64(sh)/float64(dh)), sh-1)
		for x := 0; x < dw; x++ {
			sx := min(int(float64(x)*float64(sw)/float64(dw)), sw-1)
			si := (sy*sw + sx) * ch
			di := (y*dw + x) * ch
			copy(dst.pix[di:di+ch], src.pix[si:si+ch])
		}
	}
}

// resampleTriangle filters separably: horizontally into a scratch buffer,
// then vertically. When downscaling the tent is widened by the scale factor
// so every source pixel contributes.
func resampleTriangle(src, dst *Buffer) {
	ch := src.Channels()
	sw, sh := src.Width(), src.Height()
	dw, dh := dst.Width(), dst.Height()

	tmp := make([]float32, dw*sh*ch)
	xw := triangleWeights(sw, dw)
	for y := 0; y < sh; y++ {
		for x := 0; x < dw; x++ {
			for c := 0; c < ch; c++ {
				var acc float32
				for _, w := range xw[x] {
					acc += w.weight * src.pix[(y*sw+w.index)*ch+c]
				}
				tmp[(y*dw+x)*ch+c] = acc
			}
		}
	}

	yw := triangleWeights(sh, dh)
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			for c := 0; c < ch; c++ {
				var acc float32
				for _, w := range yw[y] {
					acc += w.weight * tmp[(w.index*dw+x)*ch+c]
				}
				dst.pix[(y*dw+x)*ch+c] = Clamp(acc)
			}
		}
	}
}

type tap struct {
	index  int
	weight float32
}

// triangleWeights returns, per destination index, the normalized source taps.
func triangleWeights(srcLen, dstLen int) [][]tap {
	scale := float64(srcLen) / float64(dstLen)
	support := 1.0
	if scale > 1 {
		support = scale
	}
	out := make([][]tap, dstLen)
	for i := 0; i < dstLen; i++ {
		center := (float64(i)+0.5)*scale - 0.5
		lo := int(math.Floor(center - support))
		hi := int(math.Ceil(center + support))
		var taps []tap
		var sum float64
		for j := lo; j <= hi; j++ {
			w := 1 - math.Abs(float64(j)-center)/support
			if w <= 0 {
				continue
			}
			idx := min(max(j, 0), srcLen-1)
			taps = append(taps, tap{index: idx, weight: float32(w)})
			sum += w
		}
		if sum == 0 {
			taps = []tap{{index: min(max(int(math.Round(center)), 0), srcLen-1), weight: 1}}
			sum = 1
		}
		for k := range taps {
			taps[k].weight = float32(float64(taps[k].weight) / sum)
		}
		out[i] = taps
	}
	return out
}
