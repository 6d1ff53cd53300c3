package node

import (
	"fmt"

	"github.com/roach88/texgraph/internal/buffer"
)

// Spec is the textual description of a node variant used by scenario files
// and the HTTP API. Parameters that do not belong to Type are ignored.
type Spec struct {
	Type     string   `json:"type" yaml:"type"`
	Value    *float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Mix      string   `json:"mix,omitempty" yaml:"mix,omitempty"`
	Strength *float64 `json:"strength,omitempty" yaml:"strength,omitempty"`

	// Image is the PNG path of an image node.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
}

// ImageLoader resolves an image path to decoded pixels.
type ImageLoader func(path string) (*buffer.Buffer, error)

// Build returns the variant. Missing parameters default to value 0, mix add
// and strength 1. load is only called for image nodes.
func (s Spec) Build(load ImageLoader) (Type, error) {
	kind, err := ParseKind(s.Type)
	if err != nil {
		return Type{}, err
	}
	switch kind {
	case KindValue:
		var v float64
		if s.Value != nil {
			v = *s.Value
		}
		return Value(float32(v)), nil
	case KindMix:
		op := MixAdd
		if s.Mix != "" {
			if op, err = ParseMixOp(s.Mix); err != nil {
				return Type{}, err
			}
		}
		return Mix(op), nil
	case KindHeightToNormal:
		strength := 1.0
		if s.Strength != nil {
			strength = *s.Strength
		}
		return HeightToNormal(float32(strength)), nil
	case KindImage:
		if s.Image == "" {
			return Type{}, fmt.Errorf("image node needs a path")
		}
		if load == nil {
			return Type{}, fmt.Errorf("image %q: no loader", s.Image)
		}
		img, err := load(s.Image)
		if err != nil {
			return Type{}, err
		}
		return Image(s.Image, img), nil
	case KindCombine:
		return Combine(), nil
	case KindSeparate:
		return Separate(), nil
	case KindOutputRgba:
		return OutputRgba(), nil
	default:
		return OutputGray(), nil
	}
}

// SpecOf describes an existing variant. Image pixels are not included.
func SpecOf(t Type) Spec {
	s := Spec{Type: t.Kind.String()}
	switch t.Kind {
	case KindValue:
		v := float64(t.Value)
		s.Value = &v
	case KindMix:
		s.Mix = t.Mix.String()
	case KindHeightToNormal:
		v := float64(t.Strength)
		s.Strength = &v
	case KindImage:
		s.Image = t.Path
	}
	return s
}
