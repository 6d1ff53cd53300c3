package node

import (
	"fmt"

	"github.com/roach88/texgraph/internal/buffer"
)

// Kind is the tag of the node-type variant.
type Kind int

const (
	KindImage Kind = iota + 1
	KindValue
	KindCombine
	KindSeparate
	KindMix
	KindHeightToNormal
	KindOutputRgba
	KindOutputGray
)

var kindNames = map[Kind]string{
	KindImage:          "image",
	KindValue:          "value",
	KindCombine:        "combine",
	KindSeparate:       "separate",
	KindMix:            "mix",
	KindHeightToNormal: "height_to_normal",
	KindOutputRgba:     "output_rgba",
	KindOutputGray:     "output_gray",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown node type %q", s)
}

// IsOutput reports whether the kind is a graph sink.
func (k Kind) IsOutput() bool {
	return k == KindOutputRgba || k == KindOutputGray
}

// MixOp is the per-pixel operator of a Mix node.
type MixOp int

const (
	MixAdd MixOp = iota
	MixSubtract
	MixMultiply
	MixDivide
)

var mixNames = map[MixOp]string{
	MixAdd:      "add",
	MixSubtract: "subtract",
	MixMultiply: "multiply",
	MixDivide:   "divide",
}

func (m MixOp) String() string {
	if name, ok := mixNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mix(%d)", int(m))
}

// ParseMixOp is the inverse of MixOp.String.
func ParseMixOp(s string) (MixOp, error) {
	for m, name := range mixNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mix operator %q", s)
}

// Type is the tagged node-type variant. Only the fields belonging to Kind are
// meaningful; the constructors below are the supported way to build one.
type Type struct {
	Kind Kind

	Value    float32        // KindValue
	Mix      MixOp          // KindMix
	Strength float32        // KindHeightToNormal
	Image    *buffer.Buffer // KindImage, decoded pixels
	Path     string         // KindImage, where Image came from
}

// Image is a source node holding already decoded pixels.
func Image(path string, b *buffer.Buffer) Type {
	return Type{Kind: KindImage, Path: path, Image: b}
}

// Value is a source node producing a single gray value.
func Value(v float32) Type { return Type{Kind: KindValue, Value: v} }

// Combine packs four gray inputs into one RGBA output.
func Combine() Type { return Type{Kind: KindCombine} }

// Separate splits one RGBA input into four gray outputs.
func Separate() Type { return Type{Kind: KindSeparate} }

// Mix blends two inputs with op.
func Mix(op MixOp) Type { return Type{Kind: KindMix, Mix: op} }

// HeightToNormal turns a gray height field into a tangent-space normal map.
func HeightToNormal(strength float32) Type {
	return Type{Kind: KindHeightToNormal, Strength: strength}
}

// OutputRgba is an RGBA graph sink.
func OutputRgba() Type { return Type{Kind: KindOutputRgba} }

// OutputGray is a gray graph sink.
func OutputGray() Type { return Type{Kind: KindOutputGray} }

func slots(types ...SlotType) []Slot {
	names := []string{"r", "g", "b", "a"}
	out := make([]Slot, len(types))
	for i, t := range types {
		name := fmt.Sprintf("%d", i)
		if len(types) == 4 {
			name = names[i]
		}
		out[i] = Slot{ID: SlotID(i), Name: name, Type: t}
	}
	return out
}

// Inputs returns the fixed input slot layout of the variant.
func (t Type) Inputs() []Slot {
	switch t.Kind {
	case KindCombine:
		return slots(SlotGray, SlotGray, SlotGray, SlotGray)
	case KindSeparate, KindOutputRgba:
		return slots(SlotRgba)
	case KindMix:
		return slots(SlotGrayOrRgba, SlotGrayOrRgba)
	case KindHeightToNormal, KindOutputGray:
		return slots(SlotGray)
	default:
		return nil
	}
}

// Outputs returns the fixed output slot layout of the variant.
func (t Type) Outputs() []Slot {
	switch t.Kind {
	case KindImage, KindCombine, KindHeightToNormal, KindOutputRgba:
		return slots(SlotRgba)
	case KindValue, KindOutputGray:
		return slots(SlotGray)
	case KindSeparate:
		return slots(SlotGray, SlotGray, SlotGray, SlotGray)
	case KindMix:
		return slots(SlotGrayOrRgba)
	default:
		return nil
	}
}

// Validate checks that the variant is known and its parameters usable.
func (t Type) Validate() error {
	if _, ok := kindNames[t.Kind]; !ok {
		return fmt.Errorf("unknown node kind %d", int(t.Kind))
	}
	if t.Kind == KindMix {
		if _, ok := mixNames[t.Mix]; !ok {
			return fmt.Errorf("unknown mix operator %d", int(t.Mix))
		}
	}
	return nil
}
