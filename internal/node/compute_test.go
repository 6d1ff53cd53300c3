package node

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/texgraph/internal/buffer"
)

func gray(v float32) *buffer.Buffer {
	return buffer.Uniform(buffer.Size{Width: 1, Height: 1}, buffer.Gray, v)
}

func TestCompute_Value(t *testing.T) {
	out, err := Compute(New(1, Value(0.5)), nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, buffer.Size{Width: 1, Height: 1}, out[0].Size())
	assert.Equal(t, float32(0.5), out[0].Pix()[0])

	n := New(1, Value(0.25))
	n.Resize = buffer.SpecificSize(3, 2)
	out, err = Compute(n, nil)
	require.NoError(t, err)
	assert.Equal(t, buffer.Size{Width: 3, Height: 2}, out[0].Size())
}

func TestCompute_MixOperators(t *testing.T) {
	tests := []struct {
		op   MixOp
		a, b float32
		want float32
	}{
		{MixAdd, 0.5, 0.3, 0.8},
		{MixAdd, 0.8, 0.8, 1},
		{MixSubtract, 0.5, 0.3, 0.2},
		{MixSubtract, 0.3, 0.5, 0},
		{MixMultiply, 0.5, 0.5, 0.25},
		{MixDivide, 0.25, 0.5, 0.5},
		{MixDivide, 0.25, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			out, err := Compute(New(3, Mix(tt.op)), []*buffer.Buffer{gray(tt.a), gray(tt.b)})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, out[0].Pix()[0], 1e-6)
		})
	}
}

func TestCompute_MixPromotesToRGBA(t *testing.T) {
	rgba, err := buffer.FromPixels(buffer.Size{Width: 1, Height: 1}, buffer.RGBA, []float32{0.1, 0.2, 0.3, 0.4})
	require.NoError(t, err)

	out, err := Compute(New(3, Mix(MixAdd)), []*buffer.Buffer{rgba, gray(0.5)})
	require.NoError(t, err)
	assert.Equal(t, buffer.RGBA, out[0].Channels())
	assert.InDeltaSlice(t, []float32{0.6, 0.7, 0.8, 0.9}, out[0].Pix(), 1e-6)
}

func TestCompute_MixResizesToMostPixels(t *testing.T) {
	big := buffer.Uniform(buffer.Size{Width: 4, Height: 4}, buffer.Gray, 0.25)
	out, err := Compute(New(3, Mix(MixAdd)), []*buffer.Buffer{gray(0.5), big})
	require.NoError(t, err)
	assert.Equal(t, buffer.Size{Width: 4, Height: 4}, out[0].Size())
	for _, v := range out[0].Pix() {
		assert.InDelta(t, 0.75, v, 1e-6)
	}
}

func TestCompute_MissingInputIsInvalidBufferCount(t *testing.T) {
	_, err := Compute(New(9, OutputRgba()), []*buffer.Buffer{nil})
	require.Error(t, err)
	assert.True(t, IsInvalidBufferCount(err))

	var ce *ComputeError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ID(9), ce.Node)

	_, err = Compute(New(9, Mix(MixAdd)), []*buffer.Buffer{gray(1)})
	assert.True(t, IsInvalidBufferCount(err), "wrong arity")
}

func TestCompute_CombineAndSeparate(t *testing.T) {
	combined, err := Compute(New(1, Combine()), []*buffer.Buffer{gray(0.1), gray(0.2), gray(0.3), gray(0.4)})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3, 0.4}, combined[0].Pix(), 1e-6)

	parts, err := Compute(New(2, Separate()), combined)
	require.NoError(t, err)
	require.Len(t, parts, 4)
	for i, want := range []float32{0.1, 0.2, 0.3, 0.4} {
		assert.Equal(t, buffer.Gray, parts[i].Channels())
		assert.InDelta(t, want, parts[i].Pix()[0], 1e-6)
	}
}

func TestCompute_CombineRejectsRGBA(t *testing.T) {
	rgba := buffer.Uniform(buffer.Size{Width: 1, Height: 1}, buffer.RGBA, 0)
	_, err := Compute(New(1, Combine()), []*buffer.Buffer{rgba, gray(0), gray(0), gray(0)})
	assert.Equal(t, ErrCodeInvalidChannels, ErrorCode(err))
}

func TestCompute_HeightToNormal(t *testing.T) {
	flat := buffer.Uniform(buffer.Size{Width: 3, Height: 3}, buffer.Gray, 0.5)
	out, err := Compute(New(1, HeightToNormal(1)), []*buffer.Buffer{flat})
	require.NoError(t, err)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			assert.InDelta(t, 0.5, out[0].At(x, y, 0), 1e-6)
			assert.InDelta(t, 0.5, out[0].At(x, y, 1), 1e-6)
			assert.InDelta(t, 1.0, out[0].At(x, y, 2), 1e-6)
			assert.InDelta(t, 1.0, out[0].At(x, y, 3), 1e-6)
		}
	}

	ramp, err := buffer.FromPixels(buffer.Size{Width: 3, Height: 1}, buffer.Gray, []float32{0, 0.5, 1})
	require.NoError(t, err)
	out, err = Compute(New(1, HeightToNormal(1)), []*buffer.Buffer{ramp})
	require.NoError(t, err)
	assert.Less(t, out[0].At(1, 0, 0), float32(0.5), "rising slope tilts the normal towards -x")
}

func TestCompute_Image(t *testing.T) {
	_, err := Compute(New(1, Image("missing.png", nil)), nil)
	assert.Equal(t, ErrCodeMissingImage, ErrorCode(err))

	src := buffer.Uniform(buffer.Size{Width: 2, Height: 2}, buffer.Gray, 0.5)
	n := New(1, Image("a.png", src))
	n.Resize = buffer.SpecificSize(4, 4)
	out, err := Compute(n, nil)
	require.NoError(t, err)
	assert.Equal(t, buffer.RGBA, out[0].Channels())
	assert.Equal(t, buffer.Size{Width: 4, Height: 4}, out[0].Size())
}

func TestCompute_OutputGrayRejectsRGBA(t *testing.T) {
	rgba := buffer.Uniform(buffer.Size{Width: 1, Height: 1}, buffer.RGBA, 0)
	_, err := Compute(New(1, OutputGray()), []*buffer.Buffer{rgba})
	assert.Equal(t, ErrCodeInvalidChannels, ErrorCode(err))
}

func TestSlotLayouts(t *testing.T) {
	tests := []struct {
		t       Type
		inputs  int
		outputs int
	}{
		{Image("", nil), 0, 1},
		{Value(0), 0, 1},
		{Combine(), 4, 1},
		{Separate(), 1, 4},
		{Mix(MixAdd), 2, 1},
		{HeightToNormal(1), 1, 1},
		{OutputRgba(), 1, 1},
		{OutputGray(), 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.t.Kind.String(), func(t *testing.T) {
			assert.Len(t, tt.t.Inputs(), tt.inputs)
			assert.Len(t, tt.t.Outputs(), tt.outputs)
			require.NoError(t, tt.t.Validate())
		})
	}
}

func TestCompatible(t *testing.T) {
	assert.True(t, Compatible(SlotGray, SlotGray))
	assert.True(t, Compatible(SlotGrayOrRgba, SlotRgba))
	assert.True(t, Compatible(SlotRgba, SlotGrayOrRgba))
	assert.False(t, Compatible(SlotGray, SlotRgba))
	assert.False(t, Compatible(SlotRgba, SlotGray))
}

func TestParseNames(t *testing.T) {
	k, err := ParseKind("height_to_normal")
	require.NoError(t, err)
	assert.Equal(t, KindHeightToNormal, k)
	_, err = ParseKind("blur")
	assert.Error(t, err)

	m, err := ParseMixOp("divide")
	require.NoError(t, err)
	assert.Equal(t, MixDivide, m)

	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, ID(42), id)
	_, err = ParseID("x")
	assert.Error(t, err)
}

func TestSpec_Build(t *testing.T) {
	half := 0.5
	typ, err := Spec{Type: "value", Value: &half}.Build(nil)
	require.NoError(t, err)
	assert.Equal(t, Value(0.5), typ)

	typ, err = Spec{Type: "mix"}.Build(nil)
	require.NoError(t, err)
	assert.Equal(t, MixAdd, typ.Mix)

	typ, err = Spec{Type: "height_to_normal"}.Build(nil)
	require.NoError(t, err)
	assert.Equal(t, float32(1), typ.Strength)

	_, err = Spec{Type: "mix", Mix: "screen"}.Build(nil)
	assert.Error(t, err)
	_, err = Spec{Type: "image"}.Build(nil)
	assert.Error(t, err)

	img := buffer.Uniform(buffer.Size{Width: 1, Height: 1}, buffer.RGBA, 1)
	typ, err = Spec{Type: "image", Image: "a.png"}.Build(func(path string) (*buffer.Buffer, error) {
		assert.Equal(t, "a.png", path)
		return img, nil
	})
	require.NoError(t, err)
	assert.Same(t, img, typ.Image)

	assert.Equal(t, "multiply", SpecOf(Mix(MixMultiply)).Mix)
	assert.Equal(t, 0.25, *SpecOf(Value(0.25)).Value)
}
