package buffer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sized(w, h int) *Buffer {
	return New(Size{Width: w, Height: h}, Gray)
}

func TestReconcile_Policies(t *testing.T) {
	inputs := []*Buffer{sized(4, 1), nil, sized(2, 3), sized(1, 1)}

	tests := []struct {
		name   string
		policy Policy
		want   Size
	}{
		{"most pixels", MostPixels(), Size{Width: 2, Height: 3}},
		{"least pixels", Policy{Kind: PolicyLeastPixels}, Size{Width: 1, Height: 1}},
		{"largest", Policy{Kind: PolicyLargest}, Size{Width: 4, Height: 3}},
		{"smallest", Policy{Kind: PolicySmallest}, Size{Width: 1, Height: 1}},
		{"specific slot", SpecificSlot(0), Size{Width: 4, Height: 1}},
		{"specific size", SpecificSize(8, 8), Size{Width: 8, Height: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reconcile(tt.policy, inputs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReconcile_Errors(t *testing.T) {
	_, err := Reconcile(MostPixels(), []*Buffer{nil, nil})
	assert.True(t, errors.Is(err, ErrNoInputSize))

	_, err = Reconcile(SpecificSlot(1), []*Buffer{sized(1, 1), nil})
	assert.True(t, errors.Is(err, ErrNoInputSize))

	_, err = Reconcile(SpecificSize(0, 4), nil)
	assert.True(t, errors.Is(err, ErrInvalidSize))

	size, err := Reconcile(SpecificSize(3, 2), nil)
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 3, Height: 2}, size)
}

func TestResample_SameSizeIsIdentity(t *testing.T) {
	b := sized(2, 2)
	assert.Same(t, b, Resample(b, Size{Width: 2, Height: 2}, FilterTriangle))
}

func TestResample_NearestUpscale(t *testing.T) {
	b, err := FromPixels(Size{Width: 2, Height: 1}, Gray, []float32{0, 1})
	require.NoError(t, err)

	out := Resample(b, Size{Width: 4, Height: 1}, FilterNearest)
	assert.Equal(t, []float32{0, 0, 1, 1}, out.Pix())
}

func TestResample_TriangleInterpolates(t *testing.T) {
	b, err := FromPixels(Size{Width: 2, Height: 1}, Gray, []float32{0, 1})
	require.NoError(t, err)

	out := Resample(b, Size{Width: 4, Height: 1}, FilterTriangle)
	pix := out.Pix()
	require.Len(t, pix, 4)
	assert.InDelta(t, 0.0, pix[0], 1e-6)
	assert.InDelta(t, 0.25, pix[1], 1e-6)
	assert.InDelta(t, 0.75, pix[2], 1e-6)
	assert.InDelta(t, 1.0, pix[3], 1e-6)
}

func TestResample_TriangleDownscaleAverages(t *testing.T) {
	b, err := FromPixels(Size{Width: 2, Height: 2}, Gray, []float32{0, 1, 1, 0})
	require.NoError(t, err)

	out := Resample(b, Size{Width: 1, Height: 1}, FilterTriangle)
	assert.InDelta(t, 0.5, out.Pix()[0], 1e-6)
}

func TestResample_KeepsChannels(t *testing.T) {
	b := Uniform(Size{Width: 1, Height: 1}, RGBA, 0.4)
	out := Resample(b, Size{Width: 3, Height: 2}, FilterTriangle)
	assert.Equal(t, RGBA, out.Channels())
	for _, v := range out.Pix() {
		assert.InDelta(t, 0.4, v, 1e-6)
	}
}

func TestParseRoundTrip(t *testing.T) {
	for k := range policyNames {
		got, err := ParsePolicyKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParsePolicyKind("biggest")
	assert.Error(t, err)

	f, err := ParseFilter("triangle")
	require.NoError(t, err)
	assert.Equal(t, FilterTriangle, f)
	_, err = ParseFilter("lanczos")
	assert.Error(t, err)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("specific_size", 0, []int{8, 4})
	require.NoError(t, err)
	assert.Equal(t, SpecificSize(8, 4), p)

	p, err = ParsePolicy("specific_slot", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, SpecificSlot(1), p)

	p, err = ParsePolicy("largest", 3, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, Policy{Kind: PolicyLargest}, p)

	_, err = ParsePolicy("specific_size", 0, []int{8})
	assert.Error(t, err)
	_, err = ParsePolicy("specific_size", 0, []int{0, 4})
	assert.Error(t, err)
	_, err = ParsePolicy("specific_slot", -1, nil)
	assert.Error(t, err)
	_, err = ParsePolicy("tallest", 0, nil)
	assert.Error(t, err)
}
