package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/node"
)

// DomainNodeOutput prefixes persistent cache keys. Bump the version when the
// compute functions change their output for the same inputs.
const DomainNodeOutput = "texgraph/node-output/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func floatBits(v float32) int64 {
	return int64(math.Float32bits(v))
}

// Params returns the canonical parameter object of t. Only fields that
// influence pixels are included; an image's path is not, its pixels are.
func Params(t node.Type) map[string]any {
	p := map[string]any{"kind": t.Kind.String()}
	switch t.Kind {
	case node.KindValue:
		p["value"] = floatBits(t.Value)
	case node.KindMix:
		p["mix"] = t.Mix.String()
	case node.KindHeightToNormal:
		p["strength"] = floatBits(t.Strength)
	case node.KindImage:
		if t.Image != nil {
			p["image"] = t.Image.Digest()
		}
	}
	return p
}

// CacheKey computes the content-addressed key of n's outputs given inputs.
// A nil input is encoded as an empty digest.
func CacheKey(n node.Node, inputs []*buffer.Buffer) (string, error) {
	digests := make([]any, len(inputs))
	for i, in := range inputs {
		if in == nil {
			digests[i] = ""
			continue
		}
		digests[i] = in.Digest()
	}
	obj := map[string]any{
		"params": Params(n.Type),
		"resize": map[string]any{
			"policy": n.Resize.Kind.String(),
			"slot":   n.Resize.Slot,
			"width":  n.Resize.Size.Width,
			"height": n.Resize.Size.Height,
		},
		"filter": n.Filter.String(),
		"inputs": digests,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CacheKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainNodeOutput, canonical), nil
}
