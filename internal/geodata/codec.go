package geodata

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// EncodeGraph serializes a graph into the blob stored by the map cache.
func EncodeGraph(g *Graph) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	return cbor.Marshal(g)
}

func DecodeGraph(data []byte) (*Graph, error) {
	var g Graph
	if err := cbor.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decoding graph: %w", err)
	}
	return &g, nil
}

// EncodeFeatures returns nil for nil features so the cache skips the optional blob.
func EncodeFeatures(f *Features) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	return cbor.Marshal(f)
}

// DecodeFeatures returns nil features for a nil blob.
func DecodeFeatures(data []byte) (*Features, error) {
	if data == nil {
		return nil, nil
	}
	var f Features
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding features: %w", err)
	}
	return &f, nil
}
