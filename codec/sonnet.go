package codec

import "github.com/sugawarayuuta/sonnet"

// Sonnet is a JSON codec backed by github.com/sugawarayuuta/sonnet, a
// drop-in encoding/json replacement.
type Sonnet struct{}

// Marshal encodes the value to JSON.
func (Sonnet) Marshal(v any) ([]byte, error) { return sonnet.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (Sonnet) Unmarshal(data []byte, v any) error { return sonnet.Unmarshal(data, v) }

// Name returns the unique name of the codec ("sonnet").
func (Sonnet) Name() string { return "sonnet" }

// MarshalIndent encodes the value to indented JSON.
func (Sonnet) MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return sonnet.MarshalIndent(v, prefix, indent)
}
