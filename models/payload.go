package models

import "strings"

// Payload keys the confidence scorer and validator care about. Everything
// else in a payload is carried through to the artifacts untouched.
const (
	KeyTitle       = "title"
	KeySKU         = "sku"
	KeyBrand       = "brand"
	KeySupplier    = "supplier"
	KeyDescription = "description"
	KeyAttributes  = "key_attributes"
	KeyImage       = "image_downloaded"
	KeyImageURL    = "image_url"
)

// Payload is the opaque key/value result of one extraction. The required
// field set is documented here and enforced at the validation boundary:
// "title" is mandatory, all other keys are optional.
type Payload map[string]any

// Field returns the trimmed string value for key, or "" when the key is
// absent or not a string.
func (p Payload) Field(key string) string {
	if p == nil {
		return ""
	}
	if s, ok := p[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// Has reports whether key holds a non-empty value. Maps count only when they
// have at least one entry, strings only when non-blank.
func (p Payload) Has(key string) bool {
	if p == nil {
		return false
	}
	v, ok := p[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) != ""
	case map[string]any:
		return len(t) > 0
	case map[string]string:
		return len(t) > 0
	case bool:
		return t
	default:
		return true
	}
}

// Attributes returns the key-attributes submap, or nil when absent.
func (p Payload) Attributes() map[string]any {
	if p == nil {
		return nil
	}
	if m, ok := p[KeyAttributes].(map[string]any); ok {
		return m
	}
	return nil
}

// HasImage reports whether an image artifact was produced for this payload.
func (p Payload) HasImage() bool {
	return p.Has(KeyImage)
}
