package models

import "testing"

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Hydraulic Pump", want: "Hydraulic_Pump"},
		{name: "special characters stripped", in: "Valve (DN50) / brass!", want: "Valve_DN50__brass"},
		{name: "hyphen and underscore kept", in: "cam-shaft_v2", want: "cam-shaft_v2"},
		{name: "trailing spaces trimmed", in: "Pump   ", want: "Pump"},
		{name: "unicode stripped", in: "Schraube Ø12", want: "Schraube_12"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in); got != tt.want {
				t.Fatalf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPayloadHas(t *testing.T) {
	p := Payload{
		KeyTitle:      "Pump",
		KeySKU:        "   ",
		KeyAttributes: map[string]any{"voltage": "230V"},
		KeyImage:      map[string]any{},
		"count":       3,
	}

	if !p.Has(KeyTitle) {
		t.Fatalf("title should be truthy")
	}
	if p.Has(KeySKU) {
		t.Fatalf("blank sku should not be truthy")
	}
	if !p.Has(KeyAttributes) {
		t.Fatalf("non-empty attributes map should be truthy")
	}
	if p.Has(KeyImage) {
		t.Fatalf("empty image map should not be truthy")
	}
	if !p.Has("count") {
		t.Fatalf("non-string scalar should be truthy")
	}
	if p.Has(KeyBrand) {
		t.Fatalf("absent key should not be truthy")
	}
	if Payload(nil).Has(KeyTitle) {
		t.Fatalf("nil payload should not be truthy")
	}
}

func TestPayloadField(t *testing.T) {
	p := Payload{KeyTitle: "  Pump  ", "n": 1}
	if got := p.Field(KeyTitle); got != "Pump" {
		t.Fatalf("Field(title) = %q, want %q", got, "Pump")
	}
	if got := p.Field("n"); got != "" {
		t.Fatalf("non-string field should be empty, got %q", got)
	}
}
