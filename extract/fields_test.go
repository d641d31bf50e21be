package extract

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseObject(t *testing.T, s string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestCoerceNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected float64
		ok       bool
	}{
		{"native float", 42.5, 42.5, true},
		{"native int", 42, 42, true},
		{"currency string", "₹1,234.50", 1234.50, true},
		{"unit suffix", "48 ml", 48, true},
		{"plain digits", "199", 199, true},
		{"no digits", "abc", 0, false},
		{"empty string", "", 0, false},
		{"nil", nil, 0, false},
		{"nan", math.NaN(), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := coerceNumber(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

func TestCoerceAvailability(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"bool true", true, AvailabilityInStock},
		{"bool false", false, AvailabilityOutOfStock},
		{"in stock string", "In Stock", AvailabilityInStock},
		{"out of stock string", "Out of Stock", AvailabilityOutOfStock},
		{"sold out", "SOLD OUT", AvailabilityOutOfStock},
		{"unrecognized", "maybe later", ""},
		{"number", 3.0, ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, coerceAvailability(tt.input))
		})
	}
}

func TestCoerceDiscount(t *testing.T) {
	assert.Equal(t, "10%", coerceDiscount(10.0))
	assert.Equal(t, "12.5%", coerceDiscount(12.5))
	assert.Equal(t, "10% OFF", coerceDiscount("  10% OFF  "))
	assert.Equal(t, "", coerceDiscount(nil))
}

func TestLookupAliasOrder(t *testing.T) {
	obj := parseObject(t, `{"selling_price": 48, "mrp": 55}`)
	assert.Equal(t, 48.0, lookup(obj, "price"))
	assert.Equal(t, 55.0, lookup(obj, "originalPrice"))

	// Der erste Alias gewinnt, auch wenn spätere ebenfalls definiert sind.
	obj = parseObject(t, `{"price": 40, "selling_price": 48}`)
	assert.Equal(t, 40.0, lookup(obj, "price"))
}

func TestLookupSkipsNull(t *testing.T) {
	obj := parseObject(t, `{"price": null, "selling_price": 48}`)
	assert.Equal(t, 48.0, lookup(obj, "price"))
}

func TestLookupUnwrapsDisplayWrapper(t *testing.T) {
	obj := parseObject(t, `{"name": {"text": "Amul Gold Milk"}, "price": {"text": "₹48"}}`)
	assert.Equal(t, "Amul Gold Milk", lookup(obj, "name"))
	assert.Equal(t, "₹48", lookup(obj, "price"))
}

func TestLookupUnwrapsOneLevelOnly(t *testing.T) {
	obj := parseObject(t, `{"price": {"value": {"amount": 48}}}`)
	assert.Nil(t, lookup(obj, "price"))
}

func TestLookupObjectWithoutUnwrapListSkipped(t *testing.T) {
	// discount hat keine Sekundärliste; Objekt-Werte werden übersprungen.
	obj := parseObject(t, `{"discount_label": {"text": "10% OFF"}, "discount": "5% OFF"}`)
	assert.Equal(t, "5% OFF", lookup(obj, "discount"))
}

func TestLookupImageArrayTakesFirst(t *testing.T) {
	obj := parseObject(t, `{"images": ["https://cdn.example/a.jpg", "https://cdn.example/b.jpg"]}`)
	assert.Equal(t, "https://cdn.example/a.jpg", lookup(obj, "image"))

	obj = parseObject(t, `{"images": [], "icon": "https://cdn.example/c.jpg"}`)
	assert.Equal(t, "https://cdn.example/c.jpg", lookup(obj, "image"))
}
