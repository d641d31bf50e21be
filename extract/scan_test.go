package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScanner() *Scanner {
	return NewScanner(newTestNormalizer())
}

func parseTree(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestScoreWeights(t *testing.T) {
	s := newTestScanner()

	full := parseObject(t, `{
		"name": "Milk", "price": 48, "mrp": 55,
		"image": "https://cdn.example/m.jpg", "in_stock": true, "product_id": 7
	}`)
	assert.Equal(t, 8, s.Score(full))

	nameAndPrice := parseObject(t, `{"name": "Milk", "price": 48}`)
	assert.Equal(t, 4, s.Score(nameAndPrice))

	categoryTile := parseObject(t, `{"title": "Dairy", "id": 14}`)
	assert.Equal(t, 3, s.Score(categoryTile))

	assert.Equal(t, 0, s.Score(parseObject(t, `{"foo": "bar"}`)))
}

func TestProductsFromDeeplyNestedArray(t *testing.T) {
	root := parseTree(t, `{
		"layout": {"widgets": {"grid": {"rows": [
			{"name": "Milk", "price": 48},
			{"name": "Bread", "price": 30}
		]}}}
	}`)

	products := newTestScanner().Products(root)
	require.Len(t, products, 2)
	assert.Equal(t, "Milk", products[0].Name)
	assert.Equal(t, "Bread", products[1].Name)
}

func TestProductsCategoryTilesYieldNothing(t *testing.T) {
	// Die Kacheln qualifizieren das Array (Mittelwert 3), fallen aber ohne
	// Preissignal bei der Normalisierung heraus.
	root := parseTree(t, `{"tiles": [
		{"title": "Dairy", "id": 14},
		{"title": "Snacks", "id": 15}
	]}`)

	products := newTestScanner().Products(root)
	assert.Empty(t, products)
}

func TestProductsMixedArrayIgnored(t *testing.T) {
	// Arrays mit nicht-uniformen Elementen sind keine Kandidaten.
	root := parseTree(t, `{"mixed": [{"name": "Milk", "price": 48}, "banner", 7]}`)
	assert.Empty(t, newTestScanner().Products(root))
}

func TestWalkRespectsDepthBound(t *testing.T) {
	s := newTestScanner()
	s.MaxDepth = 2

	shallow := parseTree(t, `{"a": [{"name": "Milk", "price": 48}]}`)
	assert.Len(t, s.Products(shallow), 1)

	deep := parseTree(t, `{"a": {"b": {"c": {"d": [{"name": "Milk", "price": 48}]}}}}`)
	assert.Empty(t, s.Products(deep))
}

func TestWalkTerminatesOnCycle(t *testing.T) {
	root := map[string]any{
		"items": []any{
			map[string]any{"name": "Milk", "price": 48.0},
		},
	}
	root["self"] = root

	products := newTestScanner().Products(root)
	require.Len(t, products, 1)
	assert.Equal(t, "Milk", products[0].Name)
}

func TestBestArrayWinsByMeanScore(t *testing.T) {
	// Das größere Array hat den niedrigeren Mittelwert und verliert.
	root := parseTree(t, `{
		"suggestions": [
			{"name": "milk", "price": 1},
			{"name": "milk powder", "price": 1},
			{"name": "milkshake", "price": 1},
			{"name": "buttermilk", "price": 1}
		],
		"products": [
			{"name": "Amul Gold Milk", "price": 48, "mrp": 55, "image": "x", "in_stock": true, "product_id": 1},
			{"name": "Amul Taaza Milk", "price": 44, "mrp": 50, "image": "y", "in_stock": true, "product_id": 2}
		]
	}`)

	products := newTestScanner().Products(root)
	require.Len(t, products, 2)
	assert.Equal(t, "Amul Gold Milk", products[0].Name)
}

func TestTieBreakPrefersLargerArray(t *testing.T) {
	root := parseTree(t, `{
		"a": [{"name": "X", "price": 1}, {"name": "Y", "price": 2}],
		"b": [{"name": "P", "price": 1}, {"name": "Q", "price": 2}, {"name": "R", "price": 3}]
	}`)

	products := newTestScanner().Products(root)
	assert.Len(t, products, 3)
}

func TestTieBreakPrefersContainerDerivedArrays(t *testing.T) {
	// Gleicher Mittelwert: das Kandidaten-Array aus dem Container-Schlüssel
	// schlägt das größere Array aus dem generischen Durchlauf.
	root := parseTree(t, `{
		"products": {
			"9731": {"name": "Milk", "price": 48},
			"9732": {"name": "Bread", "price": 30}
		},
		"banners": [
			{"name": "Combo 1", "price": 99},
			{"name": "Combo 2", "price": 129},
			{"name": "Combo 3", "price": 149}
		]
	}`)

	products := newTestScanner().Products(root)
	require.Len(t, products, 2)
	assert.Equal(t, "Milk", products[0].Name)
	assert.Equal(t, "Bread", products[1].Name)
}

func TestMapContainerAsCandidateArray(t *testing.T) {
	// Produkt-Maps (id -> Objekt) unter einem Container-Schlüssel werden als
	// deterministisch geordnetes Kandidaten-Array behandelt.
	root := parseTree(t, `{"products": {
		"9732": {"name": "Bread", "price": 30},
		"9731": {"name": "Milk", "price": 48}
	}}`)

	products := newTestScanner().Products(root)
	require.Len(t, products, 2)
	assert.Equal(t, "Milk", products[0].Name)
	assert.Equal(t, "Bread", products[1].Name)
}

func TestHasProductContainer(t *testing.T) {
	s := newTestScanner()

	assert.True(t, s.HasProductContainer(parseTree(t, `{"items": [{"name": "Milk", "price": 48}]}`)))
	assert.False(t, s.HasProductContainer(parseTree(t, `{"user": {"cart_count": 0}}`)))
	assert.False(t, s.HasProductContainer(nil))
}

func TestRawYieldCountsWithoutEmitting(t *testing.T) {
	root := parseTree(t, `{"items": [
		{"name": "Milk", "price": 48},
		{"title": "Dairy", "id": 14}
	]}`)
	assert.Equal(t, 1, newTestScanner().RawYield(root))
}
