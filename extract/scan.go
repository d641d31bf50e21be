package extract

import (
	"reflect"
	"sort"
)

// Bekannte Container-Schlüssel des Shops. Sie werden bevorzugt rekursiv
// besucht (Präzision/Performance), ersetzen aber nie den generischen
// Baum-Durchlauf: unbekannte Response-Shapes müssen abgedeckt bleiben.
var containerKeys = []string{"products", "items", "objects", "widgets", "snippets", "entities", "skus", "product"}

// Scanner durchläuft beliebig verschachteltes, schemaloses JSON und sammelt
// Kandidaten-Arrays, die wie Produktlisten aussehen. Der Durchlauf ist
// tiefenbegrenzt und über ein identitätsbasiertes Visited-Set zyklensicher.
type Scanner struct {
	MaxDepth   int
	SampleSize int
	Threshold  int
	Norm       *Normalizer
}

// NewScanner erstellt einen Scanner mit den Standard-Heuristiken.
func NewScanner(norm *Normalizer) *Scanner {
	return &Scanner{
		MaxDepth:   8,
		SampleSize: 25,
		Threshold:  3,
		Norm:       norm,
	}
}

type candidateArray struct {
	items         []map[string]any
	mean          float64
	fromContainer bool
}

// Score bewertet die Plausibilität eines einzelnen Kandidaten-Objekts mit
// festen Gewichten: Name +2, Preis +2, Originalpreis +1, Bild +1,
// Verfügbarkeitssignal +1, Identifier +1.
func (s *Scanner) Score(obj map[string]any) int {
	inner := innerObject(obj)
	has := func(field string) any {
		if inner != nil {
			if v := lookup(inner, field); v != nil {
				return v
			}
		}
		return lookup(obj, field)
	}

	score := 0
	if coerceText(has("name")) != "" {
		score += 2
	}
	if _, ok := coerceNumber(has("price")); ok {
		score += 2
	}
	if _, ok := coerceNumber(has("originalPrice")); ok {
		score++
	}
	if has("image") != nil {
		score++
	}
	if has("availability") != nil {
		score++
	}
	if coerceID(has("productId")) != "" || coerceID(has("skuId")) != "" {
		score++
	}
	return score
}

// Products scannt den Baum, wählt das am besten bewertete Produkt-Array aus
// (höherer Mittelwert gewinnt, bei Gleichstand das größere Array) und
// normalisiert dessen Elemente.
func (s *Scanner) Products(root any) []Product {
	arrays := s.qualifyingArrays(root)
	if len(arrays) == 0 {
		return nil
	}

	best := arrays[0]
	out := make([]Product, 0, len(best.items))
	for _, obj := range best.items {
		if p, ok := s.Norm.Normalize(obj); ok {
			out = append(out, p)
		}
	}
	return out
}

// HasProductContainer meldet, ob der Baum mindestens ein qualifizierendes
// Produkt-Array enthält (Gate für den State-Snapshot im Waterfall).
func (s *Scanner) HasProductContainer(root any) bool {
	return len(s.qualifyingArrays(root)) > 0
}

// RawYield zählt, wie viele normalisierbare Produkte ein Payload hergibt,
// ohne sie zu emittieren (Auswahlkriterium für das Pagination-Probing).
func (s *Scanner) RawYield(root any) int {
	return len(s.Products(root))
}

func (s *Scanner) qualifyingArrays(root any) []candidateArray {
	var found []candidateArray
	visited := make(map[uintptr]struct{})
	s.walk(root, 0, visited, &found)

	qualified := found[:0]
	for _, c := range found {
		if c.mean >= float64(s.Threshold) {
			qualified = append(qualified, c)
		}
	}
	sort.SliceStable(qualified, func(i, j int) bool {
		if qualified[i].mean != qualified[j].mean {
			return qualified[i].mean > qualified[j].mean
		}
		// Bei gleichem Mittelwert gewinnt das Array aus einem bekannten
		// Container-Schlüssel, danach das größere.
		if qualified[i].fromContainer != qualified[j].fromContainer {
			return qualified[i].fromContainer
		}
		return len(qualified[i].items) > len(qualified[j].items)
	})
	return qualified
}

// walk ist der tiefenbegrenzte, zyklensichere Brute-Force-Durchlauf.
// Container-Schlüssel werden zuerst besucht, danach alle übrigen Werte.
func (s *Scanner) walk(node any, depth int, visited map[uintptr]struct{}, out *[]candidateArray) {
	if depth > s.MaxDepth {
		return
	}

	switch t := node.(type) {
	case map[string]any:
		if len(t) == 0 {
			return
		}
		id := identity(t)
		if _, seen := visited[id]; seen {
			return
		}
		visited[id] = struct{}{}

		for _, k := range containerKeys {
			child, ok := t[k]
			if !ok {
				continue
			}
			// Verschachtelte Produkt-Maps (id -> Objekt) als Kandidaten-Array
			// behandeln, die Werte aber auch regulär weiterbesuchen.
			if m, isMap := child.(map[string]any); isMap {
				if items := mapValuesAsObjects(m); items != nil {
					s.consider(items, true, out)
				}
			}
		}

		for _, k := range sortedKeys(t) {
			s.walk(t[k], depth+1, visited, out)
		}

	case []any:
		if len(t) == 0 {
			return
		}
		id := identity(t)
		if _, seen := visited[id]; seen {
			return
		}
		visited[id] = struct{}{}

		if items := elementsAsObjects(t); items != nil {
			s.consider(items, false, out)
		}
		for _, el := range t {
			s.walk(el, depth+1, visited, out)
		}
	}
	// Skalare Blätter liefern nichts.
}

// consider bewertet ein uniformes Objekt-Array über ein begrenztes Sample.
// Das Sampling deckelt die Normalisierungskosten vor der Relevanzprüfung und
// verhindert, dass ein einzelner gut geformter Ausreißer ein irrelevantes
// Array validiert.
func (s *Scanner) consider(items []map[string]any, fromContainer bool, out *[]candidateArray) {
	sample := items
	if len(sample) > s.SampleSize {
		sample = sample[:s.SampleSize]
	}
	total := 0
	for _, obj := range sample {
		total += s.Score(obj)
	}
	*out = append(*out, candidateArray{
		items:         items,
		mean:          float64(total) / float64(len(sample)),
		fromContainer: fromContainer,
	})
}

// elementsAsObjects akzeptiert nur Arrays, deren Elemente uniform
// Nicht-Array-Objekte sind.
func elementsAsObjects(arr []any) []map[string]any {
	items := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			return nil
		}
		items = append(items, obj)
	}
	return items
}

// mapValuesAsObjects behandelt eine Map, deren Werte ausnahmslos Objekte
// sind, als geordnetes Kandidaten-Array (Schlüssel sortiert für
// deterministische Batches).
func mapValuesAsObjects(m map[string]any) []map[string]any {
	if len(m) == 0 {
		return nil
	}
	items := make([]map[string]any, 0, len(m))
	for _, k := range sortedKeys(m) {
		obj, ok := m[k].(map[string]any)
		if !ok {
			return nil
		}
		items = append(items, obj)
	}
	return items
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// identity liefert die Identität eines Map-/Slice-Werts für das Visited-Set.
// Der Scanner besitzt die Knoten nie, er beobachtet sie nur.
func identity(v any) uintptr {
	return reflect.ValueOf(v).Pointer()
}
