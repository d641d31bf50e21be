package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// Widget-Shapes verpacken das eigentliche Produkt oft in einem inneren
// Objekt; dieses wird pro Feld zuerst als Extraktionsbasis versucht, das
// äußere Objekt bleibt Fallback.
var innerKeys = []string{"product", "data", "item", "sku", "details"}

// Normalizer baut aus einem Kandidaten-Objekt einen kanonischen
// Produktdatensatz oder verwirft ihn.
type Normalizer struct {
	BaseURL      string
	PathTemplate string // fmt-Template mit zwei %s: Slug und Identifier
}

// NewNormalizer erstellt einen Normalizer für die bekannte Shop-URL-Struktur.
func NewNormalizer(baseURL, pathTemplate string) *Normalizer {
	return &Normalizer{BaseURL: baseURL, PathTemplate: pathTemplate}
}

// Normalize extrahiert jedes kanonische Feld über die Alias-Tabellen
// (inneres Objekt zuerst, äußeres als Fallback) und wendet die
// Emissions-Invariante an: Name muss vorhanden sein und mindestens einer
// von price/originalPrice definiert.
func (n *Normalizer) Normalize(obj map[string]any) (Product, bool) {
	inner := innerObject(obj)
	get := func(field string) any {
		if inner != nil {
			if v := lookup(inner, field); v != nil {
				return v
			}
		}
		return lookup(obj, field)
	}

	var p Product
	p.Name = coerceText(get("name"))
	if p.Name == "" {
		return Product{}, false
	}

	if f, ok := coerceNumber(get("price")); ok {
		p.Price = &f
	}
	if f, ok := coerceNumber(get("originalPrice")); ok {
		p.OriginalPrice = &f
	}
	if p.Price == nil && p.OriginalPrice == nil {
		// Namens-artige Widgets ohne Preissignal (Ads, Kategorie-Kacheln)
		// sind keine Produkte.
		return Product{}, false
	}

	p.DiscountLabel = coerceDiscount(get("discount"))
	p.ImageURL = coerceText(get("image"))
	p.DeliveryLabel = coerceText(get("delivery"))
	p.ProductID = coerceID(get("productId"))
	p.SkuID = coerceID(get("skuId"))
	p.Brand = coerceText(get("brand"))
	p.Quantity = coerceText(get("quantity"))
	p.Unit = coerceText(get("unit"))

	if f, ok := coerceNumber(get("rating")); ok {
		p.Rating = &f
	}
	if c, ok := coerceCount(get("ratingsCount")); ok {
		p.RatingsCount = &c
	}
	if c, ok := coerceCount(get("inventoryCount")); ok {
		p.InventoryCount = &c
	}

	p.Availability = coerceAvailability(get("availability"))
	if p.Availability == "" {
		p.Availability = AvailabilityUnknown
	}

	p.ProductURL = n.productURL(coerceText(get("productUrl")), p.ProductID, p.Name)

	return p, true
}

// productURL berechnet die Produkt-URL: absolute Roh-URLs werden unverändert
// übernommen, relative gegen die bekannte Pfad-Vorlage aufgelöst. Fehlt ein
// URL-Feld ganz, wird die URL aus Slug und Identifier synthetisiert.
func (n *Normalizer) productURL(raw, id, name string) string {
	switch {
	case raw == "":
		if id != "" && name != "" {
			return n.BaseURL + fmt.Sprintf(n.PathTemplate, Slugify(name), id)
		}
		return ""
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return raw
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "/"):
		if id != "" && !strings.Contains(raw, id) {
			return n.BaseURL + fmt.Sprintf(n.PathTemplate, Slugify(lastSegment(raw)), id)
		}
		return n.BaseURL + raw
	default:
		// nackter Slug
		if id != "" {
			return n.BaseURL + fmt.Sprintf(n.PathTemplate, Slugify(raw), id)
		}
		return n.BaseURL + "/" + raw
	}
}

func innerObject(obj map[string]any) map[string]any {
	for _, k := range innerKeys {
		if m, ok := obj[k].(map[string]any); ok {
			return m
		}
	}
	return nil
}

func lastSegment(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	return parts[len(parts)-1]
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify: Kleinbuchstaben, nicht-alphanumerische Läufe zu einem Bindestrich
// kollabiert, führende/abschließende Bindestriche entfernt.
func Slugify(s string) string {
	s = nonAlnumRe.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}
