package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Der Shop liefert dieselben Felder in mindestens drei inkompatiblen
// Namenskonventionen (snake_case, camelCase, {text: ...}-Display-Wrapper).
// Pro kanonischem Feld gibt es dafür eine geordnete Alias-Liste; der erste
// definierte, nicht-null Treffer gewinnt.
var aliasTable = map[string][]string{
	"name":           {"name", "title", "display_name", "displayName", "product_name", "productName"},
	"price":          {"price", "selling_price", "sellingPrice", "offer_price", "offerPrice", "final_price", "sp"},
	"originalPrice":  {"original_price", "mrp", "originalPrice", "list_price", "listPrice", "strike_price", "max_retail_price"},
	"discount":       {"discount_label", "discount", "offer", "offer_text", "savings"},
	"image":          {"image_url", "image", "imageUrl", "images", "product_image", "icon"},
	"availability":   {"availability", "in_stock", "inStock", "available", "is_available", "stock_status", "inventory_state"},
	"delivery":       {"delivery_label", "eta", "delivery_time", "deliveryTime", "eta_text"},
	"productUrl":     {"product_url", "url", "productUrl", "link", "href", "deeplink"},
	"productId":      {"product_id", "productId", "pid", "id"},
	"skuId":          {"sku_id", "skuId", "sku", "variant_id", "variantId"},
	"brand":          {"brand", "brand_name", "brandName", "manufacturer"},
	"quantity":       {"quantity", "qty", "weight", "pack_size", "packSize"},
	"unit":           {"unit", "uom", "unit_of_measure"},
	"rating":         {"rating", "avg_rating", "average_rating", "star_rating"},
	"ratingsCount":   {"ratings_count", "rating_count", "num_ratings", "total_ratings", "review_count"},
	"inventoryCount": {"inventory_count", "inventory", "stock", "available_quantity"},
}

// Für zusammengesetzte Felder wird genau eine Ebene verschachtelter Objekte
// über eine feld-spezifische Sekundärliste ausgepackt ({text: "₹48"} usw.).
// Felder ohne Eintrag (z.B. discount) werden nie ausgepackt.
var unwrapTable = map[string][]string{
	"name":     {"text", "value"},
	"price":    {"value", "amount", "text", "selling_price"},
	"image":    {"url", "src", "image", "default"},
	"brand":    {"name", "text", "value"},
	"quantity": {"text", "value"},
	"unit":     {"text", "value"},
}

// lookup liefert den ersten definierten, nicht-null Wert für ein kanonisches
// Feld. Objekt-Werte werden für zusammengesetzte Felder eine Ebene tief
// ausgepackt; Bild-Arrays reduzieren sich auf ihr erstes Element.
func lookup(obj map[string]any, field string) any {
	for _, key := range aliasTable[field] {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		if arr, isArr := v.([]any); isArr && field == "image" {
			if len(arr) == 0 {
				continue
			}
			v = arr[0]
		}
		if inner, isMap := v.(map[string]any); isMap {
			nested, unwrappable := unwrapTable[field]
			if !unwrappable {
				continue
			}
			if nv := firstPresent(inner, nested); nv != nil {
				return nv
			}
			continue
		}
		return v
	}
	return nil
}

func firstPresent(obj map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			if _, isMap := v.(map[string]any); isMap {
				continue // nur eine Unwrap-Ebene
			}
			return v
		}
	}
	return nil
}

var nonNumericRe = regexp.MustCompile(`[^0-9.]`)

// coerceNumber wandelt native Zahlen und preis-artige Strings
// ("₹1,234.50", "48 ml") in ein float64 um. Nicht parsebare Werte sind abwesend.
func coerceNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case int:
		return float64(t), true
	case string:
		s := nonNumericRe.ReplaceAllString(t, "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// coerceAvailability bildet rohe Verfügbarkeits-Signale ab. Der
// "out"-Substring wird vor "in" geprüft ("Out of Stock" enthält beides).
// Unbekannte Werte bleiben leer; der Default Unknown wird erst bei der
// Normalisierung gesetzt.
func coerceAvailability(v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return AvailabilityInStock
		}
		return AvailabilityOutOfStock
	case string:
		s := strings.ToLower(t)
		if strings.Contains(s, "out") {
			return AvailabilityOutOfStock
		}
		if strings.Contains(s, "in") {
			return AvailabilityInStock
		}
	}
	return ""
}

// coerceDiscount: Zahlen werden zu Prozent-Strings, Strings getrimmt.
func coerceDiscount(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64) + "%"
	case int:
		return strconv.Itoa(t) + "%"
	case string:
		return strings.TrimSpace(t)
	}
	return ""
}

// coerceID akzeptiert numerische oder nicht-leere String-Identifier.
func coerceID(v any) string {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case string:
		return strings.TrimSpace(t)
	}
	return ""
}

// coerceText liefert einen getrimmten String; Zahlen (z.B. quantity: 500)
// werden formatiert.
func coerceText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	}
	return ""
}

// coerceCount wandelt Zähler-Felder (ratings_count, inventory) in ints um.
func coerceCount(v any) (int, bool) {
	f, ok := coerceNumber(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}
