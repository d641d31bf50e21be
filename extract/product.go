package extract

import (
	"fmt"
	"strings"
)

// Verfügbarkeits-Zustände eines Produkts.
const (
	AvailabilityInStock    = "InStock"
	AvailabilityOutOfStock = "OutOfStock"
	AvailabilityUnknown    = "Unknown"
)

// Product ist der kanonische Produktdatensatz, wie er aus den rohen
// JSON-Quellen extrahiert wird. Alle Felder außer Name sind optional und
// werden bei Abwesenheit im JSON-Output weggelassen (sparse Schema).
type Product struct {
	Name           string   `json:"name"`
	Price          *float64 `json:"price,omitempty"`
	OriginalPrice  *float64 `json:"original_price,omitempty"`
	DiscountLabel  string   `json:"discount_label,omitempty"`
	ImageURL       string   `json:"image_url,omitempty"`
	Availability   string   `json:"availability,omitempty"`
	DeliveryLabel  string   `json:"delivery_label,omitempty"`
	ProductURL     string   `json:"product_url,omitempty"`
	ProductID      string   `json:"product_id,omitempty"`
	SkuID          string   `json:"sku_id,omitempty"`
	Brand          string   `json:"brand,omitempty"`
	Quantity       string   `json:"quantity,omitempty"`
	Unit           string   `json:"unit,omitempty"`
	Rating         *float64 `json:"rating,omitempty"`
	RatingsCount   *int     `json:"ratings_count,omitempty"`
	InventoryCount *int     `json:"inventory_count,omitempty"`
}

// DedupKey bildet die zusammengesetzte Identität, über die doppelte
// Emissionen innerhalb eines Laufs unterdrückt werden.
func (p *Product) DedupKey() string {
	return strings.Join([]string{
		p.Name,
		formatOptFloat(p.Price),
		formatOptFloat(p.OriginalPrice),
		p.ImageURL,
		p.ProductURL,
	}, "|")
}

func formatOptFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%g", *f)
}
