package models

import (
	"time"
)

// Product repräsentiert einen normalisierten Produktdatensatz inklusive
// Lauf-Anreicherung (Keyword, Quell-URL, Erfassungszeitpunkt). Die Sink ist
// append-only; ein einmal geschriebener Datensatz wird nicht mehr mutiert.
type Product struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Lauf-Anreicherung
	Keyword    string    `json:"keyword" gorm:"index"`
	SourceURL  string    `json:"source_url"`
	Source     string    `json:"source,omitempty" gorm:"index"`
	CapturedAt time.Time `json:"captured_at"`

	// Kanonische Felder; alles außer Name ist optional (sparse Schema).
	Name           string   `json:"name" gorm:"not null;uniqueIndex:idx_products_dedup"`
	Price          *float64 `json:"price,omitempty" gorm:"uniqueIndex:idx_products_dedup"`
	OriginalPrice  *float64 `json:"original_price,omitempty" gorm:"uniqueIndex:idx_products_dedup"`
	DiscountLabel  string   `json:"discount_label,omitempty"`
	ImageURL       string   `json:"image_url,omitempty" gorm:"uniqueIndex:idx_products_dedup"`
	Availability   string   `json:"availability,omitempty" gorm:"index"`
	DeliveryLabel  string   `json:"delivery_label,omitempty"`
	ProductURL     string   `json:"product_url,omitempty" gorm:"uniqueIndex:idx_products_dedup"`
	ProductID      string   `json:"product_id,omitempty" gorm:"index"`
	SkuID          string   `json:"sku_id,omitempty"`
	Brand          string   `json:"brand,omitempty"`
	Quantity       string   `json:"quantity,omitempty"`
	Unit           string   `json:"unit,omitempty"`
	Rating         *float64 `json:"rating,omitempty"`
	RatingsCount   *int     `json:"ratings_count,omitempty"`
	InventoryCount *int     `json:"inventory_count,omitempty"`
}
