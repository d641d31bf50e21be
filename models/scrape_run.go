package models

import "time"

// Status-Werte eines Scrape-Laufs.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusEmpty     = "empty"
	RunStatusFailed    = "failed"
)

// ScrapeRun protokolliert einen einzelnen Seiten-Lauf: Ergebnis, Zählerstand
// und eventuelle Warnungen. Ein leerer oder fehlgeschlagener Lauf ist für den
// Betreiber sichtbar, erzeugt aber nie fabrizierte Daten.
type ScrapeRun struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Keyword      string `json:"keyword" gorm:"index"`
	SourceURL    string `json:"source_url"`
	Target       int    `json:"target"`
	Status       string `json:"status" gorm:"index"`
	ProductCount int    `json:"product_count"`
	Error        string `json:"error,omitempty" gorm:"type:text"`
	SnapshotKey  string `json:"snapshot_key,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (ScrapeRun) TableName() string {
	return "scrape_runs"
}
