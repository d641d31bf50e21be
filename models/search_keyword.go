package models

// SearchKeyword repräsentiert ein Suchwort, für das Produkte gesammelt werden.
type SearchKeyword struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	Keyword string `json:"keyword" gorm:"uniqueIndex;not null"` // z.B. "milk"
	// Zielanzahl pro Lauf; 0 = unbegrenzt (erste erfolgreiche Quelle zählt)
	Target int `json:"target"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (SearchKeyword) TableName() string {
	return "search_keywords"
}
