package models

// Item is a single learnable character supplied by a catalog.
// Symbols travel in button callback data, which Telegram caps at 64 bytes.
type Item struct {
	Symbol          string `json:"symbol" yaml:"symbol" db:"symbol" validate:"required,max=12"`
	Transliteration string `json:"transliteration" yaml:"transliteration" db:"transliteration" validate:"required,max=12"`
	Category        string `json:"category" yaml:"category" db:"category"`
}
