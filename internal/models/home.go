package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Branch represents a store branch the user can enroll at
type Branch struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	City    string `json:"city,omitempty"`
	Address string `json:"address,omitempty"`
}

// Rate is a published metal rate per gram.
type Rate struct {
	Metal  string          `json:"metal"`
	Purity string          `json:"purity,omitempty"`
	Price  decimal.Decimal `json:"price"`
}

// HomeBundle is the aggregated home screen payload.
type HomeBundle struct {
	Rates         []Rate            `json:"rates"`
	Collections   []json.RawMessage `json:"collections"`
	Posters       []json.RawMessage `json:"posters"`
	FlashMessages []string          `json:"flash_messages"`
}
