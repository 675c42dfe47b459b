package models

import "github.com/shopspring/decimal"

// AmountLimit bounds the amount a user may pay into a scheme.
type AmountLimit struct {
	Min          decimal.NullDecimal `json:"min"`
	Max          decimal.NullDecimal `json:"max"`
	QuickAmounts []decimal.Decimal   `json:"quick_amounts"`
}

// LimitRecord represents one record returned by the per-scheme limits endpoint
type LimitRecord struct {
	ID           string              `json:"id"`
	SchemeID     string              `json:"scheme_id"`
	Min          decimal.NullDecimal `json:"min_amount"`
	Max          decimal.NullDecimal `json:"max_amount"`
	QuickAmounts []decimal.Decimal   `json:"quick_amounts"`
	Active       *bool               `json:"active,omitempty"`
}
