package models

import "github.com/shopspring/decimal"

// SavingType tells whether a scheme accumulates money or gold weight.
type SavingType string

const (
	SavingAmount SavingType = "amount"
	SavingWeight SavingType = "weight"
)

// Scheme represents a savings product in the catalog
type Scheme struct {
	ID          string          `json:"id"`
	Name        LocalizedText   `json:"name"`
	Description LocalizedText   `json:"description"`
	Type        string          `json:"type"`
	SavingType  SavingType      `json:"saving_type"`
	Chits       []Chit          `json:"chits"`
	Active      bool            `json:"active"`
	Duration    *int            `json:"duration,omitempty"` // months
	Benefits    []LocalizedText `json:"benefits,omitempty"`
	Table       *SchemeTable    `json:"table,omitempty"`

	// Limits embedded in the catalog entry, used when the limits endpoint has nothing.
	MinAmount    decimal.NullDecimal `json:"min_amount"`
	MaxAmount    decimal.NullDecimal `json:"max_amount"`
	QuickAmounts []decimal.Decimal   `json:"quick_amounts,omitempty"`
}

// Chit represents a payment-plan variant of a scheme
type Chit struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Frequency string          `json:"payment_frequency"`
	Active    bool            `json:"active"`
}

// SchemeTable is optional tabular metadata shown on the scheme detail screen.
type SchemeTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// ChitRef is the lightweight projection of a chit used by payment screens.
type ChitRef struct {
	ChitID string          `json:"chit_id"`
	Amount decimal.Decimal `json:"amount"`
}

// FindChit returns the chit with the given id.
func (s Scheme) FindChit(id string) (Chit, bool) {
	for _, c := range s.Chits {
		if c.ID == id {
			return c, true
		}
	}
	return Chit{}, false
}
