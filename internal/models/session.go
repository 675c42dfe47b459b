package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source tags record which screen started a join.
const (
	SourceQuickJoin    = "quick_join"
	SourceSchemeDetail = "scheme_detail"
	SourceCarousel     = "dynamic_carousel"
)

// Enrollment is the investment record created upstream before payment.
// Older backends return the account number as account_no.
type Enrollment struct {
	AccountNumber string `json:"accountNumber,omitempty"`
	AccountNo     string `json:"account_no,omitempty"`
	InvestmentID  string `json:"investment_id,omitempty"`
}

// PaymentSession represents the canonical record sent to the payment gateway
type PaymentSession struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	SchemeID      string          `json:"scheme_id"`
	ChitID        string          `json:"chit_id"`
	AccountNumber string          `json:"account_number"`
	InvestmentID  string          `json:"investment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Frequency     string          `json:"payment_frequency"`
	UserName      string          `json:"user_name,omitempty"`
	Email         string          `json:"email,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	Source        string          `json:"source"`
	CreatedAt     time.Time       `json:"created_at"`

	// Display-only, dropped from the minimized hand-off form.
	SchemeName        string   `json:"scheme_name,omitempty"`
	SchemeDescription string   `json:"scheme_description,omitempty"`
	Benefits          []string `json:"benefits,omitempty"`
}

// RedirectInstruction tells the client where to send the user for payment.
type RedirectInstruction struct {
	URL     string `json:"url"`
	OrderID string `json:"order_id,omitempty"`
}
