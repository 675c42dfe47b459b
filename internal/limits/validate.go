package limits

import (
	"github.com/shopspring/decimal"

	"github.com/Dan9191/scheme-service/internal/models"
	"github.com/Dan9191/scheme-service/internal/utils"
)

// AmountError is a user-facing amount validation failure.
type AmountError struct {
	Message string
}

func (e *AmountError) Error() string { return e.Message }

// Validate checks that amount is positive and inside limit, when one is known.
func Validate(amount decimal.Decimal, limit *models.AmountLimit) error {
	if !amount.IsPositive() {
		return &AmountError{Message: "Please enter a valid amount"}
	}
	if limit == nil {
		return nil
	}
	if limit.Min.Valid && amount.LessThan(limit.Min.Decimal) {
		return &AmountError{Message: "Minimum amount is " + utils.FormatRupees(limit.Min.Decimal)}
	}
	if limit.Max.Valid && amount.GreaterThan(limit.Max.Decimal) {
		return &AmountError{Message: "Maximum amount is " + utils.FormatRupees(limit.Max.Decimal)}
	}
	return nil
}
