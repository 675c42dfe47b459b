// Package payment assembles payment sessions and submits them to the gateway.
package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/scheme-service/internal/limits"
	"github.com/Dan9191/scheme-service/internal/models"
)

// ErrPayloadTooLarge is returned when even the minimized session exceeds the hand-off budget.
var ErrPayloadTooLarge = errors.New("session payload exceeds hand-off budget")

// MissingFieldError names the required identifier that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing required field: " + e.Field
}

// BuildInput carries everything a join attempt knows when the user confirms.
type BuildInput struct {
	Scheme     models.Scheme
	Chit       models.Chit
	User       models.User
	Enrollment models.Enrollment
	Amount     decimal.Decimal
	Limit      *models.AmountLimit
	Source     string
	Locale     string
}

// Builder validates join input and serializes sessions for hand-off
type Builder struct {
	budget int
	now    func() time.Time
}

// NewBuilder returns a builder enforcing budget bytes for encoded sessions
func NewBuilder(budget int) *Builder {
	return &Builder{budget: budget, now: time.Now}
}

// Build validates the account number, the investment id and the amount, in
// that order, and returns the session.
func (b *Builder) Build(in BuildInput) (*models.PaymentSession, error) {
	account := strings.TrimSpace(in.Enrollment.AccountNumber)
	if account == "" {
		account = strings.TrimSpace(in.Enrollment.AccountNo)
	}
	if account == "" {
		return nil, &MissingFieldError{Field: "accountNumber"}
	}
	investmentID := strings.TrimSpace(in.Enrollment.InvestmentID)
	if investmentID == "" {
		return nil, &MissingFieldError{Field: "investmentId"}
	}
	if err := limits.Validate(in.Amount, in.Limit); err != nil {
		return nil, err
	}

	benefits := make([]string, 0, len(in.Scheme.Benefits))
	for _, bt := range in.Scheme.Benefits {
		if s := bt.Resolve(in.Locale); s != "" {
			benefits = append(benefits, s)
		}
	}

	return &models.PaymentSession{
		ID:                uuid.NewString(),
		UserID:            in.User.ID,
		SchemeID:          in.Scheme.ID,
		ChitID:            in.Chit.ID,
		AccountNumber:     account,
		InvestmentID:      investmentID,
		Amount:            in.Amount,
		Frequency:         in.Chit.Frequency,
		UserName:          in.User.Name,
		Email:             in.User.Email,
		Phone:             in.User.Phone,
		Source:            in.Source,
		CreatedAt:         b.now().UTC(),
		SchemeName:        in.Scheme.Name.Resolve(in.Locale),
		SchemeDescription: in.Scheme.Description.Resolve(in.Locale),
		Benefits:          benefits,
	}, nil
}

// Encode serializes a session for hand-off. When the full form is over budget
// the display-only fields are dropped and the session is encoded again.
func (b *Builder) Encode(s *models.PaymentSession) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	if len(data) <= b.budget {
		return data, nil
	}

	minimized := Minimize(s)
	data, err = json.Marshal(minimized)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	if len(data) > b.budget {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(data), b.budget)
	}
	return data, nil
}

// Decode parses a hand-off payload.
func Decode(data []byte) (*models.PaymentSession, error) {
	var s models.PaymentSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if s.SchemeID == "" {
		return nil, fmt.Errorf("failed to decode session: no scheme id")
	}
	return &s, nil
}

// Minimize returns a copy of s without display-only fields.
func Minimize(s *models.PaymentSession) *models.PaymentSession {
	m := *s
	m.SchemeName = ""
	m.SchemeDescription = ""
	m.Benefits = nil
	return &m
}

// Submittable reports whether s carries the identifiers the gateway requires.
func Submittable(s *models.PaymentSession) error {
	if s == nil {
		return errors.New("no session")
	}
	if s.AccountNumber == "" {
		return &MissingFieldError{Field: "accountNumber"}
	}
	if s.InvestmentID == "" {
		return &MissingFieldError{Field: "investmentId"}
	}
	return nil
}
