package payment

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/scheme-service/internal/models"
)

// Submitter sends a form-encoded initiation request and returns the raw reply.
type Submitter interface {
	InitiatePayment(ctx context.Context, form url.Values) ([]byte, error)
}

// Initiator turns a session into a gateway redirect
type Initiator struct {
	submitter Submitter
	log       *logrus.Logger
}

// NewInitiator initializes a payment initiator
func NewInitiator(submitter Submitter, log *logrus.Logger) *Initiator {
	return &Initiator{submitter: submitter, log: log}
}

// Initiate submits the session once and normalizes the gateway reply.
func (i *Initiator) Initiate(ctx context.Context, s *models.PaymentSession) (*models.RedirectInstruction, error) {
	if err := Submittable(s); err != nil {
		return nil, err
	}

	body, err := i.submitter.InitiatePayment(ctx, Form(s))
	if err != nil {
		return nil, fmt.Errorf("payment initiation failed: %w", err)
	}

	redirect, err := NormalizeResponse(body)
	if err != nil {
		i.log.WithError(err).WithField("session_id", s.ID).Warn("Gateway response not usable")
		return nil, err
	}

	i.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"order_id":   redirect.OrderID,
	}).Info("Payment initiated")
	return redirect, nil
}

// Form encodes the gateway initiation request.
func Form(s *models.PaymentSession) url.Values {
	form := url.Values{}
	form.Set("session_id", s.ID)
	form.Set("user_id", s.UserID)
	form.Set("scheme_id", s.SchemeID)
	form.Set("chit_id", s.ChitID)
	form.Set("account_number", s.AccountNumber)
	form.Set("investment_id", s.InvestmentID)
	form.Set("amount", s.Amount.StringFixed(2))
	form.Set("payment_frequency", s.Frequency)
	form.Set("source", s.Source)
	if s.UserName != "" {
		form.Set("name", s.UserName)
	}
	if s.Email != "" {
		form.Set("email", s.Email)
	}
	if s.Phone != "" {
		form.Set("phone", s.Phone)
	}
	return form
}
