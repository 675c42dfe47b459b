package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/scheme-service/internal/config"
	"github.com/Dan9191/scheme-service/internal/models"
	"github.com/Dan9191/scheme-service/internal/utils"
)

// sendFunc delivers a prepared message; replaced in tests.
type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   sendFunc
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// Enabled reports whether an SMTP host is configured
func (s *Sender) Enabled() bool {
	return s.cfg.SMTPHost != ""
}

// SendEnrollmentReceipt tells the user their payment was handed to the gateway
func (s *Sender) SendEnrollmentReceipt(session *models.PaymentSession, redirect *models.RedirectInstruction) error {
	if !s.Enabled() || session.Email == "" {
		return nil
	}

	e := buildReceipt(s.cfg.SenderEmail, session, redirect, time.Now())

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send enrollment receipt to %s: %v", session.Email, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", session.Email, e.Subject)
	return nil
}

func buildReceipt(from string, session *models.PaymentSession, redirect *models.RedirectInstruction, at time.Time) *email.Email {
	e := email.NewEmail()
	e.From = from
	e.To = []string{session.Email}
	e.Subject = "Your scheme payment has started"

	name := session.UserName
	if name == "" {
		name = "Customer"
	}
	body := fmt.Sprintf("Dear %s,\n\n", name)
	body += fmt.Sprintf(
		"We have started your payment of %s towards account %s.\n"+
			"Payment frequency: %s\n"+
			"Started at: %s\n",
		utils.FormatRupees(session.Amount), session.AccountNumber, session.Frequency, at.Format("2006-01-02 15:04:05"),
	)
	if session.SchemeName != "" {
		body += fmt.Sprintf("Scheme: %s\n", session.SchemeName)
	}
	if redirect != nil && redirect.OrderID != "" {
		body += fmt.Sprintf("Order reference: %s\n", redirect.OrderID)
	}
	body += "\nIf the payment page was closed, you can resume it from the app.\n"
	body += "\nBest regards,\nScheme Service"
	e.Text = []byte(body)
	return e
}
