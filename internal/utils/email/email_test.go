package email

import (
	"errors"
	"io"
	"net/smtp"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/scheme-service/internal/config"
	"github.com/Dan9191/scheme-service/internal/models"
)

func newSender(host string) (*Sender, *[]*email.Email) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	s := NewSender(&config.Config{SMTPHost: host, SMTPPort: "25", SenderEmail: "from@example.com"}, log)
	var sent []*email.Email
	s.send = func(e *email.Email, addr string, auth smtp.Auth) error {
		sent = append(sent, e)
		return nil
	}
	return s, &sent
}

func TestSendEnrollmentReceipt(t *testing.T) {
	s, sent := newSender("smtp.example.com")
	session := &models.PaymentSession{
		Email: "asha@example.com", UserName: "Asha", AccountNumber: "ACC1",
		Amount: decimal.NewFromInt(125000), Frequency: "Monthly",
	}
	require.NoError(t, s.SendEnrollmentReceipt(session, &models.RedirectInstruction{OrderID: "ord_1"}))
	require.Len(t, *sent, 1)

	text := string((*sent)[0].Text)
	assert.Contains(t, text, "Dear Asha")
	assert.Contains(t, text, "₹1,25,000")
	assert.Contains(t, text, "ord_1")
	assert.Equal(t, []string{"asha@example.com"}, (*sent)[0].To)
}

func TestSendEnrollmentReceipt_SkippedWithoutHostOrAddress(t *testing.T) {
	s, sent := newSender("")
	require.NoError(t, s.SendEnrollmentReceipt(&models.PaymentSession{Email: "a@b.c"}, nil))

	s2, sent2 := newSender("smtp.example.com")
	require.NoError(t, s2.SendEnrollmentReceipt(&models.PaymentSession{}, nil))

	assert.Empty(t, *sent)
	assert.Empty(t, *sent2)
}

func TestSendEnrollmentReceipt_Error(t *testing.T) {
	s, _ := newSender("smtp.example.com")
	s.send = func(e *email.Email, addr string, auth smtp.Auth) error { return errors.New("dial failed") }
	err := s.SendEnrollmentReceipt(&models.PaymentSession{Email: "a@b.c"}, nil)
	assert.Error(t, err)
}

func TestBuildReceipt_DefaultName(t *testing.T) {
	e := buildReceipt("from@example.com", &models.PaymentSession{Email: "a@b.c", Amount: decimal.NewFromInt(500)}, nil, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))
	assert.Contains(t, string(e.Text), "Dear Customer")
	assert.Contains(t, string(e.Text), "2026-10-14 09:00:00")
}
