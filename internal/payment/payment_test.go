package payment

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/scheme-service/internal/limits"
	"github.com/Dan9191/scheme-service/internal/models"
)

func input() BuildInput {
	return BuildInput{
		Scheme: models.Scheme{
			ID:       "s1",
			Name:     models.LocalizedText{ByLocale: map[string]string{"en": "Golden Eleven", "ta": "தங்க பதினொன்று"}},
			Benefits: []models.LocalizedText{models.PlainText("No making charges")},
		},
		Chit:       models.Chit{ID: "c1", Frequency: "Monthly", Amount: decimal.NewFromInt(1000), Active: true},
		User:       models.User{ID: "u1", Name: "Asha", Email: "asha@example.com", Phone: "9999999999"},
		Enrollment: models.Enrollment{AccountNumber: "ACC1", InvestmentID: "INV1"},
		Amount:     decimal.NewFromInt(15000),
		Limit:      &models.AmountLimit{Min: decimal.NewNullDecimal(decimal.NewFromInt(10000)), Max: decimal.NewNullDecimal(decimal.NewFromInt(20000))},
		Source:     models.SourceQuickJoin,
		Locale:     "ta",
	}
}

func TestBuild_Success(t *testing.T) {
	s, err := NewBuilder(2048).Build(input())
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "ACC1", s.AccountNumber)
	assert.Equal(t, "INV1", s.InvestmentID)
	assert.Equal(t, "Monthly", s.Frequency)
	assert.Equal(t, "தங்க பதினொன்று", s.SchemeName)
	assert.Equal(t, []string{"No making charges"}, s.Benefits)
}

func TestBuild_LegacyAccountField(t *testing.T) {
	in := input()
	in.Enrollment = models.Enrollment{AccountNo: "LEG1", InvestmentID: "INV1"}
	s, err := NewBuilder(2048).Build(in)
	require.NoError(t, err)
	assert.Equal(t, "LEG1", s.AccountNumber)
}

func TestBuild_ValidationOrder(t *testing.T) {
	var missing *MissingFieldError

	in := input()
	in.Enrollment = models.Enrollment{}
	in.Amount = decimal.Zero
	_, err := NewBuilder(2048).Build(in)
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "accountNumber", missing.Field)

	in.Enrollment = models.Enrollment{AccountNumber: "ACC1"}
	_, err = NewBuilder(2048).Build(in)
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "investmentId", missing.Field)

	in.Enrollment.InvestmentID = "INV1"
	in.Amount = decimal.NewFromInt(5000)
	_, err = NewBuilder(2048).Build(in)
	var amountErr *limits.AmountError
	require.ErrorAs(t, err, &amountErr)
	assert.Equal(t, "Minimum amount is ₹10,000", amountErr.Message)

	in.Amount = decimal.NewFromInt(25000)
	_, err = NewBuilder(2048).Build(in)
	require.ErrorAs(t, err, &amountErr)
	assert.Equal(t, "Maximum amount is ₹20,000", amountErr.Message)
}

func TestEncode_MinimizesOverBudget(t *testing.T) {
	in := input()
	in.Scheme.Description = models.PlainText(strings.Repeat("long description ", 40))
	s, err := NewBuilder(2048).Build(in)
	require.NoError(t, err)

	full, err := NewBuilder(4096).Encode(s)
	require.NoError(t, err)
	assert.Contains(t, string(full), "scheme_description")

	small, err := NewBuilder(600).Encode(s)
	require.NoError(t, err)
	assert.NotContains(t, string(small), "scheme_description")
	assert.LessOrEqual(t, len(small), 600)

	decoded, err := Decode(small)
	require.NoError(t, err)
	assert.Equal(t, s.InvestmentID, decoded.InvestmentID)
	assert.True(t, s.Amount.Equal(decoded.Amount))

	_, err = NewBuilder(64).Encode(s)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`{"scheme_id":`))
	assert.Error(t, err)
	_, err = Decode([]byte(`{}`))
	assert.Error(t, err)
}

func TestParseResponse_Shapes(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"session":{"order_id":"ord_1","payment_links":{"web":"https://pay.example/s/1"}}}`))
	require.NoError(t, err)
	primary, ok := resp.(PrimaryResponse)
	require.True(t, ok)
	assert.Equal(t, "ord_1", primary.OrderID)
	assert.Equal(t, "https://pay.example/s/1", primary.Instruction().URL)

	resp, err = ParseResponse([]byte(`{"data":"https://legacy.example/p","order_id":77}`))
	require.NoError(t, err)
	legacy, ok := resp.(LegacyResponse)
	require.True(t, ok)
	assert.Equal(t, "77", legacy.OrderID)

	resp, err = ParseResponse([]byte(`{"data":"https://legacy.example/p","session":{"order_id":"nested"}}`))
	require.NoError(t, err)
	assert.Equal(t, "nested", resp.Instruction().OrderID)
}

func TestParseResponse_TrimsURL(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"session":{"payment_links":{"web":"  https://pay.example/s/1\n"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/s/1", resp.Instruction().URL)

	resp, err = ParseResponse([]byte(`{"data":" https://legacy.example/p "}`))
	require.NoError(t, err)
	assert.Equal(t, "https://legacy.example/p", resp.Instruction().URL)
}

func TestParseResponse_NoRedirect(t *testing.T) {
	for _, body := range []string{
		`{"status":"ok"}`,
		`{"session":{"payment_links":{}}}`,
		`{"data":{"url":"https://x"}}`,
		`{"data":"not a url"}`,
	} {
		_, err := ParseResponse([]byte(body))
		assert.ErrorIs(t, err, ErrNoRedirectURL, body)
	}
	for _, body := range []string{``, `<html>`, `[1,2]`, `"https://x"`} {
		_, err := ParseResponse([]byte(body))
		assert.ErrorIs(t, err, ErrUnrecognizedShape, body)
	}
}

type submitterFunc func(ctx context.Context, form url.Values) ([]byte, error)

func (f submitterFunc) InitiatePayment(ctx context.Context, form url.Values) ([]byte, error) {
	return f(ctx, form)
}

func quiet() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestInitiate(t *testing.T) {
	s, err := NewBuilder(2048).Build(input())
	require.NoError(t, err)

	var got url.Values
	in := NewInitiator(submitterFunc(func(ctx context.Context, form url.Values) ([]byte, error) {
		got = form
		return []byte(`{"session":{"id":"o9","payment_links":{"web":"https://pay.example/o9"}}}`), nil
	}), quiet())

	redirect, err := in.Initiate(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/o9", redirect.URL)
	assert.Equal(t, "o9", redirect.OrderID)
	assert.Equal(t, "15000.00", got.Get("amount"))
	assert.Equal(t, "ACC1", got.Get("account_number"))
}

func TestInitiate_Failures(t *testing.T) {
	s, err := NewBuilder(2048).Build(input())
	require.NoError(t, err)

	down := NewInitiator(submitterFunc(func(ctx context.Context, form url.Values) ([]byte, error) {
		return nil, errors.New("connection refused")
	}), quiet())
	_, err = down.Initiate(context.Background(), s)
	assert.Error(t, err)

	empty := NewInitiator(submitterFunc(func(ctx context.Context, form url.Values) ([]byte, error) {
		return []byte(`{"ok":true}`), nil
	}), quiet())
	_, err = empty.Initiate(context.Background(), s)
	assert.ErrorIs(t, err, ErrNoRedirectURL)

	bad := *s
	bad.InvestmentID = ""
	_, err = empty.Initiate(context.Background(), &bad)
	var missing *MissingFieldError
	assert.ErrorAs(t, err, &missing)
}
