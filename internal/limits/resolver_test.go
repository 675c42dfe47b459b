package limits

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/scheme-service/internal/models"
)

type fetcherFunc func(ctx context.Context, schemeID string) ([]models.LimitRecord, error)

func (f fetcherFunc) FetchLimits(ctx context.Context, schemeID string) ([]models.LimitRecord, error) {
	return f(ctx, schemeID)
}

type catalogMap map[string]models.Scheme

func (c catalogMap) Lookup(id string) (models.Scheme, bool) {
	s, ok := c[id]
	return s, ok
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func nd(v int64) decimal.NullDecimal { return decimal.NewNullDecimal(d(v)) }

func boolPtr(b bool) *bool { return &b }

func quiet() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func records(recs ...models.LimitRecord) fetcherFunc {
	return func(ctx context.Context, schemeID string) ([]models.LimitRecord, error) { return recs, nil }
}

func TestResolve_PicksActiveRecord(t *testing.T) {
	r := NewResolver(records(
		models.LimitRecord{ID: "old", Min: nd(100), Max: nd(500), Active: boolPtr(false)},
		models.LimitRecord{ID: "new", Min: nd(1000), Max: nd(9000), Active: boolPtr(true), QuickAmounts: []decimal.Decimal{d(500), d(1000), d(5000), d(10000)}},
	), nil, quiet())

	limit, src := r.Resolve(context.Background(), "s1")
	require.NotNil(t, limit)
	assert.Equal(t, SourceEndpoint, src)
	assert.True(t, limit.Min.Decimal.Equal(d(1000)))
	assert.Equal(t, []string{"1000", "5000"}, []string{limit.QuickAmounts[0].String(), limit.QuickAmounts[1].String()})
	assert.Len(t, limit.QuickAmounts, 2)
}

func TestResolve_LoneUnflaggedRecord(t *testing.T) {
	r := NewResolver(records(models.LimitRecord{Min: nd(10), Max: nd(20)}), nil, quiet())
	limit, src := r.Resolve(context.Background(), "s1")
	require.NotNil(t, limit)
	assert.Equal(t, SourceEndpoint, src)
}

func TestResolve_SeveralUnflaggedFallsThrough(t *testing.T) {
	cat := catalogMap{"s1": {ID: "s1", MinAmount: nd(1), MaxAmount: nd(2)}}
	r := NewResolver(records(models.LimitRecord{Min: nd(10)}, models.LimitRecord{Min: nd(20)}), cat, quiet())
	_, src := r.Resolve(context.Background(), "s1")
	assert.Equal(t, SourceCatalog, src)
}

func TestResolve_EndpointErrorUsesCatalog(t *testing.T) {
	failing := fetcherFunc(func(ctx context.Context, schemeID string) ([]models.LimitRecord, error) {
		return nil, errors.New("502 bad gateway")
	})
	cat := catalogMap{"y": {ID: "y", MinAmount: nd(1000), MaxAmount: nd(5000)}}
	r := NewResolver(failing, cat, quiet())

	limit, src := r.Resolve(context.Background(), "y")
	require.NotNil(t, limit)
	assert.Equal(t, SourceCatalog, src)
	assert.True(t, limit.Min.Decimal.Equal(d(1000)))
	assert.True(t, limit.Max.Decimal.Equal(d(5000)))
	assert.Empty(t, limit.QuickAmounts)
}

func TestResolve_NothingAvailable(t *testing.T) {
	r := NewResolver(records(), catalogMap{"z": {ID: "z"}}, quiet())
	limit, src := r.Resolve(context.Background(), "z")
	assert.Nil(t, limit)
	assert.Equal(t, SourceNone, src)
}

func TestNormalize_RejectsInvertedBounds(t *testing.T) {
	_, ok := Normalize(nd(5000), nd(1000), nil)
	assert.False(t, ok)

	limit, ok := Normalize(decimal.NullDecimal{}, decimal.NullDecimal{}, []decimal.Decimal{d(100), d(100), d(-5), d(200)})
	require.True(t, ok)
	assert.Len(t, limit.QuickAmounts, 2)
}

func TestWithDefaultBound(t *testing.T) {
	got := WithDefaultBound(nil, d(100000))
	assert.True(t, got.Max.Decimal.Equal(d(100000)))
	assert.False(t, got.Min.Valid)

	got = WithDefaultBound(&models.AmountLimit{Min: nd(200000)}, d(100000))
	assert.True(t, got.Max.Decimal.Equal(d(200000)))

	got = WithDefaultBound(&models.AmountLimit{Max: nd(5000)}, d(100000))
	assert.True(t, got.Max.Decimal.Equal(d(5000)))
}

func TestValidate(t *testing.T) {
	limit := &models.AmountLimit{Min: nd(10000), Max: nd(20000)}

	err := Validate(d(5000), limit)
	var amountErr *AmountError
	require.ErrorAs(t, err, &amountErr)
	assert.Equal(t, "Minimum amount is ₹10,000", amountErr.Message)

	err = Validate(d(25000), limit)
	require.ErrorAs(t, err, &amountErr)
	assert.Equal(t, "Maximum amount is ₹20,000", amountErr.Message)

	assert.NoError(t, Validate(d(15000), limit))
	assert.Error(t, Validate(d(0), nil))
	assert.NoError(t, Validate(d(1), nil))
}
