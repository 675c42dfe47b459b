// Package limits resolves the amount bounds of a scheme from the limits
// endpoint, falling back to the limits embedded in the cached catalog.
package limits

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/scheme-service/internal/metrics"
	"github.com/Dan9191/scheme-service/internal/models"
)

// Source names where a resolved limit came from.
type Source string

const (
	SourceEndpoint Source = "endpoint"
	SourceCatalog  Source = "catalog"
	SourceNone     Source = "none"
)

// Fetcher loads limit records for a scheme.
type Fetcher interface {
	FetchLimits(ctx context.Context, schemeID string) ([]models.LimitRecord, error)
}

// Catalog looks up a cached scheme without going upstream.
type Catalog interface {
	Lookup(schemeID string) (models.Scheme, bool)
}

// Resolver runs the limit fallback chain
type Resolver struct {
	fetcher Fetcher
	catalog Catalog
	log     *logrus.Logger
}

// NewResolver initializes a limit resolver
func NewResolver(fetcher Fetcher, catalog Catalog, log *logrus.Logger) *Resolver {
	return &Resolver{fetcher: fetcher, catalog: catalog, log: log}
}

// Resolve returns the first usable limit from the endpoint or the cached
// catalog entry, or nil with SourceNone. Source failures are logged and skipped.
func (r *Resolver) Resolve(ctx context.Context, schemeID string) (*models.AmountLimit, Source) {
	if limit, ok := r.fromEndpoint(ctx, schemeID); ok {
		metrics.RecordLimitSource(string(SourceEndpoint))
		return limit, SourceEndpoint
	}
	if limit, ok := r.fromCatalog(schemeID); ok {
		metrics.RecordLimitSource(string(SourceCatalog))
		return limit, SourceCatalog
	}
	metrics.RecordLimitSource(string(SourceNone))
	return nil, SourceNone
}

func (r *Resolver) fromEndpoint(ctx context.Context, schemeID string) (*models.AmountLimit, bool) {
	records, err := r.fetcher.FetchLimits(ctx, schemeID)
	if err != nil {
		r.log.WithError(err).WithField("scheme_id", schemeID).Warn("Limits endpoint unavailable")
		return nil, false
	}
	record, ok := pickActive(records)
	if !ok {
		return nil, false
	}
	return Normalize(record.Min, record.Max, record.QuickAmounts)
}

func (r *Resolver) fromCatalog(schemeID string) (*models.AmountLimit, bool) {
	if r.catalog == nil {
		return nil, false
	}
	s, ok := r.catalog.Lookup(schemeID)
	if !ok {
		return nil, false
	}
	return Normalize(s.MinAmount, s.MaxAmount, s.QuickAmounts)
}

// pickActive selects the record flagged active, or a lone record with no flag.
func pickActive(records []models.LimitRecord) (models.LimitRecord, bool) {
	for _, rec := range records {
		if rec.Active != nil && *rec.Active {
			return rec, true
		}
	}
	if len(records) == 1 && records[0].Active == nil {
		return records[0], true
	}
	return models.LimitRecord{}, false
}

// Normalize builds an AmountLimit with quick amounts filtered to [min, max].
// It reports false when nothing usable remains or when min > max.
func Normalize(lo, hi decimal.NullDecimal, quick []decimal.Decimal) (*models.AmountLimit, bool) {
	if lo.Valid && hi.Valid && lo.Decimal.GreaterThan(hi.Decimal) {
		return nil, false
	}

	seen := make(map[string]bool)
	filtered := make([]decimal.Decimal, 0, len(quick))
	for _, q := range quick {
		if !q.IsPositive() {
			continue
		}
		if lo.Valid && q.LessThan(lo.Decimal) {
			continue
		}
		if hi.Valid && q.GreaterThan(hi.Decimal) {
			continue
		}
		key := q.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		filtered = append(filtered, q)
	}

	if !lo.Valid && !hi.Valid && len(filtered) == 0 {
		return nil, false
	}
	return &models.AmountLimit{Min: lo, Max: hi, QuickAmounts: filtered}, true
}

// WithDefaultBound fills in defaultMax when no upper bound is known.
func WithDefaultBound(limit *models.AmountLimit, defaultMax decimal.Decimal) models.AmountLimit {
	var out models.AmountLimit
	if limit != nil {
		out = *limit
	}
	if !out.Max.Valid {
		bound := defaultMax
		if out.Min.Valid && out.Min.Decimal.GreaterThan(bound) {
			bound = out.Min.Decimal
		}
		out.Max = decimal.NewNullDecimal(bound)
	}
	return out
}
