package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Dan9191/scheme-service/internal/repository"
	"github.com/Dan9191/scheme-service/internal/utils"
)

// sharedOwner holds client state that is the same for every user.
const sharedOwner = "_shared"

// GoldRate is the cached per-gram gold rate.
type GoldRate struct {
	Rate      float64   `json:"rate"`
	FetchedAt time.Time `json:"fetched_at"`
}

// GoldWeightView projects an amount onto grams of gold.
type GoldWeightView struct {
	Amount    float64 `json:"amount"`
	Rate      float64 `json:"rate"`
	Weight    float64 `json:"weight"`
	Formatted string  `json:"formatted"`
}

// RefreshGoldRate fetches the gold rate and caches it.
func (s *Service) RefreshGoldRate(ctx context.Context) (*GoldRate, error) {
	rate, err := s.d.Gold.GetGoldRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh gold rate: %w", err)
	}
	gr := &GoldRate{Rate: rate, FetchedAt: time.Now().UTC()}
	if err := repository.PutJSON(ctx, s.d.Store, sharedOwner, repository.KeyGoldRate, gr); err != nil {
		s.log.WithError(err).Warn("Gold rate not cached")
	}
	s.log.Infof("Gold rate refreshed: %.2f", rate)
	return gr, nil
}

// CurrentGoldRate returns the cached gold rate, fetching it when none is cached.
func (s *Service) CurrentGoldRate(ctx context.Context) (*GoldRate, error) {
	gr, err := repository.GetJSON[GoldRate](ctx, s.d.Store, sharedOwner, repository.KeyGoldRate)
	if err == nil {
		return &gr, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.log.WithError(err).Warn("Cached gold rate unreadable")
	}
	return s.RefreshGoldRate(ctx)
}

// GoldWeight converts amount to grams at the current rate. An unavailable rate
// yields a zero weight rather than an error.
func (s *Service) GoldWeight(ctx context.Context, amount float64) *GoldWeightView {
	view := &GoldWeightView{Amount: orZero(amount)}
	gr, err := s.CurrentGoldRate(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Gold weight computed without a rate")
	} else {
		view.Rate = orZero(gr.Rate)
	}
	view.Weight = utils.GoldWeight(view.Amount, view.Rate)
	view.Formatted = utils.FormatGrams(view.Weight)
	return view
}

// orZero maps NaN and the infinities to zero; they have no JSON encoding.
func orZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
