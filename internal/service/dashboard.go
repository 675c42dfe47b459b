package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dan9191/scheme-service/internal/classify"
	"github.com/Dan9191/scheme-service/internal/eligibility"
	"github.com/Dan9191/scheme-service/internal/models"
)

const dashboardTimeout = 20 * time.Second

// DashboardView is the home screen aggregate. Sections that failed to load
// are left empty and named in Warnings.
type DashboardView struct {
	Schemes  []models.Scheme      `json:"schemes"`
	Tabs     []classify.TabBucket `json:"tabs"`
	Home     *models.HomeBundle   `json:"home,omitempty"`
	KYC      eligibility.State    `json:"kyc"`
	Branches *BranchesView        `json:"branches,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
}

// Dashboard loads the catalog, the home bundle, the KYC state and the branch
// list concurrently. Overlapping refreshes for the same user share one load.
func (s *Service) Dashboard(ctx context.Context, user models.User, force bool) *DashboardView {
	ch := s.dashboards.DoChan(user.ID, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dashboardTimeout)
		defer cancel()
		return s.loadDashboard(loadCtx, user, force), nil
	})

	select {
	case res := <-ch:
		return res.Val.(*DashboardView)
	case <-ctx.Done():
		return &DashboardView{KYC: s.d.Gate.Status(user.ID), Warnings: []string{"dashboard: " + ctx.Err().Error()}}
	}
}

func (s *Service) loadDashboard(ctx context.Context, user models.User, force bool) *DashboardView {
	view := &DashboardView{}
	var mu sync.Mutex
	warn := func(section string, err error) {
		s.log.WithError(err).WithField("section", section).Warn("Dashboard section unavailable")
		mu.Lock()
		view.Warnings = append(view.Warnings, section)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		schemes, stale := s.Schemes(gctx, force)
		tabs := classify.Tabs(schemes)
		mu.Lock()
		view.Schemes = schemes
		view.Tabs = tabs
		if stale {
			view.Warnings = append(view.Warnings, "schemes")
		}
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		home, err := s.d.Upstream.FetchHome(gctx)
		if err != nil {
			warn("home", err)
			return nil
		}
		mu.Lock()
		view.Home = home
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		st := s.d.Gate.Check(gctx, user.ID)
		mu.Lock()
		view.KYC = st
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		branches, err := s.Branches(gctx)
		if err != nil {
			warn("branches", err)
			return nil
		}
		mu.Lock()
		view.Branches = branches
		mu.Unlock()
		return nil
	})
	_ = g.Wait()

	return view
}
