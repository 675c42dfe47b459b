package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/Dan9191/scheme-service/internal/catalog"
	"github.com/Dan9191/scheme-service/internal/classify"
	"github.com/Dan9191/scheme-service/internal/config"
	"github.com/Dan9191/scheme-service/internal/eligibility"
	"github.com/Dan9191/scheme-service/internal/flow"
	"github.com/Dan9191/scheme-service/internal/handoff"
	"github.com/Dan9191/scheme-service/internal/limits"
	"github.com/Dan9191/scheme-service/internal/models"
	"github.com/Dan9191/scheme-service/internal/repository"
	"github.com/Dan9191/scheme-service/internal/selection"
)

var (
	ErrSchemeNotFound = errors.New("scheme not found")
	ErrFlowNotFound   = errors.New("join flow not found")
)

// Upstream is the part of the core backend the service reads directly.
type Upstream interface {
	FetchHome(ctx context.Context) (*models.HomeBundle, error)
	FetchBranches(ctx context.Context) ([]models.Branch, error)
}

// GoldRates supplies the current per-gram gold rate.
type GoldRates interface {
	GetGoldRate(ctx context.Context) (float64, error)
}

// Deps are the components the service orchestrates.
type Deps struct {
	Catalog  *catalog.Cache
	Limits   flow.LimitResolver
	Gate     *eligibility.Gate
	Upstream Upstream
	Gold     GoldRates
	Store    repository.Store
	Handoff  *handoff.Store
	Engine   *flow.Engine
}

// Service handles business logic
type Service struct {
	d          Deps
	log        *logrus.Logger
	defaultMax decimal.Decimal

	mu         sync.Mutex
	selections map[string]*selection.State
	flows      map[string]*flow.Flow

	dashboards singleflight.Group
}

// NewService initializes a new service
func NewService(d Deps, cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{
		d:          d,
		log:        log,
		defaultMax: decimal.NewFromInt(cfg.DefaultMaxAmount),
		selections: make(map[string]*selection.State),
		flows:      make(map[string]*flow.Flow),
	}
}

// TabsView is the classified tab bar for one viewer.
type TabsView struct {
	Tabs   []classify.TabBucket `json:"tabs"`
	Active string               `json:"active"`
	Manual bool                 `json:"manual"`
	Stale  bool                 `json:"stale,omitempty"`
}

// BucketView is one tab's schemes, with the deep-linked scheme located when asked.
type BucketView struct {
	Tab       string                 `json:"tab"`
	Entries   []classify.BucketEntry `json:"entries"`
	Highlight *selection.ScrollPlan  `json:"highlight,omitempty"`
	Stale     bool                   `json:"stale,omitempty"`
}

// LimitsView is the resolved amount limit of a scheme.
type LimitsView struct {
	SchemeID string              `json:"scheme_id"`
	Limit    *models.AmountLimit `json:"limit"`
	Source   limits.Source       `json:"source"`
}

// BranchesView lists branches and the one to preselect.
type BranchesView struct {
	Branches []models.Branch `json:"branches"`
	Selected string          `json:"selected,omitempty"`
}

// Schemes returns the catalog. A failed refresh is logged and reported as stale.
func (s *Service) Schemes(ctx context.Context, force bool) ([]models.Scheme, bool) {
	schemes, err := s.d.Catalog.Get(ctx, force)
	if err != nil {
		s.log.WithError(err).Warn("Serving cached catalog")
		return schemes, true
	}
	return schemes, false
}

// Tabs classifies the catalog and reconciles viewer's active tab. A non-empty
// target is an external request (deep link) and clears the manual latch.
func (s *Service) Tabs(ctx context.Context, viewer, target string, force bool) *TabsView {
	schemes, stale := s.Schemes(ctx, force)
	tabs := classify.Tabs(schemes)
	st := s.selectionFor(viewer)

	var active string
	if target != "" {
		active = st.RequestTarget(tabs, target)
	} else {
		active = st.Refresh(tabs)
	}
	return &TabsView{Tabs: tabs, Active: active, Manual: st.Manual(), Stale: stale}
}

// SelectTab applies a manual tab tap for viewer.
func (s *Service) SelectTab(ctx context.Context, viewer, tab string) (*TabsView, error) {
	schemes, stale := s.Schemes(ctx, false)
	tabs := classify.Tabs(schemes)
	st := s.selectionFor(viewer)

	active, err := st.Pick(tabs, tab)
	if err != nil {
		return nil, err
	}
	return &TabsView{Tabs: tabs, Active: active, Manual: true, Stale: stale}, nil
}

// Bucket returns the schemes of tab, defaulting to viewer's active tab. When
// schemeID is set its position in the bucket is returned for highlighting.
func (s *Service) Bucket(ctx context.Context, viewer, tab, schemeID string) *BucketView {
	schemes, stale := s.Schemes(ctx, false)
	if tab == "" {
		tab = s.selectionFor(viewer).Refresh(classify.Tabs(schemes))
	}
	view := &BucketView{Tab: tab, Entries: classify.Bucket(schemes, tab), Stale: stale}

	if schemeID != "" {
		plan, err := selection.Plan(view.Entries, schemeID)
		if err != nil {
			s.log.WithFields(logrus.Fields{"scheme_id": schemeID, "tab": tab}).Debug("Deep-linked scheme not in bucket")
		} else {
			view.Highlight = &plan
		}
	}
	return view
}

// Limits resolves the amount limit of schemeID and remembers it as userID's
// active limit. quick applies the default upper bound used by the quick-join screen.
func (s *Service) Limits(ctx context.Context, userID, schemeID string, quick bool) *LimitsView {
	limit, src := s.d.Limits.Resolve(ctx, schemeID)
	if quick {
		bounded := limits.WithDefaultBound(limit, s.defaultMax)
		limit = &bounded
	}
	view := &LimitsView{SchemeID: schemeID, Limit: limit, Source: src}

	if userID != "" {
		if err := repository.PutJSON(ctx, s.d.Store, userID, repository.KeyActiveLimit, view); err != nil {
			s.log.WithError(err).Warn("Active limit not persisted")
		}
	}
	return view
}

// KYC returns userID's compliance state, querying upstream when needed.
func (s *Service) KYC(ctx context.Context, userID string) eligibility.State {
	return s.d.Gate.Check(ctx, userID)
}

// Branches lists enrollment branches, preselecting the only one when there is one.
func (s *Service) Branches(ctx context.Context) (*BranchesView, error) {
	branches, err := s.d.Upstream.FetchBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch branches: %w", err)
	}
	view := &BranchesView{Branches: branches}
	if len(branches) == 1 {
		view.Selected = branches[0].ID
	}
	return view, nil
}

// BannerSeen reports whether userID dismissed the info banner.
func (s *Service) BannerSeen(ctx context.Context, userID string) (bool, error) {
	seen, err := repository.GetJSON[bool](ctx, s.d.Store, userID, repository.KeyBannerSeen)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return seen, err
}

// MarkBannerSeen records that userID dismissed the info banner.
func (s *Service) MarkBannerSeen(ctx context.Context, userID string) error {
	return repository.PutJSON(ctx, s.d.Store, userID, repository.KeyBannerSeen, true)
}

func (s *Service) selectionFor(viewer string) *selection.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.selections[viewer]
	if !ok {
		st = selection.NewState()
		s.selections[viewer] = st
	}
	return st
}

func (s *Service) findScheme(ctx context.Context, schemeID string) (models.Scheme, error) {
	if sc, ok := s.d.Catalog.Lookup(schemeID); ok {
		return sc, nil
	}
	schemes, _ := s.Schemes(ctx, false)
	for _, sc := range schemes {
		if sc.ID == schemeID {
			return sc, nil
		}
	}
	return models.Scheme{}, fmt.Errorf("%w: %s", ErrSchemeNotFound, schemeID)
}
