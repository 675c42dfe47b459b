package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/scheme-service/internal/eligibility"
	"github.com/Dan9191/scheme-service/internal/flow"
	"github.com/Dan9191/scheme-service/internal/handoff"
	"github.com/Dan9191/scheme-service/internal/models"
)

// JoinRequest opens a join flow on a scheme.
type JoinRequest struct {
	SchemeID string `json:"scheme_id"`
	Source   string `json:"source"`
	Locale   string `json:"locale"`
}

// StartJoin opens schemeID in a new flow for user and starts the KYC lookup
// in the background so the quick path usually finds it resolved.
func (s *Service) StartJoin(ctx context.Context, user models.User, req JoinRequest) (*flow.Snapshot, error) {
	scheme, err := s.findScheme(ctx, req.SchemeID)
	if err != nil {
		return nil, err
	}
	s.d.Gate.Start(user.ID)

	f := s.d.Engine.Start(user, req.Locale, req.Source)
	if err := s.d.Engine.Open(ctx, f, scheme); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.flows[f.ID] = f
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"flow_id":   f.ID,
		"user_id":   user.ID,
		"scheme_id": scheme.ID,
	}).Info("Join flow started")
	snap := f.Snapshot()
	return &snap, nil
}

// JoinStatus returns the flow state.
func (s *Service) JoinStatus(userID, flowID string) (*flow.Snapshot, error) {
	f, err := s.flowFor(userID, flowID)
	if err != nil {
		return nil, err
	}
	snap := f.Snapshot()
	return &snap, nil
}

// ChooseJoinPath selects the chit and the quick or full path.
func (s *Service) ChooseJoinPath(ctx context.Context, userID, flowID string, path flow.Path, chitID string) (*flow.Snapshot, error) {
	return s.apply(userID, flowID, func(f *flow.Flow) error {
		return s.d.Engine.Choose(ctx, f, path, chitID)
	})
}

// ResolveBlocked answers a blocked quick join.
func (s *Service) ResolveBlocked(ctx context.Context, userID, flowID string, option eligibility.Option) (*flow.Snapshot, error) {
	return s.apply(userID, flowID, func(f *flow.Flow) error {
		return s.d.Engine.ResolveBlocked(ctx, f, option)
	})
}

// SubmitAmount validates the amount and builds the payment session.
func (s *Service) SubmitAmount(ctx context.Context, userID, flowID string, amount decimal.Decimal, branchID string) (*flow.Snapshot, error) {
	return s.apply(userID, flowID, func(f *flow.Flow) error {
		_, err := s.d.Engine.SubmitAmount(ctx, f, amount, branchID)
		return err
	})
}

// InitiateJoin submits the session to the gateway.
func (s *Service) InitiateJoin(ctx context.Context, userID, flowID string) (*models.RedirectInstruction, error) {
	f, err := s.flowFor(userID, flowID)
	if err != nil {
		return nil, err
	}
	return s.d.Engine.Initiate(ctx, f)
}

// ResumeJoin restores the payment session of a flow that lost it, trying the
// persisted snapshot, the in-memory copy and finally the flow's own selection.
// Stored sessions built for another scheme or chit are passed over. A session
// rebuilt from the selection has no enrollment yet, so the flow goes back to
// its path for the amount to be submitted again.
func (s *Service) ResumeJoin(ctx context.Context, userID, flowID string) (*flow.Snapshot, handoff.Source, error) {
	f, err := s.flowFor(userID, flowID)
	if err != nil {
		return nil, "", err
	}
	if snap := f.Snapshot(); snap.Session != nil {
		return &snap, handoff.SourceMemory, nil
	}

	session, src, err := s.d.Handoff.Recover(ctx, userID, f.Accepts, f.Draft)
	if err != nil {
		return nil, "", err
	}
	if err := s.d.Engine.Resume(f, session); err != nil {
		return nil, "", err
	}
	s.log.WithFields(logrus.Fields{"flow_id": flowID, "source": src}).Info("Join flow resumed")
	snap := f.Snapshot()
	return &snap, src, nil
}

// CancelJoin returns the flow to browsing, discarding its selection.
func (s *Service) CancelJoin(ctx context.Context, userID, flowID string) (*flow.Snapshot, error) {
	return s.apply(userID, flowID, func(f *flow.Flow) error {
		return s.d.Engine.Cancel(ctx, f)
	})
}

// CloseJoin tears the flow down and forgets it.
func (s *Service) CloseJoin(userID, flowID string) error {
	f, err := s.flowFor(userID, flowID)
	if err != nil {
		return err
	}
	s.d.Engine.Close(f)

	s.mu.Lock()
	delete(s.flows, flowID)
	s.mu.Unlock()
	return nil
}

func (s *Service) apply(userID, flowID string, fn func(*flow.Flow) error) (*flow.Snapshot, error) {
	f, err := s.flowFor(userID, flowID)
	if err != nil {
		return nil, err
	}
	err = fn(f)
	snap := f.Snapshot()
	return &snap, err
}

func (s *Service) flowFor(userID, flowID string) (*flow.Flow, error) {
	s.mu.Lock()
	f, ok := s.flows[flowID]
	s.mu.Unlock()
	if !ok || f.UserID() != userID {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}
	return f, nil
}

// IsNotFound reports whether err means the requested entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound) || errors.Is(err, ErrSchemeNotFound) || errors.Is(err, handoff.ErrExhausted)
}
