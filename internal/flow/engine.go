package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/scheme-service/internal/eligibility"
	"github.com/Dan9191/scheme-service/internal/integrations/backend"
	"github.com/Dan9191/scheme-service/internal/limits"
	"github.com/Dan9191/scheme-service/internal/models"
	"github.com/Dan9191/scheme-service/internal/payment"
)

// Gate is the eligibility check consulted on the expedited path.
type Gate interface {
	Evaluate(ctx context.Context, userID string) eligibility.Decision
	Status(userID string) eligibility.State
	Forget(userID string)
}

// LimitResolver resolves amount bounds when a scheme is opened.
type LimitResolver interface {
	Resolve(ctx context.Context, schemeID string) (*models.AmountLimit, limits.Source)
}

// Enroller creates the investment record a session is built from.
type Enroller interface {
	CreateEnrollment(ctx context.Context, req backend.EnrollmentRequest) (*models.Enrollment, error)
}

// Initiator submits a built session to the gateway.
type Initiator interface {
	Initiate(ctx context.Context, s *models.PaymentSession) (*models.RedirectInstruction, error)
}

// Handoff persists the current session for other screens.
type Handoff interface {
	Put(ctx context.Context, owner string, s *models.PaymentSession) error
	Clear(ctx context.Context, owner, sessionID string) error
}

// Notifier is told about sessions handed to the gateway.
type Notifier interface {
	SendEnrollmentReceipt(s *models.PaymentSession, r *models.RedirectInstruction) error
}

// Deps are the collaborators of an Engine. Notifier may be nil.
type Deps struct {
	Gate        Gate
	Limits      LimitResolver
	Enroller    Enroller
	Builder     *payment.Builder
	Initiator   Initiator
	Handoff     Handoff
	Notifier    Notifier
	DefaultMax  decimal.Decimal
	InitTimeout time.Duration
	Log         *logrus.Logger
}

// Engine applies transitions to flows
type Engine struct {
	d Deps
}

// NewEngine initializes a flow engine
func NewEngine(d Deps) *Engine {
	if d.InitTimeout == 0 {
		d.InitTimeout = 30 * time.Second
	}
	return &Engine{d: d}
}

// Start begins a flow in Browsing.
func (e *Engine) Start(user models.User, locale, source string) *Flow {
	if source == "" {
		source = models.SourceSchemeDetail
	}
	return newFlow(user, locale, source)
}

// Open moves to SchemeOpen and resolves the scheme's amount limit.
func (e *Engine) Open(ctx context.Context, f *Flow, scheme models.Scheme) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.phase != PhaseBrowsing && f.phase != PhaseSchemeOpen {
		f.mu.Unlock()
		return fmt.Errorf("%w: open from %s", ErrInvalidTransition, f.phase)
	}
	gen := f.gen
	f.mu.Unlock()

	limit, src := e.d.Limits.Resolve(ctx, scheme.ID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.currentLocked(gen); err != nil {
		return err
	}
	f.scheme = &scheme
	f.chit = nil
	f.limit = limit
	f.limitSource = src
	f.decision = nil
	f.phase = PhaseSchemeOpen
	return nil
}

// Choose picks the chit and the join path. The quick path is refused with a
// BlockedError unless the eligibility gate allows it; the selection is kept so
// the user can complete KYC and choose again.
func (e *Engine) Choose(ctx context.Context, f *Flow, path Path, chitID string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.phase != PhaseSchemeOpen && f.phase != PhaseQuickPath && f.phase != PhaseFullPath {
		f.mu.Unlock()
		return fmt.Errorf("%w: choose from %s", ErrInvalidTransition, f.phase)
	}
	chit, ok := f.scheme.FindChit(chitID)
	if !ok || !chit.Active {
		f.mu.Unlock()
		return ErrUnknownChit
	}
	gen := f.gen
	userID := f.user.ID
	f.mu.Unlock()

	var decision *eligibility.Decision
	switch path {
	case PathQuick:
		d := e.d.Gate.Evaluate(ctx, userID)
		decision = &d
	case PathFull:
	default:
		return fmt.Errorf("%w: unknown path %q", ErrInvalidTransition, path)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.currentLocked(gen); err != nil {
		return err
	}
	f.chit = &chit
	f.decision = decision
	if decision != nil && !decision.Allowed {
		f.phase = PhaseSchemeOpen
		return &BlockedError{Decision: *decision}
	}
	f.path = path
	f.awaitingKYC = false
	if path == PathQuick {
		f.phase = PhaseQuickPath
	} else {
		f.phase = PhaseFullPath
	}
	return nil
}

// ResolveBlocked applies the user's answer to a blocked quick join: cancel
// discards the selection, complete_kyc keeps it for resuming afterwards.
func (e *Engine) ResolveBlocked(ctx context.Context, f *Flow, option eligibility.Option) error {
	switch option {
	case eligibility.OptionCancel:
		return e.Cancel(ctx, f)
	case eligibility.OptionCompleteKYC:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.closed {
			return ErrClosed
		}
		if f.phase != PhaseSchemeOpen || f.decision == nil || f.decision.Allowed {
			return fmt.Errorf("%w: nothing blocked", ErrInvalidTransition)
		}
		f.awaitingKYC = true
		e.d.Gate.Forget(f.user.ID)
		return nil
	default:
		return fmt.Errorf("%w: unknown option %q", ErrInvalidTransition, option)
	}
}

// SubmitAmount validates amount, creates the enrollment and builds the
// session. Validation failures leave the flow on its path for correction.
func (e *Engine) SubmitAmount(ctx context.Context, f *Flow, amount decimal.Decimal, branchID string) (*models.PaymentSession, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	if f.phase != PhaseQuickPath && f.phase != PhaseFullPath {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: submit amount from %s", ErrInvalidTransition, f.phase)
	}
	if f.path == PathQuick {
		if st := e.d.Gate.Status(f.user.ID); st == eligibility.Ineligible {
			d := eligibility.Decision{State: st, Options: []eligibility.Option{eligibility.OptionCancel, eligibility.OptionCompleteKYC}}
			f.decision = &d
			f.phase = PhaseSchemeOpen
			f.mu.Unlock()
			return nil, &BlockedError{Decision: d}
		}
	}
	limit := f.limit
	if f.path == PathQuick {
		bounded := limits.WithDefaultBound(f.limit, e.d.DefaultMax)
		limit = &bounded
	}
	if err := limits.Validate(amount, limit); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.phase = PhaseAmountValidated
	f.amount = amount
	f.branchID = branchID
	gen := f.gen
	in := payment.BuildInput{
		Scheme: *f.scheme,
		Chit:   *f.chit,
		User:   f.user,
		Amount: amount,
		Limit:  limit,
		Source: f.source,
		Locale: f.locale,
	}
	f.mu.Unlock()

	enrollment, err := e.d.Enroller.CreateEnrollment(ctx, backend.EnrollmentRequest{
		UserID:   in.User.ID,
		SchemeID: in.Scheme.ID,
		ChitID:   in.Chit.ID,
		BranchID: branchID,
		Amount:   amount,
	})

	f.mu.Lock()
	if cerr := f.currentLocked(gen); cerr != nil {
		f.mu.Unlock()
		return nil, cerr
	}
	if err != nil {
		err = fmt.Errorf("enrollment failed: %w", err)
		f.fail(err)
		f.mu.Unlock()
		return nil, err
	}
	in.Enrollment = *enrollment
	session, err := e.d.Builder.Build(in)
	if err != nil {
		f.fail(err)
		f.mu.Unlock()
		return nil, err
	}
	f.session = session
	f.phase = PhaseSessionBuilt
	owner := f.user.ID
	f.mu.Unlock()

	if err := e.d.Handoff.Put(ctx, owner, session); err != nil {
		e.d.Log.WithError(err).WithField("session_id", session.ID).Warn("Session hand-off not persisted")
	}
	return session, nil
}

// Resume puts a recovered session back into a flow that has none. A session
// for another scheme or chit is refused with ErrSessionMismatch. A session
// without enrollment identifiers returns the flow to its path so the amount
// is submitted again.
func (e *Engine) Resume(f *Flow, s *models.PaymentSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.processing || f.session != nil {
		return fmt.Errorf("%w: flow already holds a session", ErrInvalidTransition)
	}
	if !f.acceptsLocked(s) {
		return ErrSessionMismatch
	}
	if f.chit == nil {
		chit, ok := f.scheme.FindChit(s.ChitID)
		if !ok || !chit.Active {
			return ErrUnknownChit
		}
		f.chit = &chit
	}
	f.lastErr = nil
	if err := payment.Submittable(s); err != nil {
		f.amount = s.Amount
		switch f.path {
		case PathQuick:
			f.phase = PhaseQuickPath
		case PathFull:
			f.phase = PhaseFullPath
		default:
			f.phase = PhaseSchemeOpen
		}
		return nil
	}
	f.session = s
	f.phase = PhaseSessionBuilt
	return nil
}

// Initiate submits the held session once. The gateway call is not cancelled
// when ctx is; its result is dropped if the flow was cancelled or closed
// meanwhile. A second call while one is in flight gets ErrAlreadyProcessing.
func (e *Engine) Initiate(ctx context.Context, f *Flow) (*models.RedirectInstruction, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	if f.processing {
		f.mu.Unlock()
		return nil, ErrAlreadyProcessing
	}
	if f.session == nil || (f.phase != PhaseSessionBuilt && f.phase != PhaseError) {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: initiate from %s", ErrInvalidTransition, f.phase)
	}
	f.processing = true
	f.phase = PhaseInitiating
	f.lastErr = nil
	gen := f.gen
	session := f.session
	f.mu.Unlock()

	type result struct {
		redirect *models.RedirectInstruction
		err      error
	}
	done := make(chan result, 1)
	go func() {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.d.InitTimeout)
		defer cancel()
		r, err := e.d.Initiator.Initiate(callCtx, session)
		r, err = e.finish(callCtx, f, gen, session, r, err)
		done <- result{redirect: r, err: err}
	}()

	select {
	case res := <-done:
		return res.redirect, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) finish(ctx context.Context, f *Flow, gen int, s *models.PaymentSession, r *models.RedirectInstruction, err error) (*models.RedirectInstruction, error) {
	f.mu.Lock()
	f.processing = false
	if cerr := f.currentLocked(gen); cerr != nil {
		f.mu.Unlock()
		e.d.Log.WithField("session_id", s.ID).Info("Initiation finished after flow ended, result dropped")
		return nil, cerr
	}
	if err != nil {
		f.fail(err)
		f.mu.Unlock()
		return nil, err
	}
	f.redirect = r
	f.phase = PhaseRedirected
	owner := f.user.ID
	f.mu.Unlock()

	if err := e.d.Handoff.Clear(ctx, owner, s.ID); err != nil {
		e.d.Log.WithError(err).Warn("Session hand-off not cleared")
	}
	if e.d.Notifier != nil {
		go func() {
			if err := e.d.Notifier.SendEnrollmentReceipt(s, r); err != nil {
				e.d.Log.WithError(err).Warn("Enrollment receipt not sent")
			}
		}()
	}
	return r, nil
}

// Cancel returns the flow to Browsing and discards the selection. An
// initiation already in flight still completes upstream but its caller gets
// ErrInvalidTransition.
func (e *Engine) Cancel(ctx context.Context, f *Flow) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	held := f.session
	f.resetLocked()
	owner := f.user.ID
	f.mu.Unlock()

	if held == nil {
		return nil
	}
	if err := e.d.Handoff.Clear(ctx, owner, held.ID); err != nil {
		e.d.Log.WithError(err).Warn("Session hand-off not cleared")
	}
	return nil
}

// Close tears the flow down; later results of suspended work are dropped.
func (e *Engine) Close(f *Flow) {
	f.mu.Lock()
	f.closed = true
	f.gen++
	f.mu.Unlock()
}

func (f *Flow) fail(err error) {
	f.lastErr = err
	f.phase = PhaseError
}
