// Package flow drives one join attempt from an opened scheme to the gateway
// redirect.
//
//	Browsing -> SchemeOpen -> QuickPath|FullPath -> AmountValidated -> SessionBuilt
//	         -> Initiating -> Redirected | Error
//
// Cancel returns any phase to Browsing. Initiating may be re-entered from
// Error while the built session is still held.
package flow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/scheme-service/internal/eligibility"
	"github.com/Dan9191/scheme-service/internal/limits"
	"github.com/Dan9191/scheme-service/internal/models"
)

// Phase is a state of the join flow.
type Phase string

const (
	PhaseBrowsing        Phase = "browsing"
	PhaseSchemeOpen      Phase = "scheme_open"
	PhaseQuickPath       Phase = "quick_path"
	PhaseFullPath        Phase = "full_path"
	PhaseAmountValidated Phase = "amount_validated"
	PhaseSessionBuilt    Phase = "session_built"
	PhaseInitiating      Phase = "initiating"
	PhaseRedirected      Phase = "redirected"
	PhaseError           Phase = "error"
)

// Path is the join route chosen on the scheme screen.
type Path string

const (
	PathQuick Path = "quick"
	PathFull  Path = "full"
)

var (
	ErrInvalidTransition = errors.New("invalid flow transition")
	ErrAlreadyProcessing = errors.New("payment already being processed")
	ErrClosed            = errors.New("flow closed")
	ErrUnknownChit       = errors.New("chit not available for this scheme")
	ErrSessionMismatch   = errors.New("session belongs to another selection")
)

// BlockedError is returned when the eligibility gate stops the expedited path.
type BlockedError struct {
	Decision eligibility.Decision
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("expedited join blocked: eligibility %s", e.Decision.State)
}

// Flow is the state of one join attempt
type Flow struct {
	ID string

	mu     sync.Mutex
	user   models.User
	locale string
	source string

	phase       Phase
	path        Path
	scheme      *models.Scheme
	chit        *models.Chit
	limit       *models.AmountLimit
	limitSource limits.Source
	amount      decimal.Decimal
	branchID    string
	session     *models.PaymentSession
	redirect    *models.RedirectInstruction
	decision    *eligibility.Decision
	lastErr     error
	awaitingKYC bool

	processing bool
	closed     bool
	// gen changes on Cancel and Close; results of suspended work from an older gen are dropped.
	gen int
}

// Snapshot is a read-only view of a flow
type Snapshot struct {
	ID          string                      `json:"id"`
	Phase       Phase                       `json:"phase"`
	Path        Path                        `json:"path,omitempty"`
	SchemeID    string                      `json:"scheme_id,omitempty"`
	ChitID      string                      `json:"chit_id,omitempty"`
	Limit       *models.AmountLimit         `json:"limit,omitempty"`
	LimitSource limits.Source               `json:"limit_source,omitempty"`
	Session     *models.PaymentSession      `json:"session,omitempty"`
	Redirect    *models.RedirectInstruction `json:"redirect,omitempty"`
	Decision    *eligibility.Decision       `json:"eligibility,omitempty"`
	Error       string                      `json:"error,omitempty"`
	Processing  bool                        `json:"processing"`
	AwaitingKYC bool                        `json:"awaiting_kyc,omitempty"`
}

func newFlow(user models.User, locale, source string) *Flow {
	return &Flow{
		ID:     uuid.NewString(),
		user:   user,
		locale: locale,
		source: source,
		phase:  PhaseBrowsing,
	}
}

// UserID returns the id of the user the flow belongs to.
func (f *Flow) UserID() string {
	return f.user.ID
}

// Phase returns the current phase.
func (f *Flow) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// Snapshot copies the flow state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Snapshot{
		ID:          f.ID,
		Phase:       f.phase,
		Path:        f.path,
		Limit:       f.limit,
		LimitSource: f.limitSource,
		Session:     f.session,
		Redirect:    f.redirect,
		Decision:    f.decision,
		Processing:  f.processing,
		AwaitingKYC: f.awaitingKYC,
	}
	if f.scheme != nil {
		s.SchemeID = f.scheme.ID
	}
	if f.chit != nil {
		s.ChitID = f.chit.ID
	}
	if f.lastErr != nil {
		s.Error = f.lastErr.Error()
	}
	return s
}

// Scheme returns the opened scheme, if any.
func (f *Flow) Scheme() (models.Scheme, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheme == nil {
		return models.Scheme{}, false
	}
	return *f.scheme, true
}

// Draft returns a minimal session from the current selection and amount,
// without enrollment identifiers. It reports false before an amount is accepted.
func (f *Flow) Draft() (*models.PaymentSession, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheme == nil || f.chit == nil || !f.amount.IsPositive() {
		return nil, false
	}
	return &models.PaymentSession{
		UserID:    f.user.ID,
		SchemeID:  f.scheme.ID,
		ChitID:    f.chit.ID,
		Amount:    f.amount,
		Frequency: f.chit.Frequency,
		UserName:  f.user.Name,
		Email:     f.user.Email,
		Phone:     f.user.Phone,
		Source:    f.source,
	}, true
}

// Accepts reports whether s was built for the flow's current selection.
func (f *Flow) Accepts(s *models.PaymentSession) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acceptsLocked(s)
}

func (f *Flow) acceptsLocked(s *models.PaymentSession) bool {
	if s == nil || f.scheme == nil || s.SchemeID != f.scheme.ID || s.UserID != f.user.ID {
		return false
	}
	return f.chit == nil || s.ChitID == f.chit.ID
}

func (f *Flow) resetLocked() {
	f.gen++
	f.phase = PhaseBrowsing
	f.path = ""
	f.scheme = nil
	f.chit = nil
	f.limit = nil
	f.limitSource = ""
	f.amount = decimal.Zero
	f.branchID = ""
	f.session = nil
	f.redirect = nil
	f.decision = nil
	f.lastErr = nil
	f.awaitingKYC = false
}

// currentLocked reports whether work started at gen may still write to f.
func (f *Flow) currentLocked(gen int) error {
	if f.closed {
		return ErrClosed
	}
	if f.gen != gen {
		return ErrInvalidTransition
	}
	return nil
}
