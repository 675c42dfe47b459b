// Package eligibility gates the expedited join path on the user's KYC status.
package eligibility

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the tri-state compliance status.
type State int

const (
	Unknown State = iota
	Eligible
	Ineligible
)

func (s State) String() string {
	switch s {
	case Eligible:
		return "true"
	case Ineligible:
		return "false"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as "unknown", "true" or "false".
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the form written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "true":
		*s = Eligible
	case "false":
		*s = Ineligible
	default:
		*s = Unknown
	}
	return nil
}

// Option is a choice offered when the expedited path is blocked.
type Option string

const (
	OptionCancel      Option = "cancel"
	OptionCompleteKYC Option = "complete_kyc"
)

// Decision is the outcome of evaluating the gate for an expedited join.
type Decision struct {
	Allowed bool     `json:"allowed"`
	State   State    `json:"state"`
	Options []Option `json:"options,omitempty"`
	// Optimistic is set when the join proceeds with the status still unknown;
	// the server-side enrollment is expected to re-validate.
	Optimistic bool `json:"optimistic,omitempty"`
}

// StatusFetcher queries the upstream compliance status.
type StatusFetcher interface {
	FetchKYCStatus(ctx context.Context, userID string) (bool, error)
}

type entry struct {
	state State
	done  chan struct{}
}

// Gate caches per-user compliance state and coalesces in-flight checks
type Gate struct {
	fetcher      StatusFetcher
	grace        time.Duration
	fetchTimeout time.Duration
	log          *logrus.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewGate initializes an eligibility gate
func NewGate(fetcher StatusFetcher, grace time.Duration, log *logrus.Logger) *Gate {
	return &Gate{
		fetcher:      fetcher,
		grace:        grace,
		fetchTimeout: 10 * time.Second,
		log:          log,
		entries:      make(map[string]*entry),
	}
}

// Status returns the last known state without querying upstream.
func (g *Gate) Status(userID string) State {
	if userID == "" {
		return Ineligible
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[userID]; ok {
		return e.state
	}
	return Unknown
}

// Start begins a background status check, joining one already in flight.
func (g *Gate) Start(userID string) {
	if userID == "" {
		return
	}
	g.begin(userID)
}

// Check queries the status and waits for the answer or ctx. A missing user is
// Ineligible without a network call; an upstream failure leaves the state Unknown.
func (g *Gate) Check(ctx context.Context, userID string) State {
	if userID == "" {
		return Ineligible
	}
	done := g.begin(userID)
	select {
	case <-done:
	case <-ctx.Done():
	}
	return g.Status(userID)
}

// Evaluate decides whether an expedited join may proceed. An Unknown state is
// given one grace period to resolve before the join proceeds optimistically.
// A ctx that ends during the wait yields a refusal with the state Unknown.
func (g *Gate) Evaluate(ctx context.Context, userID string) Decision {
	state := g.Status(userID)
	if state == Unknown {
		done := g.begin(userID)
		t := time.NewTimer(g.grace)
		select {
		case <-done:
		case <-t.C:
		case <-ctx.Done():
		}
		t.Stop()
		state = g.Status(userID)
		if state == Unknown && ctx.Err() != nil {
			return Decision{Allowed: false, State: Unknown}
		}
	}

	switch state {
	case Eligible:
		return Decision{Allowed: true, State: state}
	case Ineligible:
		return Decision{Allowed: false, State: state, Options: []Option{OptionCancel, OptionCompleteKYC}}
	default:
		g.log.WithField("user_id", userID).Warn("KYC status still unknown, proceeding optimistically")
		return Decision{Allowed: true, State: state, Optimistic: true}
	}
}

// Forget drops the cached state so the next check goes upstream.
func (g *Gate) Forget(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[userID]; ok && e.done == nil {
		delete(g.entries, userID)
	}
}

// begin returns a channel closed when the current check for userID finishes.
// A known state is kept while a refresh is in flight.
func (g *Gate) begin(userID string) <-chan struct{} {
	g.mu.Lock()
	e, ok := g.entries[userID]
	if !ok {
		e = &entry{state: Unknown}
		g.entries[userID] = e
	}
	if e.done != nil {
		done := e.done
		g.mu.Unlock()
		return done
	}
	done := make(chan struct{})
	e.done = done
	g.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.fetchTimeout)
		defer cancel()
		ok, err := g.fetcher.FetchKYCStatus(ctx, userID)

		g.mu.Lock()
		if err != nil {
			g.log.WithError(err).WithField("user_id", userID).Warn("KYC status check failed")
		} else if ok {
			e.state = Eligible
		} else {
			e.state = Ineligible
		}
		e.done = nil
		g.mu.Unlock()
		close(done)
	}()
	return done
}
