// Package selection tracks which tab a browsing user has active and keeps it
// consistent across catalog refreshes and deep links.
package selection

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Dan9191/scheme-service/internal/classify"
)

// ErrUnknownTab is returned when a picked tab is not in the classified set.
var ErrUnknownTab = errors.New("unknown tab")

// State is the per-viewer tab selection.
type State struct {
	mu     sync.Mutex
	active string
	// manual is set once the user taps a tab and cleared by the next external target.
	manual bool
	target string
}

// NewState returns an empty selection.
func NewState() *State {
	return &State{}
}

// Reconcile recomputes the active tab for tabs. A caller-supplied target wins
// when it exists and the user has not picked a tab manually; otherwise the
// current tab is kept when still present, else the first tab is adopted.
func (s *State) Reconcile(tabs []classify.TabBucket, target string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcileLocked(tabs, target)
}

// RequestTarget records an external target-tab request (a deep link), clearing
// the manual latch, and reconciles against tabs.
func (s *State) RequestTarget(tabs []classify.TabBucket, target string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manual = false
	s.target = target
	return s.reconcileLocked(tabs, target)
}

// Pick applies a manual tab tap.
func (s *State) Pick(tabs []classify.TabBucket, tab string) (string, error) {
	label, ok := canonical(tabs, tab)
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownTab, tab)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = label
	s.manual = true
	return label, nil
}

// Refresh reconciles after a catalog change using the last external target.
func (s *State) Refresh(tabs []classify.TabBucket) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcileLocked(tabs, s.target)
}

// Active returns the active tab label, empty when no tabs exist.
func (s *State) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Manual reports whether the user has picked a tab since the last external target.
func (s *State) Manual() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manual
}

func (s *State) reconcileLocked(tabs []classify.TabBucket, target string) string {
	if target != "" && !s.manual {
		if label, ok := canonical(tabs, target); ok {
			s.active = label
			return s.active
		}
	}
	if label, ok := canonical(tabs, s.active); ok && s.active != "" {
		s.active = label
		return s.active
	}
	if len(tabs) > 0 {
		s.active = tabs[0].Label
	} else {
		s.active = ""
	}
	return s.active
}

func canonical(tabs []classify.TabBucket, tab string) (string, bool) {
	n := classify.Normalize(tab)
	for _, t := range tabs {
		if classify.Normalize(t.Label) == n {
			return t.Label, true
		}
	}
	return "", false
}
