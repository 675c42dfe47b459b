package eligibility

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type fetcherFunc func(ctx context.Context, userID string) (bool, error)

func (f fetcherFunc) FetchKYCStatus(ctx context.Context, userID string) (bool, error) {
	return f(ctx, userID)
}

func quiet() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestCheck_MissingUserSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	g := NewGate(fetcherFunc(func(ctx context.Context, userID string) (bool, error) {
		calls.Add(1)
		return true, nil
	}), 10*time.Millisecond, quiet())

	assert.Equal(t, Ineligible, g.Check(context.Background(), ""))
	assert.Equal(t, Ineligible, g.Evaluate(context.Background(), "").State)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCheck_States(t *testing.T) {
	g := NewGate(fetcherFunc(func(ctx context.Context, userID string) (bool, error) {
		switch userID {
		case "ok":
			return true, nil
		case "no":
			return false, nil
		}
		return false, errors.New("timeout")
	}), 10*time.Millisecond, quiet())

	assert.Equal(t, Unknown, g.Status("ok"))
	assert.Equal(t, Eligible, g.Check(context.Background(), "ok"))
	assert.Equal(t, Ineligible, g.Check(context.Background(), "no"))
	assert.Equal(t, Unknown, g.Check(context.Background(), "err"))
	assert.Equal(t, "true", g.Status("ok").String())
}

func TestEvaluate_BlockedOffersTwoChoices(t *testing.T) {
	g := NewGate(fetcherFunc(func(ctx context.Context, userID string) (bool, error) {
		return false, nil
	}), 50*time.Millisecond, quiet())

	d := g.Evaluate(context.Background(), "u1")
	assert.False(t, d.Allowed)
	assert.Equal(t, []Option{OptionCancel, OptionCompleteKYC}, d.Options)
}

func TestEvaluate_UnknownProceedsOptimisticallyAfterGrace(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	g := NewGate(fetcherFunc(func(ctx context.Context, userID string) (bool, error) {
		<-release
		return true, nil
	}), 20*time.Millisecond, quiet())

	start := time.Now()
	d := g.Evaluate(context.Background(), "u1")
	assert.True(t, d.Allowed)
	assert.True(t, d.Optimistic)
	assert.Equal(t, Unknown, d.State)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestEvaluate_CancelledDuringGraceRefuses(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	g := NewGate(fetcherFunc(func(ctx context.Context, userID string) (bool, error) {
		<-release
		return true, nil
	}), time.Second, quiet())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	d := g.Evaluate(ctx, "u1")
	assert.False(t, d.Allowed)
	assert.False(t, d.Optimistic)
	assert.Equal(t, Unknown, d.State)
}

func TestEvaluate_ResolvesWithinGrace(t *testing.T) {
	g := NewGate(fetcherFunc(func(ctx context.Context, userID string) (bool, error) {
		time.Sleep(5 * time.Millisecond)
		return true, nil
	}), time.Second, quiet())

	d := g.Evaluate(context.Background(), "u1")
	assert.True(t, d.Allowed)
	assert.False(t, d.Optimistic)
	assert.Equal(t, Eligible, d.State)
}

func TestGate_CoalescesInFlightChecks(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	g := NewGate(fetcherFunc(func(ctx context.Context, userID string) (bool, error) {
		calls.Add(1)
		<-release
		return true, nil
	}), time.Second, quiet())

	g.Start("u1")
	g.Start("u1")
	close(release)
	assert.Equal(t, Eligible, g.Check(context.Background(), "u1"))
	assert.LessOrEqual(t, calls.Load(), int32(2))

	g.Forget("u1")
	assert.Equal(t, Unknown, g.Status("u1"))
}

func TestEvaluate_BlockedForEveryUserWhenIneligible(t *testing.T) {
	g := NewGate(fetcherFunc(func(ctx context.Context, userID string) (bool, error) {
		return false, nil
	}), 50*time.Millisecond, quiet())
	for _, u := range []string{"a", "b", "c"} {
		g.Check(context.Background(), u)
		assert.False(t, g.Evaluate(context.Background(), u).Allowed, u)
	}
}
