package selection

import (
	"context"
	"errors"
	"time"

	"github.com/Dan9191/scheme-service/internal/classify"
)

// EstimatedRowHeight is the assumed height of one bucket row before layout is measured.
const EstimatedRowHeight = 220.0

// RetryDelay is how long Highlight waits before retrying an index scroll.
const RetryDelay = 150 * time.Millisecond

// ErrNotInBucket is returned when the deep-linked scheme is not in the active bucket.
var ErrNotInBucket = errors.New("scheme not in bucket")

// Scroller is the list view the highlight is applied to.
type Scroller interface {
	ScrollToIndex(index int) error
	ScrollToOffset(offset float64) error
}

// ScrollPlan locates a scheme inside a bucket.
type ScrollPlan struct {
	SchemeID string  `json:"scheme_id"`
	Index    int     `json:"index"`
	Offset   float64 `json:"estimated_offset"`
}

// Plan returns where schemeID sits in bucket.
func Plan(bucket []classify.BucketEntry, schemeID string) (ScrollPlan, error) {
	idx := classify.IndexOf(bucket, schemeID)
	if idx < 0 {
		return ScrollPlan{}, ErrNotInBucket
	}
	return ScrollPlan{SchemeID: schemeID, Index: idx, Offset: float64(idx) * EstimatedRowHeight}, nil
}

// Highlight scrolls to schemeID. When the list cannot scroll by index yet it
// jumps to the estimated offset and retries the index scroll once after RetryDelay.
func Highlight(ctx context.Context, scroller Scroller, bucket []classify.BucketEntry, schemeID string) (ScrollPlan, error) {
	plan, err := Plan(bucket, schemeID)
	if err != nil {
		return plan, err
	}
	if err := scroller.ScrollToIndex(plan.Index); err == nil {
		return plan, nil
	}
	if err := scroller.ScrollToOffset(plan.Offset); err != nil {
		return plan, err
	}

	t := time.NewTimer(RetryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return plan, ctx.Err()
	case <-t.C:
	}
	// the offset jump already landed close by, a second failure is not reported
	_ = scroller.ScrollToIndex(plan.Index)
	return plan, nil
}
