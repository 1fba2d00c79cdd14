package tele

import (
	"time"

	"github.com/temoto/wxlink/helpers/atomic_clock"
)

// retryTimer is single deadline. Zero value fires immediately.
type retryTimer struct{ deadline atomic_clock.Clock }

func (t *retryTimer) Fire() { t.deadline.Reset() }

func (t *retryTimer) Arm(now int64, d time.Duration) { t.deadline.Set(now + int64(d)) }

func (t *retryTimer) Expired(now int64) bool { return t.deadline.Reached(now) }
