package limiter

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/layer-3/gatekeeper/core"
	"go.uber.org/zap"
)

const defaultSweepInterval = time.Minute

// SlidingWindow counts attempts per key over a trailing window. Each key
// has its own lock, so check-then-record is atomic per key while distinct
// keys proceed in parallel.
type SlidingWindow struct {
	mu      sync.Mutex
	windows map[string]*window

	now           func() time.Time
	sweepInterval time.Duration
	logger        *zap.Logger
}

type window struct {
	mu       sync.Mutex
	attempts []time.Time
	span     time.Duration
	evicted  bool
}

func NewSlidingWindow(logger *zap.Logger) *SlidingWindow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlidingWindow{
		windows:       make(map[string]*window),
		now:           time.Now,
		sweepInterval: defaultSweepInterval,
		logger:        logger,
	}
}

// WithClock replaces the time source, mainly for tests.
func (l *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	l.now = now
	return l
}

func (l *SlidingWindow) WithSweepInterval(d time.Duration) *SlidingWindow {
	if d > 0 {
		l.sweepInterval = d
	}
	return l
}

// Check records an attempt for key, or rejects it with *core.RateLimitError
// when max attempts already happened within the window. Rejected attempts
// are not recorded.
func (l *SlidingWindow) Check(ctx context.Context, key string, span time.Duration, max int) error {
	if span <= 0 || max <= 0 {
		return fmt.Errorf("invalid rate limit window %s with max %d", span, max)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for {
		w := l.window(key)
		w.mu.Lock()
		if w.evicted {
			// lost a race with the sweeper, take the replacement
			w.mu.Unlock()
			continue
		}
		err := l.checkLocked(w, span, max)
		w.mu.Unlock()
		return err
	}
}

func (l *SlidingWindow) checkLocked(w *window, span time.Duration, max int) error {
	now := l.now()
	w.attempts = trim(w.attempts, now.Add(-span))
	if span > w.span {
		w.span = span
	}

	if len(w.attempts) >= max {
		retry := w.attempts[0].Add(span).Sub(now)
		retryAfter := int(math.Ceil(retry.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return &core.RateLimitError{RetryAfter: retryAfter}
	}

	w.attempts = append(w.attempts, now)
	return nil
}

func (l *SlidingWindow) window(key string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &window{}
		l.windows[key] = w
	}
	return w
}

// trim drops attempts at or before cutoff. Attempts are kept in order.
func trim(attempts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(attempts) && !attempts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return attempts
	}
	return append(attempts[:0], attempts[i:]...)
}

// Sweep evicts keys whose attempts have all left their window.
func (l *SlidingWindow) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for key, w := range l.windows {
		w.mu.Lock()
		w.attempts = trim(w.attempts, now.Add(-w.span))
		if len(w.attempts) == 0 {
			w.evicted = true
			delete(l.windows, key)
			evicted++
		}
		w.mu.Unlock()
	}
	return evicted
}

// Len reports the number of tracked keys.
func (l *SlidingWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Run sweeps idle keys until ctx is done.
func (l *SlidingWindow) Run(ctx context.Context) {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.Debug("rate limiter swept idle keys", zap.Int("evicted", n))
			}
		}
	}
}
