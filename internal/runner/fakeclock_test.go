package runner_test

import (
	"sync"
	"time"

	"github.com/hperssn/sages/internal/runner"
)

type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (c *fakeClock) NewTicker(time.Duration) runner.Ticker {
	t := &fakeTicker{c: make(chan time.Time), stopped: make(chan struct{})}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

// Tick delivers one tick to the newest live ticker. It returns false when
// no ticker is running.
func (c *fakeClock) Tick() bool {
	c.mu.Lock()
	var live *fakeTicker
	for i := len(c.tickers) - 1; i >= 0; i-- {
		if !c.tickers[i].isStopped() {
			live = c.tickers[i]
			break
		}
	}
	c.mu.Unlock()

	if live == nil {
		return false
	}
	select {
	case live.c <- time.Now():
		return true
	case <-live.stopped:
		return false
	}
}

type fakeTicker struct {
	c        chan time.Time
	stopped  chan struct{}
	stopOnce sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
}

func (t *fakeTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}
