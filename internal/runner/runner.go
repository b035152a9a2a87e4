package runner

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hperssn/sages/internal/domain"
)

const tickInterval = time.Second

var ErrRunnerStopped = errors.New("session runner stopped")

type Options struct {
	// AutoPlay starts the countdown of every timed step as soon as it is
	// entered.
	AutoPlay bool
	Clock    Clock
	Logger   *zap.Logger
}

type commandKind int

const (
	cmdSnapshot commandKind = iota
	cmdPlay
	cmdPause
	cmdNext
)

type command struct {
	kind  commandKind
	reply chan SessionState
}

// SessionRunner plays one retreat. All session state is owned by a single
// loop goroutine; callers talk to it through commands and read snapshots
// from the Store.
type SessionRunner struct {
	id      string
	retreat *domain.Retreat
	opts    Options
	log     *zap.Logger

	store *Store
	cmds  chan command
	quit  chan struct{}
	done  chan struct{}

	stopOnce     sync.Once
	lastActivity atomic.Int64

	// loop-owned
	seq    *Sequencer
	timer  *Timer
	ticker Ticker
	// step index waiting for the post-expiry auto-advance, -1 if none
	graceStep int
}

func NewSessionRunner(id string, retreat *domain.Retreat, opts Options) (*SessionRunner, error) {
	if err := retreat.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := &SessionRunner{
		id:        id,
		retreat:   retreat.Clone(),
		opts:      opts,
		log:       opts.Logger.With(zap.String("play_id", id), zap.Int64("retreat_id", retreat.ID)),
		cmds:      make(chan command),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		seq:       NewSequencer(len(retreat.Steps)),
		timer:     NewTimer(),
		graceStep: -1,
	}
	r.seq.Start()
	r.enterStep()
	if opts.AutoPlay {
		r.play()
	}
	r.store = NewStore(r.snapshot())
	r.touch()

	go r.loop()

	return r, nil
}

func (r *SessionRunner) ID() string { return r.id }

func (r *SessionRunner) Retreat() *domain.Retreat { return r.retreat.Clone() }

func (r *SessionRunner) Store() *Store { return r.store }

func (r *SessionRunner) Done() <-chan struct{} { return r.done }

func (r *SessionRunner) LastActivity() time.Time {
	return time.Unix(0, r.lastActivity.Load())
}

// Play starts the current step's countdown from its full duration. It is a
// no-op on untimed steps, on a running timer and after completion.
func (r *SessionRunner) Play() (SessionState, error) { return r.send(cmdPlay) }

func (r *SessionRunner) Pause() (SessionState, error) { return r.send(cmdPause) }

func (r *SessionRunner) Next() (SessionState, error) { return r.send(cmdNext) }

// Snapshot returns the state after every previously delivered command and
// tick has been applied.
func (r *SessionRunner) Snapshot() (SessionState, error) { return r.send(cmdSnapshot) }

// Stop tears the session down. The countdown is discarded.
func (r *SessionRunner) Stop() {
	r.stopOnce.Do(func() {
		close(r.quit)
	})
	<-r.done
}

// Watch streams snapshots until quit closes or the runner stops, starting
// with the current state. Slow readers skip intermediate snapshots but
// always see the latest one.
func (r *SessionRunner) Watch(quit <-chan struct{}) <-chan SessionState {
	out := make(chan SessionState, 1)
	latest := make(chan SessionState, 1)

	push := func(st SessionState) {
		select {
		case latest <- st:
		default:
			select {
			case <-latest:
			default:
			}
			latest <- st
		}
	}

	unsubscribe := r.store.Subscribe(push)

	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case st := <-latest:
				select {
				case out <- st:
				case <-quit:
					return
				}
			case <-quit:
				return
			case <-r.done:
				select {
				case st := <-latest:
					select {
					case out <- st:
					case <-quit:
					}
				default:
				}
				return
			}
		}
	}()

	return out
}

func (r *SessionRunner) send(kind commandKind) (SessionState, error) {
	c := command{kind: kind, reply: make(chan SessionState, 1)}
	select {
	case r.cmds <- c:
	case <-r.done:
		return r.store.Get(), ErrRunnerStopped
	}
	return <-c.reply, nil
}

func (r *SessionRunner) loop() {
	defer close(r.done)
	defer r.stopTicker()

	for {
		select {
		case c := <-r.cmds:
			r.handle(c)
		case <-r.tickC():
			r.onTick()
		case <-r.quit:
			r.log.Debug("session runner stopped", zap.Int("step", r.seq.Index()))
			return
		}
	}
}

func (r *SessionRunner) handle(c command) {
	changed := false
	switch c.kind {
	case cmdPlay:
		changed = r.play()
		r.touch()
	case cmdPause:
		if r.timer.Pause() {
			r.stopTicker()
			changed = true
			r.log.Debug("step paused", zap.Int("step", r.seq.Index()), zap.Int("remaining", r.timer.Remaining()))
		}
		r.touch()
	case cmdNext:
		changed = r.advance()
		r.touch()
	}

	st := r.snapshot()
	if changed {
		r.store.set(st)
	}
	c.reply <- st
}

func (r *SessionRunner) play() bool {
	if r.seq.Completed() || r.timer.Running() {
		return false
	}
	step := r.currentStep()
	if !r.timer.Start(step.DurationSeconds) {
		return false
	}
	r.graceStep = -1
	r.startTicker()
	r.log.Debug("step playing", zap.Int("step", r.seq.Index()), zap.Int("duration", step.DurationSeconds))
	return true
}

func (r *SessionRunner) onTick() {
	if r.graceStep >= 0 {
		if r.graceStep == r.seq.Index() && r.timer.State() == TimerExpired {
			r.log.Debug("auto-advancing after expiry", zap.Int("step", r.graceStep))
			r.advance()
		} else {
			r.graceStep = -1
			r.stopTicker()
		}
		r.store.set(r.snapshot())
		return
	}

	if !r.timer.Running() {
		r.stopTicker()
		return
	}
	if r.timer.Tick() {
		r.graceStep = r.seq.Index()
	}
	r.touch()
	r.store.set(r.snapshot())
}

func (r *SessionRunner) advance() bool {
	if !r.seq.Next() {
		return false
	}
	r.graceStep = -1
	r.stopTicker()

	if r.seq.Completed() {
		r.timer.Load(0)
		r.log.Info("session completed", zap.Int("steps", r.seq.Total()))
		return true
	}

	r.enterStep()
	if r.opts.AutoPlay {
		r.play()
	}
	return true
}

func (r *SessionRunner) enterStep() {
	r.timer.Load(r.currentStep().DurationSeconds)
}

func (r *SessionRunner) currentStep() domain.Step {
	return r.retreat.Steps[r.seq.Index()]
}

func (r *SessionRunner) snapshot() SessionState {
	return SessionState{
		PlayID:           r.id,
		RetreatID:        r.retreat.ID,
		CurrentStepIndex: r.seq.Index(),
		TotalSteps:       r.seq.Total(),
		TimeRemaining:    r.timer.Remaining(),
		IsPlaying:        r.timer.Running(),
		IsCompleted:      r.seq.Completed(),
		Progress:         r.seq.Progress(),
		Timer:            r.timer.State(),
		Step:             r.currentStep(),
	}
}

func (r *SessionRunner) startTicker() {
	r.stopTicker()
	r.ticker = r.opts.Clock.NewTicker(tickInterval)
}

func (r *SessionRunner) stopTicker() {
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
}

func (r *SessionRunner) tickC() <-chan time.Time {
	if r.ticker == nil {
		return nil
	}
	return r.ticker.C()
}

func (r *SessionRunner) touch() {
	r.lastActivity.Store(time.Now().UnixNano())
}
