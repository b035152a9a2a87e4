package runner

type TimerState string

const (
	TimerIdle    TimerState = "idle"
	TimerRunning TimerState = "running"
	TimerPaused  TimerState = "paused"
	TimerExpired TimerState = "expired"
)

// Timer is the per-step countdown. It holds no goroutines; the session
// loop calls Tick once per second while it is running.
type Timer struct {
	state     TimerState
	remaining int
}

func NewTimer() *Timer {
	return &Timer{state: TimerIdle}
}

// Load puts the timer back to Idle showing the full duration of a step.
func (t *Timer) Load(durationSeconds int) {
	t.state = TimerIdle
	t.remaining = max(durationSeconds, 0)
}

// Start always counts from the full duration. There is no resume from a
// paused remainder.
func (t *Timer) Start(durationSeconds int) bool {
	if durationSeconds <= 0 {
		return false
	}
	t.state = TimerRunning
	t.remaining = durationSeconds
	return true
}

// Pause is only valid while running.
func (t *Timer) Pause() bool {
	if t.state != TimerRunning {
		return false
	}
	t.state = TimerPaused
	return true
}

// Tick reports true on the tick that takes the timer to zero.
func (t *Timer) Tick() bool {
	if t.state != TimerRunning {
		return false
	}
	if t.remaining > 0 {
		t.remaining--
	}
	if t.remaining == 0 {
		t.state = TimerExpired
		return true
	}
	return false
}

func (t *Timer) State() TimerState { return t.state }

func (t *Timer) Remaining() int { return t.remaining }

func (t *Timer) Running() bool { return t.state == TimerRunning }
