package runner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hperssn/sages/internal/domain"
	"github.com/hperssn/sages/internal/runner"
)

func retreatWith(durations ...int) *domain.Retreat {
	types := []domain.StepType{domain.StepGrounding, domain.StepExploration, domain.StepIntegration}
	r := &domain.Retreat{ID: 7, Title: "Test retreat"}
	for i, d := range durations {
		r.Steps = append(r.Steps, domain.Step{
			Type:            types[i%len(types)],
			Title:           "step",
			DurationSeconds: d,
		})
	}
	return r
}

func newRunner(t *testing.T, retreat *domain.Retreat, opts runner.Options) (*runner.SessionRunner, *fakeClock) {
	t.Helper()
	clk := &fakeClock{}
	opts.Clock = clk
	r, err := runner.NewSessionRunner("play-1", retreat, opts)
	require.NoError(t, err)
	t.Cleanup(r.Stop)
	return r, clk
}

func tick(t *testing.T, r *runner.SessionRunner, clk *fakeClock) runner.SessionState {
	t.Helper()
	require.True(t, clk.Tick(), "expected a running ticker")
	st, err := r.Snapshot()
	require.NoError(t, err)
	return st
}

func TestSessionRunner_UntimedStepsComplete(t *testing.T) {
	r, _ := newRunner(t, retreatWith(0, 0, 0), runner.Options{})

	st, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 0, st.CurrentStepIndex)
	assert.Equal(t, 33, st.Progress)

	for i := 0; i < 3; i++ {
		st, err = r.Next()
		require.NoError(t, err)
	}

	assert.True(t, st.IsCompleted)
	assert.Equal(t, 2, st.CurrentStepIndex)
	assert.Equal(t, 100, st.Progress)
}

func TestSessionRunner_NextAfterCompletionKeepsIndex(t *testing.T) {
	r, _ := newRunner(t, retreatWith(0, 0), runner.Options{})

	r.Next()
	st, _ := r.Next()
	require.True(t, st.IsCompleted)

	for i := 0; i < 3; i++ {
		st, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, 1, st.CurrentStepIndex)
		assert.True(t, st.IsCompleted)
	}
}

func TestSessionRunner_ExpiryAutoAdvancesAfterGrace(t *testing.T) {
	r, clk := newRunner(t, retreatWith(5, 0), runner.Options{})

	st, err := r.Play()
	require.NoError(t, err)
	assert.True(t, st.IsPlaying)
	assert.Equal(t, 5, st.TimeRemaining)

	for i := 4; i >= 0; i-- {
		st = tick(t, r, clk)
		assert.Equal(t, i, st.TimeRemaining)
	}
	assert.Equal(t, runner.TimerExpired, st.Timer)
	assert.False(t, st.IsPlaying)
	assert.Equal(t, 0, st.CurrentStepIndex, "advance waits for the grace second")

	st = tick(t, r, clk)
	assert.Equal(t, 1, st.CurrentStepIndex)
	assert.Equal(t, runner.TimerIdle, st.Timer)

	assert.False(t, clk.Tick(), "untimed step must not keep a ticker")
}

func TestSessionRunner_ManualNextDuringGraceCancelsAutoAdvance(t *testing.T) {
	r, clk := newRunner(t, retreatWith(1, 0, 0), runner.Options{})

	r.Play()
	st := tick(t, r, clk)
	require.Equal(t, runner.TimerExpired, st.Timer)

	st, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentStepIndex)

	assert.False(t, clk.Tick())
	st, _ = r.Snapshot()
	assert.Equal(t, 1, st.CurrentStepIndex)
}

func TestSessionRunner_PauseFreezesAndPlayRestarts(t *testing.T) {
	r, clk := newRunner(t, retreatWith(10), runner.Options{})

	r.Play()
	tick(t, r, clk)
	tick(t, r, clk)

	st, err := r.Pause()
	require.NoError(t, err)
	assert.False(t, st.IsPlaying)
	assert.Equal(t, 8, st.TimeRemaining)
	assert.False(t, clk.Tick(), "paused session holds no ticker")

	st, err = r.Play()
	require.NoError(t, err)
	assert.True(t, st.IsPlaying)
	assert.Equal(t, 10, st.TimeRemaining)
}

func TestSessionRunner_PauseAtLastSecondNeverExpires(t *testing.T) {
	r, clk := newRunner(t, retreatWith(2, 0), runner.Options{})

	r.Play()
	tick(t, r, clk)
	st, _ := r.Pause()
	require.Equal(t, 1, st.TimeRemaining)

	assert.False(t, clk.Tick())
	st, _ = r.Snapshot()
	assert.Equal(t, 0, st.CurrentStepIndex)
	assert.Equal(t, runner.TimerPaused, st.Timer)
}

func TestSessionRunner_PlayOnUntimedStepIsNoop(t *testing.T) {
	r, clk := newRunner(t, retreatWith(0, 5), runner.Options{})

	st, err := r.Play()
	require.NoError(t, err)
	assert.False(t, st.IsPlaying)
	assert.Equal(t, runner.TimerIdle, st.Timer)
	assert.False(t, clk.Tick())
}

func TestSessionRunner_AutoPlayStartsTimedSteps(t *testing.T) {
	r, clk := newRunner(t, retreatWith(0, 3), runner.Options{AutoPlay: true})

	st, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentStepIndex)
	assert.True(t, st.IsPlaying)
	assert.Equal(t, 3, st.TimeRemaining)

	tick(t, r, clk)
	tick(t, r, clk)
	st = tick(t, r, clk)
	assert.Equal(t, runner.TimerExpired, st.Timer)

	st = tick(t, r, clk)
	assert.True(t, st.IsCompleted)
	assert.Equal(t, 1, st.CurrentStepIndex)
	assert.Equal(t, 100, st.Progress)
}

func TestSessionRunner_StateInvariants(t *testing.T) {
	r, clk := newRunner(t, retreatWith(2, 0, 3), runner.Options{AutoPlay: true})

	var seen []runner.SessionState
	unsubscribe := r.Store().Subscribe(func(st runner.SessionState) {
		seen = append(seen, st)
	})

	for clk.Tick() {
		r.Snapshot()
	}
	st, _ := r.Snapshot()
	require.Equal(t, 1, st.CurrentStepIndex)

	r.Next()
	for clk.Tick() {
		r.Snapshot()
	}
	unsubscribe()

	require.NotEmpty(t, seen)
	prevProgress := 0
	for _, st := range seen {
		assert.GreaterOrEqual(t, st.CurrentStepIndex, 0)
		assert.Less(t, st.CurrentStepIndex, st.TotalSteps)
		assert.GreaterOrEqual(t, st.TimeRemaining, 0)
		if st.IsPlaying {
			assert.Positive(t, st.Step.DurationSeconds)
			assert.Positive(t, st.TimeRemaining)
		}
		assert.GreaterOrEqual(t, st.Progress, prevProgress)
		prevProgress = st.Progress
	}
	assert.True(t, seen[len(seen)-1].IsCompleted)
}

func TestSessionRunner_StopRejectsCommands(t *testing.T) {
	r, clk := newRunner(t, retreatWith(5), runner.Options{})
	r.Play()

	r.Stop()
	r.Stop()

	_, err := r.Next()
	assert.ErrorIs(t, err, runner.ErrRunnerStopped)
	assert.False(t, clk.Tick(), "stop releases the ticker")

	select {
	case <-r.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
}

func TestSessionRunner_WatchStreamsUntilStop(t *testing.T) {
	r, _ := newRunner(t, retreatWith(0, 0), runner.Options{})

	quit := make(chan struct{})
	defer close(quit)
	states := r.Watch(quit)

	first := <-states
	assert.Equal(t, 0, first.CurrentStepIndex)

	r.Next()
	r.Next()

	var last runner.SessionState
	deadline := time.After(time.Second)
	for !last.IsCompleted {
		select {
		case last = <-states:
		case <-deadline:
			t.Fatal("did not observe completion")
		}
	}

	r.Stop()
	for range states {
	}
}

func TestSessionRunner_RejectsInvalidRetreat(t *testing.T) {
	_, err := runner.NewSessionRunner("x", &domain.Retreat{ID: 1, Title: "empty"}, runner.Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidRetreat)
}
