package runner

import "math"

// Sequencer walks a fixed number of steps forward only.
type Sequencer struct {
	total     int
	index     int
	completed bool
}

func NewSequencer(total int) *Sequencer {
	return &Sequencer{total: total}
}

func (s *Sequencer) Start() {
	s.index = 0
	s.completed = false
}

// Next advances one step, or completes the session on the last step.
// Once completed it does nothing and returns false.
func (s *Sequencer) Next() bool {
	if s.completed {
		return false
	}
	if s.index < s.total-1 {
		s.index++
		return true
	}
	s.completed = true
	return true
}

// Progress is the percentage of steps reached, counting the current one.
func (s *Sequencer) Progress() int {
	if s.total == 0 {
		return 0
	}
	return int(math.Round(float64(s.index+1) / float64(s.total) * 100))
}

func (s *Sequencer) Index() int { return s.index }

func (s *Sequencer) Total() int { return s.total }

func (s *Sequencer) Completed() bool { return s.completed }
