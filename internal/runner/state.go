package runner

import (
	"sync"

	"github.com/hperssn/sages/internal/domain"
)

// SessionState is an immutable snapshot of one playback.
type SessionState struct {
	PlayID           string      `json:"playId"`
	RetreatID        int64       `json:"retreatId"`
	CurrentStepIndex int         `json:"currentStepIndex"`
	TotalSteps       int         `json:"totalSteps"`
	TimeRemaining    int         `json:"timeRemaining"`
	IsPlaying        bool        `json:"isPlaying"`
	IsCompleted      bool        `json:"isCompleted"`
	Progress         int         `json:"progress"`
	Timer            TimerState  `json:"timer"`
	Step             domain.Step `json:"step"`
}

// Store holds the latest SessionState and fans it out to subscribers.
// Subscribers run on the publishing goroutine and must not call back into
// Subscribe or the returned unsubscribe func.
type Store struct {
	mu    sync.RWMutex
	state SessionState

	subMu  sync.Mutex
	subs   map[int]func(SessionState)
	nextID int
}

func NewStore(initial SessionState) *Store {
	return &Store{
		state: initial,
		subs:  make(map[int]func(SessionState)),
	}
}

func (s *Store) Get() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn and immediately hands it the current state. Once
// the returned func has returned, fn is not running and will not be called
// again.
func (s *Store) Subscribe(fn func(SessionState)) func() {
	s.subMu.Lock()
	fn(s.Get())
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) set(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, fn := range s.subs {
		fn(st)
	}
}
