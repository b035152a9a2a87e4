package domain

import "fmt"

type StepType string

const (
	StepGrounding   StepType = "grounding"
	StepExploration StepType = "exploration"
	StepIntegration StepType = "integration"
)

func (t StepType) Valid() bool {
	switch t {
	case StepGrounding, StepExploration, StepIntegration:
		return true
	}
	return false
}

// Step is one guided stage of a retreat. A zero DurationSeconds means the
// step is untimed and only advances on an explicit next.
type Step struct {
	Type            StepType `json:"type" yaml:"type"`
	Title           string   `json:"title" yaml:"title"`
	Content         string   `json:"content" yaml:"content"`
	DurationSeconds int      `json:"durationSeconds,omitempty" yaml:"durationSeconds,omitempty"`
}

func (s Step) Timed() bool {
	return s.DurationSeconds > 0
}

func (s Step) validate(idx int) error {
	if !s.Type.Valid() {
		return fmt.Errorf("%w: step %d has unknown type %q", ErrInvalidRetreat, idx, s.Type)
	}
	if s.Title == "" {
		return fmt.Errorf("%w: step %d has no title", ErrInvalidRetreat, idx)
	}
	if s.DurationSeconds < 0 {
		return fmt.Errorf("%w: step %d has negative duration", ErrInvalidRetreat, idx)
	}
	return nil
}
