package domain

import "fmt"

// Retreat is read-only reference content: an ordered list of guided steps.
// Nothing mutates a Retreat after it has been loaded or seeded.
type Retreat struct {
	ID          int64  `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step `json:"steps" yaml:"steps"`
}

func (r *Retreat) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidRetreat)
	}
	if r.Title == "" {
		return fmt.Errorf("%w: retreat %d has no title", ErrInvalidRetreat, r.ID)
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("%w: retreat %d has no steps", ErrInvalidRetreat, r.ID)
	}
	for i, st := range r.Steps {
		if err := st.validate(i); err != nil {
			return err
		}
	}
	return nil
}

// TotalDuration sums the timed steps, in seconds.
func (r *Retreat) TotalDuration() int {
	total := 0
	for _, st := range r.Steps {
		total += st.DurationSeconds
	}
	return total
}

// Clone returns a deep copy so callers can't alias the step slice.
func (r *Retreat) Clone() *Retreat {
	c := *r
	c.Steps = append([]Step(nil), r.Steps...)
	return &c
}
