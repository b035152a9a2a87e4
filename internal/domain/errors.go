package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRetreatNotFound = errors.New("retreat not found")
	ErrInvalidRetreat  = errors.New("invalid retreat")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrInvalidRecordID = errors.New("invalid completion record id")

	// ErrRecordConflict means the record id is already taken by another
	// user's or another retreat's completion.
	ErrRecordConflict = errors.New("completion record id already in use")
)

// LoadError reports a failed retreat fetch. The player shows it as an
// empty "not found" state.
type LoadError struct {
	RetreatID int64
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load retreat %d: %v", e.RetreatID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsNotFound tells a missing retreat apart from a transport failure.
func (e *LoadError) IsNotFound() bool {
	return errors.Is(e.Err, ErrRetreatNotFound)
}

// SubmissionError reports a failed completion write. No record exists
// after it and the caller may resubmit.
type SubmissionError struct {
	RetreatID int64
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit session for retreat %d: %v", e.RetreatID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
