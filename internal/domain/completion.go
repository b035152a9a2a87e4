package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MinRating = 1
	MaxRating = 5
)

// CompletionRecord is the write-once artifact of a finished session.
// ReflectionNotes and Rating stay nil when the user left them blank.
type CompletionRecord struct {
	ID              string    `json:"id"`
	RetreatID       int64     `json:"retreatId"`
	UserID          string    `json:"userId,omitempty"`
	ReflectionNotes *string   `json:"reflectionNotes,omitempty"`
	Rating          *int      `json:"rating,omitempty"`
	CompletedAt     time.Time `json:"completedAt"`
}

func NewCompletionRecord(retreatID int64, notes *string, rating *int) *CompletionRecord {
	return &CompletionRecord{
		ID:              uuid.New().String(),
		RetreatID:       retreatID,
		ReflectionNotes: notes,
		Rating:          rating,
		CompletedAt:     time.Now().UTC(),
	}
}

func (c *CompletionRecord) Validate() error {
	if c.RetreatID <= 0 {
		return ErrInvalidRetreat
	}
	if c.Rating != nil && (*c.Rating < MinRating || *c.Rating > MaxRating) {
		return ErrInvalidRating
	}
	if c.ID != "" {
		if _, err := uuid.Parse(c.ID); err != nil {
			return ErrInvalidRecordID
		}
	}
	return nil
}

// CompletionStats aggregates a user's completion history.
type CompletionStats struct {
	TotalCompletions int           `json:"totalCompletions"`
	RatedCount       int           `json:"ratedCount"`
	AverageRating    float64       `json:"averageRating"`
	DistinctRetreats int           `json:"distinctRetreats"`
	ByRetreat        map[int64]int `json:"byRetreat"`
}
