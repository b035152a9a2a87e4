package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hperssn/sages/internal/domain"
)

var (
	ErrSessionNotCompleted = errors.New("session not completed")
	ErrSubmitInFlight      = errors.New("submission already in flight")
)

// Submitter persists a completion record and returns the stored copy.
type Submitter interface {
	SubmitSession(ctx context.Context, rec *domain.CompletionRecord) (*domain.CompletionRecord, error)
}

type SubmitterFunc func(ctx context.Context, rec *domain.CompletionRecord) (*domain.CompletionRecord, error)

func (f SubmitterFunc) SubmitSession(ctx context.Context, rec *domain.CompletionRecord) (*domain.CompletionRecord, error) {
	return f(ctx, rec)
}

// Recorder collects the end-of-session reflection and submits it once.
type Recorder struct {
	mu sync.Mutex

	store      *Store
	retreatID  int64
	submitter  Submitter
	onComplete func(*domain.CompletionRecord)
	log        *zap.Logger

	// reused across retries so a write that landed before a network error
	// is not duplicated
	recordID string
	notes    string
	rating   *int
	inFlight bool
	record   *domain.CompletionRecord
}

func NewRecorder(store *Store, retreatID int64, submitter Submitter, onComplete func(*domain.CompletionRecord), logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:      store,
		retreatID:  retreatID,
		submitter:  submitter,
		onComplete: onComplete,
		log:        logger,
		recordID:   uuid.New().String(),
	}
}

func (r *Recorder) SetReflection(notes string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = notes
}

func (r *Recorder) Reflection() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notes
}

func (r *Recorder) SetRating(rating int) error {
	if rating < domain.MinRating || rating > domain.MaxRating {
		return domain.ErrInvalidRating
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rating = &rating
	return nil
}

func (r *Recorder) ClearRating() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rating = nil
}

// Submitted returns the stored record, or nil before a successful submit.
func (r *Recorder) Submitted() *domain.CompletionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record
}

// Submit sends the completion record. It requires a completed session and
// succeeds at most once; later calls return the stored record. On failure
// the typed reflection is kept and Submit may be called again.
func (r *Recorder) Submit(ctx context.Context) (*domain.CompletionRecord, error) {
	r.mu.Lock()
	if r.record != nil {
		rec := r.record
		r.mu.Unlock()
		return rec, nil
	}
	if !r.store.Get().IsCompleted {
		r.mu.Unlock()
		return nil, ErrSessionNotCompleted
	}
	if r.inFlight {
		r.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	r.inFlight = true
	rec := r.buildRecord()
	r.mu.Unlock()

	stored, err := r.submitter.SubmitSession(ctx, rec)

	r.mu.Lock()
	r.inFlight = false
	if err != nil {
		r.mu.Unlock()
		r.log.Warn("completion submit failed", zap.Int64("retreat_id", r.retreatID), zap.Error(err))
		var subErr *domain.SubmissionError
		if errors.As(err, &subErr) {
			return nil, err
		}
		return nil, &domain.SubmissionError{RetreatID: r.retreatID, Err: err}
	}
	if stored == nil {
		stored = rec
	}
	r.record = stored
	r.mu.Unlock()

	r.log.Info("completion recorded", zap.Int64("retreat_id", r.retreatID), zap.String("record_id", stored.ID))
	if r.onComplete != nil {
		r.onComplete(stored)
	}
	return stored, nil
}

func (r *Recorder) buildRecord() *domain.CompletionRecord {
	rec := &domain.CompletionRecord{
		ID:          r.recordID,
		RetreatID:   r.retreatID,
		CompletedAt: time.Now().UTC(),
	}
	if strings.TrimSpace(r.notes) != "" {
		notes := r.notes
		rec.ReflectionNotes = &notes
	}
	if r.rating != nil {
		rating := *r.rating
		rec.Rating = &rating
	}
	return rec
}
