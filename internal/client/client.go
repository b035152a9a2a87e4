// Package client talks to the retreat backend on behalf of a player.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/hperssn/sages/internal/domain"
)

type RetreatSummary struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	StepCount     int    `json:"stepCount"`
	TotalDuration int    `json:"totalDurationSeconds"`
}

type Client struct {
	baseURL    string
	user       string
	http       *http.Client
	newBackOff func() backoff.BackOff
	log        *zap.Logger
}

type Option func(*Client)

// WithUser sets the identity header a trusted proxy would normally add.
func WithUser(user string) Option {
	return func(c *Client) { c.user = user }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = fn }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxElapsedTime = 15 * time.Second
			return backoff.WithMaxRetries(b, 5)
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx reply from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Message)
}

// GetRetreat fetches one retreat. Failures come back as *domain.LoadError.
func (c *Client) GetRetreat(ctx context.Context, id int64) (*domain.Retreat, error) {
	var rt domain.Retreat
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/retreats/%d", id), nil, &rt)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			err = domain.ErrRetreatNotFound
		}
		return nil, &domain.LoadError{RetreatID: id, Err: err}
	}
	return &rt, nil
}

func (c *Client) ListRetreats(ctx context.Context) ([]RetreatSummary, error) {
	var out []RetreatSummary
	if err := c.call(ctx, http.MethodGet, "/api/retreats", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitSession sends a completion record. The record id makes retries
// safe: the backend keeps the first write. Failures come back as
// *domain.SubmissionError.
func (c *Client) SubmitSession(ctx context.Context, rec *domain.CompletionRecord) (*domain.CompletionRecord, error) {
	req := struct {
		ID              string  `json:"id,omitempty"`
		RetreatID       int64   `json:"retreatId"`
		ReflectionNotes *string `json:"reflectionNotes,omitempty"`
		Rating          *int    `json:"rating,omitempty"`
	}{rec.ID, rec.RetreatID, rec.ReflectionNotes, rec.Rating}

	var resp struct {
		Success bool                     `json:"success"`
		Record  *domain.CompletionRecord `json:"record"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/sessions", req, &resp); err != nil {
		return nil, &domain.SubmissionError{RetreatID: rec.RetreatID, Err: err}
	}
	if !resp.Success || resp.Record == nil {
		return nil, &domain.SubmissionError{RetreatID: rec.RetreatID, Err: errors.New("backend did not confirm the write")}
	}
	return resp.Record, nil
}

// call retries transport errors and 5xx replies; 4xx replies are final.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}

	attempt := 0
	op := func() error {
		attempt++
		err := c.once(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 {
			return backoff.Permanent(err)
		}
		c.log.Debug("backend call failed", zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))
		return err
	}

	return backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx))
}

func (c *Client) once(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return backoff.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set("X-Auth-User", c.user)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if json.Unmarshal(data, &env) != nil || env.Error == "" {
			env.Error = strings.TrimSpace(string(data))
		}
		return &StatusError{Code: resp.StatusCode, Message: env.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
