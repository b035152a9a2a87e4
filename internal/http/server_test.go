package httpapi_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hperssn/sages/internal/domain"
	httpapi "github.com/hperssn/sages/internal/http"
	"github.com/hperssn/sages/internal/notify"
	"github.com/hperssn/sages/internal/observability"
	"github.com/hperssn/sages/internal/runner"
	"github.com/hperssn/sages/internal/storage"
)

type fixture struct {
	srv      *httptest.Server
	repo     *storage.MemoryRepository
	metrics  *observability.Metrics
	mu       sync.Mutex
	notified []*domain.CompletionRecord
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{repo: storage.NewMemoryRepository()}
	require.NoError(t, f.repo.UpsertRetreat(context.Background(), &domain.Retreat{
		ID:    7,
		Title: "Who Is Asking?",
		Steps: []domain.Step{
			{Type: domain.StepGrounding, Title: "Settle"},
			{Type: domain.StepExploration, Title: "Inquire", DurationSeconds: 240},
			{Type: domain.StepIntegration, Title: "Return"},
		},
	}))

	reg := prometheus.NewRegistry()
	f.metrics = observability.NewMetrics(reg)

	s := httpapi.NewServer(httpapi.Deps{
		Repo:     f.repo,
		Metrics:  f.metrics,
		Gatherer: reg,
		Notifier: notify.Func(func(_ context.Context, rec *domain.CompletionRecord) error {
			f.mu.Lock()
			f.notified = append(f.notified, rec)
			f.mu.Unlock()
			return nil
		}),
	})

	f.srv = httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		f.srv.Close()
		s.Plays().StopAll()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("X-Auth-User", user)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestAPI_RequiresUser(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/api/retreats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_Retreats(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/api/retreats", "ana", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.EqualValues(t, 3, list[0]["stepCount"])
	assert.EqualValues(t, 240, list[0]["totalDurationSeconds"])

	resp, body = f.do(t, http.MethodGet, "/api/retreats/7", "ana", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rt domain.Retreat
	require.NoError(t, json.Unmarshal(body, &rt))
	assert.Equal(t, "Who Is Asking?", rt.Title)
	assert.Len(t, rt.Steps, 3)

	resp, _ = f.do(t, http.MethodGet, "/api/retreats/99", "ana", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/retreats/abc", "ana", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_SubmitSessionWithoutReflection(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/sessions", "ana", map[string]any{"retreatId": 7})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var out struct {
		Success bool                    `json:"success"`
		Record  domain.CompletionRecord `json:"record"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.True(t, out.Success)
	assert.Equal(t, int64(7), out.Record.RetreatID)
	assert.Equal(t, "ana", out.Record.UserID)
	assert.Nil(t, out.Record.ReflectionNotes)
	assert.Nil(t, out.Record.Rating)

	f.mu.Lock()
	assert.Len(t, f.notified, 1)
	f.mu.Unlock()
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CompletionsRecorded))
}

func TestAPI_SubmitSessionIsIdempotentOnID(t *testing.T) {
	f := newFixture(t)
	req := map[string]any{
		"id":              "2f1c0c0e-4f6f-4d7e-9b7e-3d8f7f1a9c21",
		"retreatId":       7,
		"reflectionNotes": "I am not my thoughts.",
		"rating":          5,
	}

	resp, _ := f.do(t, http.MethodPost, "/api/sessions", "ana", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/sessions", "ana", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/sessions", "ana", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []domain.CompletionRecord
	require.NoError(t, json.Unmarshal(body, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "I am not my thoughts.", *records[0].ReflectionNotes)

	f.mu.Lock()
	assert.Len(t, f.notified, 1, "replays are not re-announced")
	f.mu.Unlock()
}

func TestAPI_SubmitSessionRejectsRecordIDOfAnotherUser(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.UpsertRetreat(context.Background(), &domain.Retreat{
		ID:    1,
		Title: "Morning Grounding",
		Steps: []domain.Step{{Type: domain.StepGrounding, Title: "Breathe"}},
	}))
	id := "8d0c7a52-9a55-4a43-b1f4-0c6f6b0f2e11"

	resp, _ := f.do(t, http.MethodPost, "/api/sessions", "ana", map[string]any{
		"id":              id,
		"retreatId":       7,
		"reflectionNotes": "ana private",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/sessions", "mallory", map[string]any{
		"id":        id,
		"retreatId": 7,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotContains(t, string(body), "ana private")
	assert.NotContains(t, string(body), `"success":true`)

	records, err := f.repo.ListCompletionsByUser(context.Background(), "mallory", 0)
	require.NoError(t, err)
	assert.Empty(t, records)

	resp, _ = f.do(t, http.MethodPost, "/api/sessions", "ana", map[string]any{
		"id":        id,
		"retreatId": 1,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "same id for a different retreat")
}

func TestAPI_SubmitSessionValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "rating too high", body: map[string]any{"retreatId": 7, "rating": 6}, want: http.StatusBadRequest},
		{name: "unknown retreat", body: map[string]any{"retreatId": 99}, want: http.StatusNotFound},
		{name: "missing retreat", body: map[string]any{}, want: http.StatusBadRequest},
		{name: "bad id", body: map[string]any{"retreatId": 7, "id": "x"}, want: http.StatusBadRequest},
		{name: "unknown field", body: map[string]any{"retreatId": 7, "mood": "calm"}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/api/sessions", "ana", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, string(body))
		})
	}
}

func TestAPI_SessionStats(t *testing.T) {
	f := newFixture(t)

	for _, rating := range []int{2, 4} {
		resp, _ := f.do(t, http.MethodPost, "/api/sessions", "ben", map[string]any{"retreatId": 7, "rating": rating})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	f.do(t, http.MethodPost, "/api/sessions", "cai", map[string]any{"retreatId": 7})

	resp, body := f.do(t, http.MethodGet, "/api/sessions/stats", "ben", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats domain.CompletionStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 2, stats.TotalCompletions)
	assert.InDelta(t, 3.0, stats.AverageRating, 0.001)
	assert.Equal(t, 1, stats.DistinctRetreats)

	resp, _ = f.do(t, http.MethodGet, "/api/sessions?since=yesterday", "ben", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	since := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	resp, body = f.do(t, http.MethodGet, "/api/sessions?since="+since, "ben", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recent []domain.CompletionRecord
	require.NoError(t, json.Unmarshal(body, &recent))
	assert.Len(t, recent, 2)
}

type completionBody struct {
	Success bool                     `json:"success"`
	Created bool                     `json:"created"`
	Record  *domain.CompletionRecord `json:"record"`
}

type playBody struct {
	State runner.SessionState `json:"state"`
}

func TestAPI_PlayLifecycle(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/retreats/7/plays", "ana", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var started playBody
	require.NoError(t, json.Unmarshal(body, &started))
	playID := started.State.PlayID
	require.NotEmpty(t, playID)
	assert.Equal(t, 33, started.State.Progress)

	resp, _ = f.do(t, http.MethodPost, "/api/plays/"+playID+"/complete", "ana", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "cannot complete mid-session")

	var st playBody
	_, body = f.do(t, http.MethodPost, "/api/plays/"+playID+"/next", "ana", nil)
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, 1, st.State.CurrentStepIndex)
	assert.Equal(t, 240, st.State.TimeRemaining)

	_, body = f.do(t, http.MethodPost, "/api/plays/"+playID+"/play", "ana", nil)
	require.NoError(t, json.Unmarshal(body, &st))
	assert.True(t, st.State.IsPlaying)

	_, body = f.do(t, http.MethodPost, "/api/plays/"+playID+"/pause", "ana", nil)
	require.NoError(t, json.Unmarshal(body, &st))
	assert.False(t, st.State.IsPlaying)

	f.do(t, http.MethodPost, "/api/plays/"+playID+"/next", "ana", nil)
	_, body = f.do(t, http.MethodPost, "/api/plays/"+playID+"/next", "ana", nil)
	require.NoError(t, json.Unmarshal(body, &st))
	assert.True(t, st.State.IsCompleted)
	assert.Equal(t, 2, st.State.CurrentStepIndex)

	resp, body = f.do(t, http.MethodPost, "/api/plays/"+playID+"/complete", "ana",
		map[string]any{"reflectionNotes": "Something loosened.", "rating": 4})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var first completionBody
	require.NoError(t, json.Unmarshal(body, &first))
	assert.True(t, first.Created)

	records, err := f.repo.ListCompletionsByUser(context.Background(), "ana", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 4, *records[0].Rating)

	resp, body = f.do(t, http.MethodPost, "/api/plays/"+playID+"/complete", "ana", map[string]any{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var again completionBody
	require.NoError(t, json.Unmarshal(body, &again))
	assert.False(t, again.Created)
	assert.Equal(t, first.Record.ID, again.Record.ID)
	records, _ = f.repo.ListCompletionsByUser(context.Background(), "ana", 0)
	assert.Len(t, records, 1, "completion is written once")

	resp, _ = f.do(t, http.MethodDelete, "/api/plays/"+playID, "ana", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/api/plays/"+playID, "ana", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_PlaysArePrivateToTheirOwner(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/retreats/7/plays", "ana", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var started playBody
	require.NoError(t, json.Unmarshal(body, &started))
	playID := started.State.PlayID

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/plays/" + playID},
		{http.MethodPost, "/api/plays/" + playID + "/next"},
		{http.MethodPost, "/api/plays/" + playID + "/play"},
		{http.MethodPost, "/api/plays/" + playID + "/complete"},
		{http.MethodGet, "/api/plays/" + playID + "/events"},
		{http.MethodDelete, "/api/plays/" + playID},
	} {
		resp, _ := f.do(t, tc.method, tc.path, "mallory", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", tc.method, tc.path)
	}

	resp, body = f.do(t, http.MethodGet, "/api/plays/"+playID, "ana", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st playBody
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, 0, st.State.CurrentStepIndex, "foreign commands left the play untouched")
}

func TestAPI_PlayEventsStream(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodPost, "/api/retreats/7/plays", "ana", nil)
	var started playBody
	require.NoError(t, json.Unmarshal(body, &started))
	playID := started.State.PlayID

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/plays/"+playID+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("X-Auth-User", "ana")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan runner.SessionState, 16)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") || line == "data: {}" {
				continue
			}
			var st runner.SessionState
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &st) == nil {
				events <- st
			}
		}
	}()

	first := <-events
	assert.Equal(t, 0, first.CurrentStepIndex)

	for i := 0; i < 3; i++ {
		f.do(t, http.MethodPost, "/api/plays/"+playID+"/next", "ana", nil)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case st, ok := <-events:
			require.True(t, ok, "stream ended before completion")
			if st.IsCompleted {
				f.do(t, http.MethodDelete, "/api/plays/"+playID, "ana", nil)
				for range events {
				}
				return
			}
		case <-timeout:
			t.Fatal("no completion event")
		}
	}
}

func TestAPI_Metrics(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/retreats", "ana", nil)

	resp, body := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "sages_http_request_duration_seconds")
}
