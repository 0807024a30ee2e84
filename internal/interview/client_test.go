package interview

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/store"
)

func TestStartSession(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/interviews/sessions/start" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.Language != "en" || req.TTLHours != 72 || req.CandidateID != 7 {
			t.Fatalf("unexpected payload: %+v", req)
		}
		w.Write([]byte(`{"session_id":"iv-1","job_id":"3","candidate_id":7,"status":"invited","entry_url":"https://iv/1"}`))
	}))
	defer srv.Close()

	c := New(nil, srv.URL+"/", time.Second)
	s, err := c.StartSession(context.Background(), StartRequest{JobID: 3, CandidateID: 7, TTLHours: 72})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if s.SessionID != "iv-1" || s.JobID != 3 || s.EntryURL != "https://iv/1" {
		t.Fatalf("unexpected session: %+v", s)
	}
}

func TestRefreshSessionScore(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/iv-1/refresh") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"session_id":"iv-1","status":"scored","total_score":10,"summary":{"total_score":84.5}}`))
	}))
	defer srv.Close()

	s, err := New(nil, srv.URL, 0).RefreshSession(context.Background(), "iv-1", true)
	if err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	if s.Score() == nil || *s.Score() != 84.5 {
		t.Fatalf("expected summary score to win, got %v", s.Score())
	}
}

func TestListSessionsAndScorecard(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/interviews/sessions":
			if r.URL.Query().Get("job_id") != "3" || r.URL.Query().Get("limit") != "100" {
				t.Fatalf("unexpected query %s", r.URL.RawQuery)
			}
			w.Write([]byte(`{"items":[{"session_id":"a","candidate_id":1,"status":"completed"},{"session_id":"b","candidate_id":2,"status":"in_progress"}]}`))
		case strings.HasSuffix(r.URL.Path, "/scorecard"):
			w.Write([]byte(`{"scorecard":{"total_score":"71"}}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(nil, srv.URL, time.Second)
	items, err := c.ListSessions(context.Background(), 3, "", 0)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(items) != 2 || items[1].CandidateID != 2 {
		t.Fatalf("unexpected items: %+v", items)
	}

	sc, err := c.GetScorecard(context.Background(), "a")
	if err != nil {
		t.Fatalf("GetScorecard: %v", err)
	}
	if sc.TotalScore == nil || *sc.TotalScore != 71 {
		t.Fatalf("unexpected scorecard: %+v", sc)
	}
}

func TestCallErrors(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, "", 0).GetSession(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session missing", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(nil, srv.URL, 0).GetSession(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "http 404") {
		t.Fatalf("expected http 404 error, got %v", err)
	}
}

func TestMatchStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]funnel.Status{
		"created":     funnel.StatusInterviewInvited,
		"invited":     funnel.StatusInterviewInvited,
		"in_progress": funnel.StatusInterviewInProgress,
		"completed":   funnel.StatusInterviewCompleted,
		"Scored":      funnel.StatusInterviewScored,
		"expired":     funnel.StatusInterviewFailed,
		"canceled":    funnel.StatusInterviewFailed,
	}
	for remote, want := range cases {
		got, ok := MatchStatus(remote)
		if !ok || got != want {
			t.Fatalf("MatchStatus(%q) = %q, %v; want %q", remote, got, ok, want)
		}
	}
	if _, ok := MatchStatus("weird"); ok {
		t.Fatalf("unknown remote status must not map")
	}
	if !IsFinal("scored") || IsFinal("in_progress") {
		t.Fatalf("unexpected IsFinal result")
	}
}

type countingPreparer struct {
	calls int
}

func (p *countingPreparer) PrepareAssessment(_ context.Context, jobID int64) (Assessment, error) {
	p.calls++
	return Assessment{AssessmentID: "as-" + string(rune('0'+p.calls)), Name: "Go"}, nil
}

func TestAssessmentCacheRegeneratesOnJDChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := store.NewMemory()
	job, err := st.InsertJob(ctx, model.Job{Title: "Go engineer", JDText: "Go"})
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	prep := &countingPreparer{}
	cache := NewAssessmentCache(st, prep, nil)

	a, prepared, err := cache.Ensure(ctx, job)
	if err != nil || !prepared || a.AssessmentID != "as-1" {
		t.Fatalf("first Ensure = %+v, %v, %v", a, prepared, err)
	}

	a, prepared, err = cache.Ensure(ctx, job)
	if err != nil || prepared || a.AssessmentID != "as-1" {
		t.Fatalf("second Ensure must reuse, got %+v, %v, %v", a, prepared, err)
	}

	job.JDText = "Go and Kubernetes"
	a, prepared, err = cache.Ensure(ctx, job)
	if err != nil || !prepared || a.AssessmentID != "as-2" {
		t.Fatalf("changed JD must regenerate, got %+v, %v, %v", a, prepared, err)
	}
	if prep.calls != 2 {
		t.Fatalf("expected 2 prepare calls, got %d", prep.calls)
	}
}
