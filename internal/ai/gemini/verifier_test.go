package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spigell/tener-recruiter/internal/ai"
	"github.com/spigell/tener-recruiter/internal/matching"
	"github.com/spigell/tener-recruiter/internal/model"
	"go.uber.org/zap"
)

type stubGenerator struct {
	response   string
	err        error
	lastPrompt string
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Model() string {
	return "stub-model"
}

type cachingStub struct {
	stubGenerator
	cacheErr  error
	cacheKeys []string
	usedCache string
}

func (c *cachingStub) EnsureJobCache(_ context.Context, jobKey, _, _ string) (string, error) {
	c.cacheKeys = append(c.cacheKeys, jobKey)
	if c.cacheErr != nil {
		return "", c.cacheErr
	}
	return "cachedContents/" + jobKey, nil
}

func (c *cachingStub) GenerateContentWithCache(ctx context.Context, prompt, cacheName string) (string, error) {
	c.usedCache = cacheName
	return c.GenerateContent(ctx, prompt)
}

type fixedVerifier struct{ res matching.Result }

func (f fixedVerifier) Verify(context.Context, model.Job, model.Candidate) (matching.Result, error) {
	return f.res, nil
}

var (
	testJob       = model.Job{ID: 4, Title: "Go Developer", JDText: "Go and Postgres"}
	testCandidate = model.Candidate{ID: 9, FullName: "Ana Diaz", Skills: []string{"Go"}}
)

func TestVerifierVerify(t *testing.T) {
	stub := &stubGenerator{response: "```json\n{\"fit\": true, \"score\": 0.9, \"verdict\": \"verified\", \"reason\": \"Matches skills\"}\n```"}
	verifier := NewVerifier(stub, nil, zap.NewNop(), 0.5, 0)

	res, err := verifier.Verify(context.Background(), model.Job{Title: "Go Developer", JDText: "Go"}, testCandidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Verdict != matching.VerdictVerified || res.Score != 90 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Explanation != "Matches skills" {
		t.Fatalf("unexpected explanation %q", res.Explanation)
	}
	if !strings.Contains(stub.lastPrompt, "\"Go Developer\"") || !strings.Contains(stub.lastPrompt, "Ana Diaz") {
		t.Fatalf("prompt must carry job and candidate: %s", stub.lastPrompt)
	}
}

func TestVerifierScoreThresholdDowngrades(t *testing.T) {
	stub := &stubGenerator{response: `{"fit": true, "score": 0.4, "verdict": "verified"}`}
	verifier := NewVerifier(stub, nil, zap.NewNop(), 0.5, 0)

	res, err := verifier.Verify(context.Background(), testJob, testCandidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Verdict != matching.VerdictNeedsResume {
		t.Fatalf("expected needs_resume below threshold, got %s", res.Verdict)
	}
}

func TestVerifierVerdictFromFit(t *testing.T) {
	stub := &stubGenerator{response: `{"fit": false, "score": "0.2", "missing_fields": ["skills"]}`}
	verifier := NewVerifier(stub, nil, zap.NewNop(), 0, 0)

	res, err := verifier.Verify(context.Background(), testJob, testCandidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Verdict != matching.VerdictNeedsResume || !res.NoFitEvidence {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestVerifierUsesJobCache(t *testing.T) {
	stub := &cachingStub{stubGenerator: stubGenerator{response: `{"verdict": "rejected", "score": 0.1}`}}
	verifier := NewVerifier(stub, nil, zap.NewNop(), 0, 0)

	if _, err := verifier.Verify(context.Background(), testJob, testCandidate); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stub.cacheKeys) != 1 || stub.usedCache == "" {
		t.Fatalf("expected cached generation, keys=%v cache=%q", stub.cacheKeys, stub.usedCache)
	}
	if strings.Contains(stub.lastPrompt, "Go and Postgres") {
		t.Fatalf("cached prompt must not inline the job description")
	}

	stub.cacheErr = errors.New("too small for caching")
	stub.usedCache = ""
	if _, err := verifier.Verify(context.Background(), testJob, testCandidate); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.usedCache != "" || !strings.Contains(stub.lastPrompt, "Go and Postgres") {
		t.Fatalf("expected inline prompt when cache creation fails")
	}
}

func TestVerifierFallback(t *testing.T) {
	stub := &stubGenerator{err: errors.New("quota exceeded")}
	fallback := fixedVerifier{res: matching.Result{Verdict: matching.VerdictNeedsResume, Score: 40}}

	res, err := NewVerifier(stub, fallback, zap.NewNop(), 0, 0).Verify(context.Background(), testJob, testCandidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Verdict != matching.VerdictNeedsResume {
		t.Fatalf("expected fallback verdict, got %s", res.Verdict)
	}

	if _, err := NewVerifier(stub, nil, zap.NewNop(), 0, 0).Verify(context.Background(), testJob, testCandidate); err == nil {
		t.Fatalf("expected error without fallback")
	}
}

func TestReplierReply(t *testing.T) {
	stub := &stubGenerator{response: "\"The team works remotely across EU time zones.\""}
	replier := NewReplier(stub, zap.NewNop(), 0)

	reply, err := replier.Reply(context.Background(), ai.ReplyRequest{
		Language:       "en",
		Intent:         "default",
		JobTitle:       "Go Developer",
		JobDescription: "Remote, EU",
		CandidateName:  "Ana",
		InboundText:    "Is it remote?",
		History:        []ai.Turn{{Content: "Hi Ana"}, {Inbound: true, Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "The team works remotely across EU time zones." {
		t.Fatalf("unexpected reply %q", reply)
	}
	if !strings.Contains(stub.lastPrompt, "Recruiter: Hi Ana\nCandidate: Hello") {
		t.Fatalf("history missing from prompt: %s", stub.lastPrompt)
	}

	if _, err := replier.Reply(context.Background(), ai.ReplyRequest{}); err == nil {
		t.Fatalf("expected error for empty inbound text")
	}
}
