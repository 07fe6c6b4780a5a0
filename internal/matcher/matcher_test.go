package matcher

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"autoapply/internal/board"
	"autoapply/internal/llm"
	"autoapply/internal/profile"
)

type stubGenerator struct {
	response   string
	err        error
	calls      int
	lastPrompt string
}

func (s *stubGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	s.calls++
	s.lastPrompt = req.Prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Model() string { return "stub-model" }

func testCandidate() *profile.Candidate {
	return &profile.Candidate{
		Name:     "Jane Doe",
		Skills:   []string{"Go", "Kubernetes"},
		Keywords: []string{"Backend Developer"},
	}
}

func testPosting() *board.Posting {
	p := &board.Posting{ID: "v1", Name: "Go Developer", Description: "We need Go."}
	p.Employer.Name = "Acme"
	return p
}

func TestEvaluateMatch(t *testing.T) {
	stub := &stubGenerator{response: `{"match": true, "score": 0.9, "rationale": "Skills line up"}`}
	m := New(stub, 0.5, 0, zap.NewNop())

	decision, err := m.Evaluate(context.Background(), testPosting(), testCandidate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !decision.Match {
		t.Fatal("expected match to be true")
	}
	if decision.Score != 0.9 {
		t.Fatalf("expected score 0.9, got %v", decision.Score)
	}
	if decision.JobID != "v1" {
		t.Fatalf("unexpected job id: %s", decision.JobID)
	}
	if decision.DecidedAt.IsZero() {
		t.Fatal("expected decision timestamp")
	}
	if stub.calls != 1 {
		t.Fatalf("expected exactly one llm call, got %d", stub.calls)
	}
	if !strings.Contains(stub.lastPrompt, "Jane Doe") || !strings.Contains(stub.lastPrompt, "Go Developer") {
		t.Fatalf("prompt missing candidate or posting context: %s", stub.lastPrompt)
	}
}

func TestEvaluateScoreEqualToThresholdIsMatch(t *testing.T) {
	stub := &stubGenerator{response: `{"match": true, "score": 0.5, "rationale": "borderline"}`}
	m := New(stub, 0.5, 0, zap.NewNop())

	decision, err := m.Evaluate(context.Background(), testPosting(), testCandidate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Match {
		t.Fatal("score equal to the threshold must count as a match")
	}
}

func TestEvaluateScoreBelowThresholdIsNoMatch(t *testing.T) {
	stub := &stubGenerator{response: `{"match": true, "score": 0.49, "rationale": "too junior"}`}
	m := New(stub, 0.5, 0, zap.NewNop())

	decision, err := m.Evaluate(context.Background(), testPosting(), testCandidate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Match {
		t.Fatal("score below the threshold must not match")
	}
}

func TestEvaluateParseErrorFallsBackToSkip(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{name: "not json", response: "I think this is a great fit!"},
		{name: "missing match field", response: `{"score": 0.8}`},
		{name: "score out of range", response: `{"match": true, "score": 7}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubGenerator{response: tc.response}
			m := New(stub, 0.5, 0, zap.NewNop())

			decision, err := m.Evaluate(context.Background(), testPosting(), testCandidate())
			if err != nil {
				t.Fatalf("parse failures must not propagate as errors, got %v", err)
			}
			if decision.Match {
				t.Fatal("parse failure must default to non-match")
			}
			if decision.Rationale != ParseErrorRationale {
				t.Fatalf("expected %q rationale, got %q", ParseErrorRationale, decision.Rationale)
			}
		})
	}
}

func TestEvaluatePropagatesGatewayErrors(t *testing.T) {
	stub := &stubGenerator{err: &llm.TransientError{Err: context.DeadlineExceeded}}
	m := New(stub, 0.5, 0, zap.NewNop())

	if _, err := m.Evaluate(context.Background(), testPosting(), testCandidate()); err == nil {
		t.Fatal("expected gateway error to propagate")
	}
}

func TestEvaluateHandlesFencedResponse(t *testing.T) {
	stub := &stubGenerator{response: "```json\n{\"match\": true, \"score\": 0.8, \"rationale\": \"ok\"}\n```"}
	m := New(stub, 0.5, 0, zap.NewNop())

	decision, err := m.Evaluate(context.Background(), testPosting(), testCandidate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Match {
		t.Fatal("expected fenced JSON to parse as a match")
	}
}

func TestEvaluateTruncatesLongDescriptions(t *testing.T) {
	head := strings.Repeat("H", 300)
	middle := strings.Repeat("M", 2000)
	tail := strings.Repeat("T", 300)

	posting := testPosting()
	posting.Description = head + middle + tail

	stub := &stubGenerator{response: `{"match": true, "score": 0.9, "rationale": "ok"}`}
	m := New(stub, 0.5, 600, zap.NewNop())

	if _, err := m.Evaluate(context.Background(), posting, testCandidate()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stub.lastPrompt, strings.Repeat("H", 100)) {
		t.Fatal("prompt lost the description head")
	}
	if !strings.Contains(stub.lastPrompt, strings.Repeat("T", 100)) {
		t.Fatal("prompt lost the description tail")
	}
	if strings.Contains(stub.lastPrompt, strings.Repeat("M", 600)) {
		t.Fatal("prompt retained the middle that should be elided")
	}
	if !strings.Contains(stub.lastPrompt, "[...]") {
		t.Fatal("prompt missing elision marker")
	}
}

func TestTruncateMiddle(t *testing.T) {
	if got := TruncateMiddle("short", 100); got != "short" {
		t.Fatalf("short input must pass through, got %q", got)
	}

	long := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	got := TruncateMiddle(long, 40)
	if len([]rune(got)) > 40 {
		t.Fatalf("result exceeds limit: %d runes", len([]rune(got)))
	}
	if !strings.HasPrefix(got, "a") || !strings.HasSuffix(got, "b") {
		t.Fatalf("expected head and tail retained, got %q", got)
	}
}
