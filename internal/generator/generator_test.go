package generator

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
	response string
	calls    int
}

func (s *stubGenerator) Generate(_ context.Context, _ llm.Request) (string, error) {
	s.calls++
	return s.response, nil
}

func (s *stubGenerator) Model() string { return "stub-model" }

func testCandidate() *profile.Candidate {
	return &profile.Candidate{
		Name:     "Jane Doe",
		Skills:   []string{"Go"},
		Keywords: []string{"Backend Developer"},
		Answers: map[string]string{
			"describe a challenge you overcame": "Migrated a monolith to services.",
		},
	}
}

func testPosting() *board.Posting {
	p := &board.Posting{ID: "v1", Name: "Go Developer"}
	p.Employer.Name = "Acme"
	return p
}

func TestAnswerUsesStoredProfileAnswer(t *testing.T) {
	stub := &stubGenerator{response: "should not be used"}
	g := New(stub, 0, 0, zap.NewNop())

	answer, err := g.Answer(context.Background(), "Describe a challenge   you overcame", testPosting(), testCandidate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "Migrated a monolith to services." {
		t.Fatalf("unexpected answer: %q", answer)
	}
	if stub.calls != 0 {
		t.Fatalf("stored answers must not invoke the llm, got %d calls", stub.calls)
	}
}

func TestAnswerCachesGeneratedAnswers(t *testing.T) {
	stub := &stubGenerator{response: "I have four years of Go experience."}
	g := New(stub, 0, 0, zap.NewNop())
	ctx := context.Background()

	first, err := g.Answer(ctx, "How many years of Go?", testPosting(), testCandidate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same question, different casing and whitespace.
	second, err := g.Answer(ctx, "  how many YEARS of go? ", testPosting(), testCandidate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Fatalf("expected cached answer, got %q vs %q", first, second)
	}
	if stub.calls != 1 {
		t.Fatalf("expected exactly one llm call, got %d", stub.calls)
	}
}

func TestAnswerEnforcesLengthLimit(t *testing.T) {
	stub := &stubGenerator{response: strings.Repeat("x", 500)}
	g := New(stub, 100, 0, zap.NewNop())

	answer, err := g.Answer(context.Background(), "Tell me everything", testPosting(), testCandidate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len([]rune(answer)) > 100 {
		t.Fatalf("answer exceeds limit: %d runes", len([]rune(answer)))
	}
}

func TestCoverLetterEnforcesLengthLimit(t *testing.T) {
	stub := &stubGenerator{response: strings.Repeat("y", 5000)}
	g := New(stub, 0, 1000, zap.NewNop())

	letter, err := g.CoverLetter(context.Background(), testPosting(), testCandidate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len([]rune(letter)) > 1000 {
		t.Fatalf("cover letter exceeds limit: %d runes", len([]rune(letter)))
	}
	if stub.calls != 1 {
		t.Fatalf("expected one llm call, got %d", stub.calls)
	}
}
