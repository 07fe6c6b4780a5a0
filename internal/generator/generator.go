// Package generator produces cover letters and answers to application form
// questions, caching answers by normalized question text for the run.
package generator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"autoapply/internal/board"
	"autoapply/internal/llm"
	"autoapply/internal/profile"
)

const (
	defaultMaxAnswerChars = 700
	defaultMaxCoverChars  = 2000

	answerSystem = "You are helping a job applicant answer an application form question. " +
		"Answer in the first person, truthfully based on the candidate facts, in a few sentences. " +
		"Output only the answer text."

	coverLetterSystem = "You write short, specific cover letters. " +
		"Use only the candidate facts provided, address the posting directly, skip generic filler. " +
		"Output only the letter body."
)

type generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
	Model() string
}

type Generator struct {
	llm            generator
	maxAnswerChars int
	maxCoverChars  int
	logger         *zap.Logger

	cacheMu sync.Mutex
	cache   map[string]string
}

func New(gen generator, maxAnswerChars, maxCoverChars int, logger *zap.Logger) *Generator {
	if maxAnswerChars <= 0 {
		maxAnswerChars = defaultMaxAnswerChars
	}
	if maxCoverChars <= 0 {
		maxCoverChars = defaultMaxCoverChars
	}

	return &Generator{
		llm:            gen,
		maxAnswerChars: maxAnswerChars,
		maxCoverChars:  maxCoverChars,
		logger:         logger,
		cache:          make(map[string]string),
	}
}

// CoverLetter generates a cover letter for the posting. Length limits are
// enforced here, never left to the caller.
func (g *Generator) CoverLetter(ctx context.Context, posting *board.Posting, candidate *profile.Candidate) (string, error) {
	prompt := fmt.Sprintf("Candidate:\n%s\n\nPosting: %s at %s\n%s\n\nWrite the cover letter.",
		candidate.Summary(), posting.Name, posting.Employer.Name,
		truncate(posting.Description, 3000),
	)

	letter, err := g.llm.Generate(ctx, llm.Request{System: coverLetterSystem, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("generate cover letter for posting %s: %w", posting.ID, err)
	}

	return truncate(letter, g.maxCoverChars), nil
}

// Answer resolves an application question. Stored profile answers and the
// run-scoped cache are consulted before the LLM; generated answers join the
// cache for the remainder of the run.
func (g *Generator) Answer(ctx context.Context, question string, posting *board.Posting, candidate *profile.Candidate) (string, error) {
	if answer, ok := candidate.StoredAnswer(question); ok {
		g.logger.Debug("answer served from profile", zap.String("question", question))
		return truncate(answer, g.maxAnswerChars), nil
	}

	key := profile.Normalize(question)

	g.cacheMu.Lock()
	if answer, ok := g.cache[key]; ok {
		g.cacheMu.Unlock()
		g.logger.Debug("answer served from run cache", zap.String("question", question))
		return answer, nil
	}
	g.cacheMu.Unlock()

	prompt := fmt.Sprintf("Candidate:\n%s\n\nPosting: %s at %s\n\nQuestion: %s",
		candidate.Summary(), posting.Name, posting.Employer.Name, question,
	)

	answer, err := g.llm.Generate(ctx, llm.Request{System: answerSystem, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("generate answer for %q: %w", question, err)
	}

	answer = truncate(answer, g.maxAnswerChars)

	g.cacheMu.Lock()
	g.cache[key] = answer
	g.cacheMu.Unlock()

	return answer, nil
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}
