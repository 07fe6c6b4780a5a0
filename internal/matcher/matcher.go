// Package matcher scores a posting against the candidate profile with a
// single LLM call and a strict response contract.
package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"autoapply/internal/board"
	"autoapply/internal/llm"
	"autoapply/internal/profile"
	"autoapply/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

const (
	// ParseErrorRationale marks decisions produced by the conservative
	// fallback when the LLM response could not be parsed.
	ParseErrorRationale = "parse-error"

	schemaHint = `{"match": boolean, "score": number, "rationale": string}`

	defaultMaxDescChars = 6000
	defaultMaxLogLength = 200
)

// Decision is the outcome of evaluating one posting. Never mutated after
// creation.
type Decision struct {
	JobID     string
	Match     bool
	Score     float64
	Rationale string
	DecidedAt time.Time
}

type generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
	Model() string
}

type Matcher struct {
	llm          generator
	threshold    float64
	maxDescChars int
	maxLogLen    int
	logger       *zap.Logger
}

func New(gen generator, threshold float64, maxDescChars int, logger *zap.Logger) *Matcher {
	if maxDescChars <= 0 {
		maxDescChars = defaultMaxDescChars
	}
	if threshold < 0 {
		threshold = 0
	}

	return &Matcher{
		llm:          gen,
		threshold:    threshold,
		maxDescChars: maxDescChars,
		maxLogLen:    defaultMaxLogLength,
		logger:       logger,
	}
}

// Evaluate makes exactly one LLM call for the posting. A response that
// cannot be parsed yields a conservative non-match decision instead of an
// error; errors are reserved for gateway failures.
func (m *Matcher) Evaluate(ctx context.Context, posting *board.Posting, candidate *profile.Candidate) (*Decision, error) {
	if posting == nil {
		return nil, fmt.Errorf("posting is required")
	}
	if candidate == nil {
		return nil, fmt.Errorf("candidate profile is required")
	}

	prompt := buildPrompt(posting, candidate, m.maxDescChars)

	m.logger.Debug("match request",
		zap.String("job_id", posting.ID),
		zap.String("model", m.llm.Model()),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, m.maxLogLen)),
	)

	raw, err := m.llm.Generate(ctx, llm.Request{Prompt: prompt, SchemaHint: schemaHint})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("match response",
		zap.String("job_id", posting.ID),
		zap.String("response_preview", utils.TruncateForLog(raw, m.maxLogLen)),
	)

	decision, err := parseResponse(posting.ID, raw)
	if err != nil {
		// Classification ambiguity defaults to the conservative choice.
		m.logger.Warn("unparseable match response, skipping conservatively",
			zap.String("job_id", posting.ID),
			zap.Error(err),
		)
		return &Decision{
			JobID:     posting.ID,
			Match:     false,
			Rationale: ParseErrorRationale,
			DecidedAt: time.Now().UTC(),
		}, nil
	}

	// Inclusive lower bound: a score equal to the threshold is a match.
	if decision.Match && decision.Score < m.threshold {
		m.logger.Debug("match rejected by score threshold",
			zap.String("job_id", posting.ID),
			zap.Float64("score", decision.Score),
			zap.Float64("threshold", m.threshold),
		)
		decision.Match = false
	}

	return decision, nil
}

func buildPrompt(posting *board.Posting, candidate *profile.Candidate, maxDescChars int) string {
	description := TruncateMiddle(posting.Description, maxDescChars)

	postingBlock := fmt.Sprintf("Title: %s\nCompany: %s\n\n%s",
		posting.Name, posting.Employer.Name, description)

	prompt := strings.ReplaceAll(promptTemplate, "{{CANDIDATE}}", candidate.Summary())
	prompt = strings.ReplaceAll(prompt, "{{POSTING}}", postingBlock)
	return prompt
}

type rawDecision struct {
	Match     *bool    `json:"match"`
	Score     *float64 `json:"score"`
	Rationale string   `json:"rationale"`
}

func parseResponse(jobID, raw string) (*Decision, error) {
	cleaned := extractJSON(raw)

	var data rawDecision
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse match response: %w", err)
	}

	if data.Match == nil {
		return nil, fmt.Errorf("match response is missing the match field")
	}

	score := 0.0
	if data.Score != nil {
		score = *data.Score
	}
	if score < 0 || score > 1 {
		return nil, fmt.Errorf("match score %v is out of range", score)
	}

	return &Decision{
		JobID:     jobID,
		Match:     *data.Match,
		Score:     score,
		Rationale: strings.TrimSpace(data.Rationale),
		DecidedAt: time.Now().UTC(),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// TruncateMiddle bounds s to limit runes by keeping the opening and a fixed
// tail and eliding the middle, preserving both the role/requirements header
// and the closing details.
func TruncateMiddle(s string, limit int) string {
	const marker = "\n[...]\n"

	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}

	markerLen := utf8.RuneCountInString(marker)
	if limit <= markerLen {
		return string(runes[:limit])
	}

	head := (limit - markerLen) * 2 / 3
	tail := limit - markerLen - head

	return string(runes[:head]) + marker + string(runes[len(runes)-tail:])
}
