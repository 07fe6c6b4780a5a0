// Package formfill maps generated content onto application form fields and
// drives the form to submission.
package formfill

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"autoapply/internal/board"
	"autoapply/internal/profile"
)

const defaultMaxPasses = 5

// ErrFormUnstable is returned when the discovered field set keeps changing
// beyond the configured pass cap.
var ErrFormUnstable = errors.New("form field set did not converge")

// MissingFieldsError reports required fields left unanswered after the
// generation step. Submission is blocked; the labels name the gaps.
type MissingFieldsError struct {
	Labels []string
}

func (e *MissingFieldsError) Error() string {
	return "required fields left unanswered: " + strings.Join(e.Labels, ", ")
}

// Surface exposes the platform's form primitives.
type Surface interface {
	DiscoverFields(ctx context.Context, action *board.ApplyAction) ([]board.FormField, error)
	Fill(ctx context.Context, action *board.ApplyAction, field board.FormField, value string) error
	Submit(ctx context.Context, action *board.ApplyAction) (*board.SubmissionResult, error)
}

type contentSource interface {
	CoverLetter(ctx context.Context, posting *board.Posting, candidate *profile.Candidate) (string, error)
	Answer(ctx context.Context, question string, posting *board.Posting, candidate *profile.Candidate) (string, error)
}

// Outcome summarizes a completed fill phase.
type Outcome struct {
	// CoverLetter is the generated letter text, when the form asked for one.
	CoverLetter string
	Passes      int
	Filled      int
}

type Filler struct {
	surface   Surface
	content   contentSource
	maxPasses int
	logger    *zap.Logger
}

func New(surface Surface, content contentSource, maxPasses int, logger *zap.Logger) *Filler {
	if maxPasses <= 0 {
		maxPasses = defaultMaxPasses
	}

	return &Filler{
		surface:   surface,
		content:   content,
		maxPasses: maxPasses,
		logger:    logger,
	}
}

// Fill answers the form field by field in discovery order, re-discovering
// after each pass because answers can reveal dependent fields. The loop is
// bounded: a field set still changing after the pass cap is ErrFormUnstable.
func (f *Filler) Fill(ctx context.Context, action *board.ApplyAction, posting *board.Posting, candidate *profile.Candidate) (*Outcome, error) {
	handled := make(map[string]bool)
	outcome := &Outcome{}
	converged := false

	for pass := 1; pass <= f.maxPasses; pass++ {
		// Stop requests are honoured between passes only.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome.Passes = pass

		fields, err := f.surface.DiscoverFields(ctx, action)
		if err != nil {
			return nil, fmt.Errorf("discover form fields: %w", err)
		}

		var pending []board.FormField
		for _, field := range fields {
			if !handled[field.ID] {
				pending = append(pending, field)
			}
		}

		if len(pending) == 0 {
			converged = true
			break
		}

		f.logger.Debug("fill pass",
			zap.String("application_id", action.ID),
			zap.Int("pass", pass),
			zap.Int("pending_fields", len(pending)),
		)

		var missing []string
		for _, field := range pending {
			value, err := f.resolve(ctx, field, posting, candidate, outcome)
			if err != nil {
				return nil, err
			}

			if value == "" {
				if field.Required {
					missing = append(missing, fieldName(field))
				}
				// Unanswerable optional fields are left blank and not
				// revisited on later passes.
				handled[field.ID] = true
				continue
			}

			if err := f.surface.Fill(ctx, action, field, value); err != nil {
				return nil, fmt.Errorf("fill field %q: %w", fieldName(field), err)
			}
			handled[field.ID] = true
			outcome.Filled++
		}

		if len(missing) > 0 {
			return nil, &MissingFieldsError{Labels: missing}
		}
	}

	if !converged {
		return nil, fmt.Errorf("%w after %d passes", ErrFormUnstable, f.maxPasses)
	}

	return outcome, nil
}

// Submit finalizes the application on the platform.
func (f *Filler) Submit(ctx context.Context, action *board.ApplyAction) (*board.SubmissionResult, error) {
	return f.surface.Submit(ctx, action)
}

func (f *Filler) resolve(ctx context.Context, field board.FormField, posting *board.Posting, candidate *profile.Candidate, outcome *Outcome) (string, error) {
	if field.Kind == board.KindFile {
		return candidate.CVRef, nil
	}

	if field.Kind == board.KindLongText && isCoverLetterField(field.Label) {
		if outcome.CoverLetter == "" {
			letter, err := f.content.CoverLetter(ctx, posting, candidate)
			if err != nil {
				return "", err
			}
			outcome.CoverLetter = letter
		}
		return outcome.CoverLetter, nil
	}

	// Identity facts are answered straight from the profile.
	if fact, ok := identityFact(field.Label, candidate); ok {
		return fact, nil
	}

	answer, err := f.content.Answer(ctx, field.Label, posting, candidate)
	if err != nil {
		return "", err
	}

	if len(field.Choices) > 0 {
		if field.Kind == board.KindMultiChoice {
			return strings.Join(matchChoices(field.Choices, answer), ", "), nil
		}
		return matchChoice(field.Choices, answer), nil
	}

	return answer, nil
}

func fieldName(field board.FormField) string {
	if strings.TrimSpace(field.Label) != "" {
		return field.Label
	}
	return field.ID
}

func isCoverLetterField(label string) bool {
	normalized := profile.Normalize(label)
	return strings.Contains(normalized, "cover letter") || strings.Contains(normalized, "motivation")
}

func identityFact(label string, candidate *profile.Candidate) (string, bool) {
	normalized := profile.Normalize(label)

	switch {
	case strings.Contains(normalized, "email"):
		return candidate.Email, candidate.Email != ""
	case strings.Contains(normalized, "phone"):
		return candidate.Phone, candidate.Phone != ""
	case strings.Contains(normalized, "name") && !strings.Contains(normalized, "company"):
		return candidate.Name, candidate.Name != ""
	case strings.Contains(normalized, "location") || strings.Contains(normalized, "city") || strings.Contains(normalized, "country"):
		return candidate.Location, candidate.Location != ""
	}

	return "", false
}

// matchChoice resolves a generated answer against the discovered options:
// exact case-insensitive match first, then substring containment in either
// direction. An empty result means no option fits.
func matchChoice(choices []string, answer string) string {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ""
	}

	folded := strings.ToLower(answer)
	for _, choice := range choices {
		if strings.ToLower(choice) == folded {
			return choice
		}
	}

	for _, choice := range choices {
		lower := strings.ToLower(choice)
		if strings.Contains(lower, folded) || strings.Contains(folded, lower) {
			return choice
		}
	}

	return ""
}

// matchChoices selects every option the generated answer names, in option
// order. Multi-select fields accept any subset.
func matchChoices(choices []string, answer string) []string {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil
	}

	folded := strings.ToLower(answer)
	var matched []string
	for _, choice := range choices {
		lower := strings.ToLower(choice)
		if lower == folded || strings.Contains(folded, lower) || strings.Contains(lower, folded) {
			matched = append(matched, choice)
		}
	}

	return matched
}
