package board

import (
	"context"
	"fmt"
	"strings"
)

const applicationsPath = "/applications"

// FieldKind enumerates the field types the application form surface exposes.
type FieldKind string

const (
	KindShortText    FieldKind = "short_text"
	KindLongText     FieldKind = "long_text"
	KindSingleChoice FieldKind = "single_choice"
	KindMultiChoice  FieldKind = "multi_choice"
	KindFile         FieldKind = "file"
)

// FormField describes one field of an application form. Transient: valid
// only for the current application attempt.
type FormField struct {
	ID       string    `json:"id"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required"`
	Label    string    `json:"label"`
	Choices  []string  `json:"choices,omitempty"`
}

// ApplyAction is the handle for one application flow opened from a posting.
type ApplyAction struct {
	ID        string `json:"id"`
	PostingID string `json:"posting_id"`
}

// SubmissionResult reports whether the platform explicitly acknowledged the
// submission. An unacknowledged result must never be treated as applied.
type SubmissionResult struct {
	Acknowledged bool
	Receipt      string
}

type formResponse struct {
	Fields []FormField `json:"fields"`
}

type submitResponse struct {
	Status  string `json:"status"`
	Receipt string `json:"receipt"`
}

// OpenApplyAction starts the application flow for the posting.
func (c *Client) OpenApplyAction(ctx context.Context, posting *Posting) (*ApplyAction, error) {
	if posting == nil {
		return nil, fmt.Errorf("posting is required")
	}

	ref := strings.TrimSpace(posting.ApplyActionRef)
	if ref == "" {
		return nil, fmt.Errorf("posting %s has no apply action", posting.ID)
	}

	url := fmt.Sprintf("%s%s", c.APIURL, applicationsPath)

	var action ApplyAction
	if err := c.postFormData(ctx, url, map[string]string{
		"posting_id":   posting.ID,
		"apply_action": ref,
	}, &action); err != nil {
		return nil, fmt.Errorf("open apply action for posting %s: %w", posting.ID, err)
	}

	if action.ID == "" {
		return nil, fmt.Errorf("platform returned empty application id for posting %s", posting.ID)
	}
	action.PostingID = posting.ID

	return &action, nil
}

// DiscoverFields returns the current field set of the application form in
// document order. Dynamic forms may return different sets as fields are
// filled, so callers re-discover after filling.
func (c *Client) DiscoverFields(ctx context.Context, action *ApplyAction) ([]FormField, error) {
	url := fmt.Sprintf("%s%s/%s/form", c.APIURL, applicationsPath, action.ID)

	var form formResponse
	if err := c.getJSON(ctx, url, nil, &form); err != nil {
		return nil, fmt.Errorf("discover form fields: %w", err)
	}

	return form.Fields, nil
}

// Fill writes a single field value into the application form.
func (c *Client) Fill(ctx context.Context, action *ApplyAction, field FormField, value string) error {
	url := fmt.Sprintf("%s%s/%s/fields", c.APIURL, applicationsPath, action.ID)

	if err := c.postFormData(ctx, url, map[string]string{
		"field_id": field.ID,
		"value":    value,
	}, nil); err != nil {
		return fmt.Errorf("fill field %s: %w", field.ID, err)
	}

	return nil
}

// Submit finalizes the application. Acknowledged is true only when the
// platform confirms receipt explicitly.
func (c *Client) Submit(ctx context.Context, action *ApplyAction) (*SubmissionResult, error) {
	url := fmt.Sprintf("%s%s/%s/submit", c.APIURL, applicationsPath, action.ID)

	var resp submitResponse
	if err := c.postFormData(ctx, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("submit application %s: %w", action.ID, err)
	}

	return &SubmissionResult{
		Acknowledged: resp.Status == "received",
		Receipt:      resp.Receipt,
	}, nil
}
