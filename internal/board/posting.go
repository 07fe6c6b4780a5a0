package board

import (
	"context"
	"fmt"
	"time"
)

type Postings struct {
	Items []*Posting
}

// Posting is a single scraped job listing. Immutable once captured.
type Posting struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Employer struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
		URL  string `json:"url,omitempty"`
	} `json:"employer,omitempty"`
	Area struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"area,omitempty"`
	Description string `json:"description,omitempty"`
	// ApplyActionRef is the opaque handle used to open the application flow.
	ApplyActionRef string `json:"apply_action,omitempty"`
	AlternateURL   string `json:"alternate_url,omitempty"`
	PublishedAt    string `json:"published_at,omitempty"`
	Snippet        struct {
		Requirement    string `json:"requirement,omitempty"`
		Responsibility string `json:"responsibility,omitempty"`
	} `json:"snippet,omitempty"`

	DiscoveredAt time.Time `json:"-"`
}

// GetPosting fetches the full posting, including the complete description.
func (c *Client) GetPosting(ctx context.Context, id string) (*Posting, error) {
	if id == "" {
		return nil, fmt.Errorf("posting id is required")
	}

	url := fmt.Sprintf("%s%s/%s", c.APIURL, SearchPath, id)

	var posting Posting
	if err := c.getJSON(ctx, url, nil, &posting); err != nil {
		return nil, err
	}

	posting.DiscoveredAt = time.Now().UTC()

	return &posting, nil
}

func (p *Postings) Len() int {
	return len(p.Items)
}

func (p *Postings) FindByID(id string) *Posting {
	for _, posting := range p.Items {
		if posting.ID == id {
			return posting
		}
	}
	return nil
}

func (p *Postings) IDs() []string {
	ids := make([]string, 0, len(p.Items))
	for _, posting := range p.Items {
		ids = append(ids, posting.ID)
	}
	return ids
}

// Exclude removes postings with the given ids, returning the removed ids.
func (p *Postings) Exclude(ids []string) []string {
	var excluded []string
	for _, id := range ids {
		for idx, posting := range p.Items {
			if posting.ID == id {
				p.RemoveByIndex(idx)
				excluded = append(excluded, posting.ID)
				break
			}
		}
	}
	return excluded
}

// RemoveByIndex removes a posting from the list by index. Does not preserve order.
func (p *Postings) RemoveByIndex(idx int) {
	p.Items[idx] = p.Items[len(p.Items)-1]
	p.Items = p.Items[:len(p.Items)-1]
}
