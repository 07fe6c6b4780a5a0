// Package board is the client for the job-listing platform API: posting
// search, application form discovery, field filling and submission.
package board

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultAPIURL = "https://api.jobboard.example"
	userAgent     = "autoapply"
	// Max value for search per page.
	perPage = "100"
)

type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

func New(logger *zap.Logger, token string) *Client {
	return &Client{
		token:  token,
		APIURL: defaultAPIURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:    logger,
		UserAgent: userAgent,
	}
}

// Search returns every posting matching the params, aggregated across pages.
func (c *Client) Search(ctx context.Context, params *SearchParams) (*Postings, error) {
	return c.search(ctx, params)
}
