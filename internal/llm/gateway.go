package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"autoapply/internal/utils"
)

const gatewayTemperature = 0.2

// Gateway talks to an OpenAI-compatible chat-completions endpoint.
type Gateway struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
	logger     *zap.Logger
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func NewGateway(baseURL, token, model string, logger *zap.Logger) (*Gateway, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway base url is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("gateway token is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("gateway model is required")
	}

	return &Gateway{
		// Per-call deadlines come from the retrying client's context.
		httpClient: &http.Client{},
		baseURL:    baseURL,
		token:      token,
		model:      model,
		logger:     logger,
	}, nil
}

func (g *Gateway) Model() string { return g.model }

func (g *Gateway) Generate(ctx context.Context, req Request) (string, error) {
	system := req.System
	if req.SchemaHint != "" {
		system = strings.TrimSpace(system + "\nRespond with strictly valid JSON matching: " + req.SchemaHint)
	}

	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: gatewayTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	url := g.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &AuthError{Err: fmt.Errorf("gateway returned %s", resp.Status)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return "", &TransientError{Err: fmt.Errorf("gateway returned %s", resp.Status)}
	case resp.StatusCode >= http.StatusBadRequest:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gateway returned %s: %s", resp.Status, utils.TruncateForLog(string(body), 200))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", &ParseError{Err: fmt.Errorf("decode gateway response: %w", err)}
	}

	if len(chat.Choices) == 0 {
		return "", &ParseError{Err: errors.New("gateway response has no choices")}
	}

	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	if content == "" {
		return "", &ParseError{Err: errors.New("gateway response content is empty")}
	}

	return content, nil
}
