// Package gemini is a minimal client for the Gemini generateContent REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash"
	DefaultTimeout = 90 * time.Second

	maxResponseSize = 10 * 1024 * 1024 // 10MB
)

// ErrNoAPIKey is returned by New when no API key is configured.
var ErrNoAPIKey = errors.New("gemini API key not configured")

// ErrEmptyResponse is returned when the model answers without any text.
var ErrEmptyResponse = errors.New("gemini returned no text")

// Roles of conversation turns.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Content is one conversation turn.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is either text or inline binary data.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is base64 media sent with a turn.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

// Text returns a text part.
func Text(s string) Part { return Part{Text: s} }

// UserText returns a single-part user turn.
func UserText(s string) Content {
	return Content{Role: RoleUser, Parts: []Part{Text(s)}}
}

// APIError is the error envelope returned by the API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Status     string `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini error [%d %s]: %s", e.Code, e.Status, e.Message)
}

type generateRequest struct {
	Contents []Content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []Part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	Error *APIError `json:"error,omitempty"`
}

// Config holds client settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client calls generateContent for one API key and model. Construct a new
// Client when the key changes.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// New returns a client for cfg. Empty model, base URL and timeout take defaults.
func New(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrNoAPIKey
	}
	c := &Client{
		apiKey:  key,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http.Timeout <= 0 {
		c.http.Timeout = DefaultTimeout
	}
	return c, nil
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string { return c.model }

// GenerateContent sends the conversation and returns the concatenated text of the first candidate.
func (c *Client) GenerateContent(ctx context.Context, contents []Content) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: contents})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", &APIError{StatusCode: resp.StatusCode, Code: resp.StatusCode, Message: strings.TrimSpace(string(respBody)), Status: http.StatusText(resp.StatusCode)}
		}
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		out.Error.StatusCode = resp.StatusCode
		return "", out.Error
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	for _, cand := range out.Candidates {
		var b strings.Builder
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			return b.String(), nil
		}
	}
	return "", ErrEmptyResponse
}
