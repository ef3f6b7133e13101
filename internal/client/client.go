// Package client talks to the pipeline HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"creativeflow/internal/domain"
)

const (
	defaultTimeout  = 10 * time.Minute
	maxDownloadSize = 64 << 20
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status        int
	Code          string
	Message       string
	ShouldRestart bool
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: http %d", e.Status)
	}
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// FailureView mirrors the failure block of an execution response.
type FailureView struct {
	Code    string `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Execution is the API's view of one run.
type Execution struct {
	ExecutionID    string                 `json:"execution_id"`
	Status         domain.ExecutionStatus `json:"status"`
	Message        string                 `json:"message,omitempty"`
	SuspendPayload *domain.SuspendPayload `json:"suspend_payload,omitempty"`
	Result         *domain.FinalResult    `json:"result,omitempty"`
	Failure        *FailureView           `json:"failure,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty"`
}

// Settled reports whether the run is waiting on a person or finished.
func (e *Execution) Settled() bool {
	switch e.Status {
	case domain.ExecutionStatusQueued, domain.ExecutionStatusRunning:
		return false
	}
	return true
}

type ExecuteRequest struct {
	Brief           string   `json:"brief"`
	AspectRatioHint string   `json:"aspect_ratio_hint,omitempty"`
	Personas        []string `json:"personas,omitempty"`
}

type ResumeRequest struct {
	ExecutionID string `json:"execution_id"`
	Approved    bool   `json:"approved"`
	Feedback    string `json:"feedback,omitempty"`
	AnswersText string `json:"answers_text,omitempty"`
}

type Persona struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Focus string `json:"focus,omitempty"`
}

type Options struct {
	BaseURL    string
	Locale     string
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	locale  string
	http    *http.Client
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("client: base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("client: invalid base url: %w", err)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: base, locale: opts.Locale, http: hc}, nil
}

func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*Execution, error) {
	var out Execution
	if err := c.do(ctx, http.MethodPost, "/v1/pipeline/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Resume(ctx context.Context, req ResumeRequest) (*Execution, error) {
	var out Execution
	if err := c.do(ctx, http.MethodPost, "/v1/pipeline/resume", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Status(ctx context.Context, id string) (*Execution, error) {
	var out Execution
	if err := c.do(ctx, http.MethodGet, "/v1/pipeline/executions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Personas(ctx context.Context) ([]Persona, error) {
	var out struct {
		Personas []Persona `json:"personas"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/pipeline/personas", nil, &out); err != nil {
		return nil, err
	}
	return out.Personas, nil
}

// Watch polls until the run settles, calling onChange whenever the status
// or update time moves.
func (c *Client) Watch(ctx context.Context, id string, interval time.Duration, onChange func(*Execution)) (*Execution, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	var last *Execution
	for {
		exec, err := c.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if onChange != nil && (last == nil || last.Status != exec.Status || !last.UpdatedAt.Equal(exec.UpdatedAt)) {
			onChange(exec)
		}
		last = exec
		if exec.Settled() {
			return exec, nil
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// Download fetches an absolute URL, such as a generated image.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("download %s: http %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxDownloadSize {
		return nil, "", fmt.Errorf("download %s: larger than %d bytes", rawURL, maxDownloadSize)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.locale != "" {
		req.Header.Set("X-Locale", c.locale)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
			ShouldRestart bool `json:"should_restart"`
		}
		if json.Unmarshal(raw, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.ShouldRestart = envelope.ShouldRestart
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
