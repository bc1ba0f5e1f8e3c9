// Package pipeline is the HTTP client for the remote media-processing
// backend. Every capability is a single blocking request; only the history
// fetch is retried, since it is the one idempotent read.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"vidbot/internal/domain"

	"github.com/google/uuid"
)

const (
	defaultRequestTimeout = 120 * time.Second
	defaultClarifyTimeout = 5 * time.Second
	maxErrorBody          = 4096
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Capability string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed: HTTP %d: %s", e.Capability, e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx) are
// considered permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Client talks to the pipeline backend. A capability manifest may point
// individual capabilities at different endpoints.
type Client struct {
	baseURL        string
	manifest       *Manifest
	client         *http.Client
	clarifyTimeout time.Duration
	requestTimeout time.Duration
	logger         *slog.Logger
}

type Config struct {
	BaseURL        string
	Manifest       *Manifest
	ClarifyTimeout time.Duration
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.ClarifyTimeout <= 0 {
		cfg.ClarifyTimeout = defaultClarifyTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Manifest == nil {
		cfg.Manifest = &Manifest{}
	}
	return &Client{
		baseURL:        cfg.BaseURL,
		manifest:       cfg.Manifest,
		client:         sharedHTTPClient(cfg.RequestTimeout),
		clarifyTimeout: cfg.ClarifyTimeout,
		requestTimeout: cfg.RequestTimeout,
		logger:         cfg.Logger,
	}
}

// sharedHTTPClient returns an HTTP client with connection pooling shared
// across all capability calls.
func sharedHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func (c *Client) endpoint(capability, path string, query url.Values) string {
	base := c.manifest.BaseURL(capability, c.baseURL)
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// FetchHistory fetches the authoritative conversation history. Idempotent,
// retried with backoff on transient failures.
func (c *Client) FetchHistory(ctx context.Context, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	u := c.endpoint(CapHistory, "/history", url.Values{"limit": {strconv.Itoa(limit)}})

	ctx, cancel := context.WithTimeout(ctx, c.manifest.Timeout(CapHistory, c.requestTimeout))
	defer cancel()

	resp, err := doWithRetry(ctx, c.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Request-Id", uuid.NewString())
		return req, nil
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}
	c.logger.Debug("history fetched", "messages", len(out.Messages))
	return out.Messages, nil
}

// Upload sends the media file and returns the asset reference assigned by
// the backend. Streams the body through a pipe so large videos are never
// buffered whole.
func (c *Client) Upload(ctx context.Context, filename string, data io.Reader) (domain.AssetRef, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, data); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	u := c.endpoint(CapUpload, "/upload", nil)
	ctx, cancel := context.WithTimeout(ctx, c.manifest.Timeout(CapUpload, c.requestTimeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, pr)
	if err != nil {
		return domain.AssetRef{}, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.AssetRef{}, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(CapUpload, resp); err != nil {
		return domain.AssetRef{}, err
	}

	var out struct {
		FileName  string `json:"file_name"`
		SavedPath string `json:"saved_path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.AssetRef{}, fmt.Errorf("decode upload response: %w", err)
	}
	if out.FileName == "" {
		return domain.AssetRef{}, fmt.Errorf("upload response missing file_name")
	}

	c.logger.Info("upload complete", "asset", out.FileName)
	return domain.AssetRef{Name: out.FileName}, nil
}

// Clarify asks the remote clarifier to resolve an utterance. Short timeout,
// never retried; the caller falls back to unresolved on failure.
func (c *Client) Clarify(ctx context.Context, text string) (domain.Clarification, error) {
	u := c.endpoint(CapClarify, "/clarify", url.Values{"query": {text}})

	ctx, cancel := context.WithTimeout(ctx, c.manifest.Timeout(CapClarify, c.clarifyTimeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return domain.Clarification{}, fmt.Errorf("create clarify request: %w", err)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Clarification{}, fmt.Errorf("clarify request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(CapClarify, resp); err != nil {
		return domain.Clarification{}, err
	}

	var out struct {
		Decision string   `json:"decision"`
		Message  string   `json:"message"`
		Options  []string `json:"options"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Clarification{}, fmt.Errorf("decode clarify response: %w", err)
	}
	if out.Decision == "" || out.Message == "" {
		return domain.Clarification{}, fmt.Errorf("clarify response missing decision or message")
	}

	return domain.Clarification{
		Decision: domain.ParseDecision(out.Decision),
		Message:  out.Message,
		Options:  out.Options,
	}, nil
}

// Transcribe runs speech-to-text on the uploaded asset.
func (c *Client) Transcribe(ctx context.Context, asset domain.AssetRef) (string, error) {
	u := c.endpoint(CapTranscribe, "/transcribe", url.Values{"file_name": {asset.Name}})

	ctx, cancel := context.WithTimeout(ctx, c.manifest.Timeout(CapTranscribe, c.requestTimeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return "", fmt.Errorf("create transcribe request: %w", err)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(CapTranscribe, resp); err != nil {
		return "", err
	}

	var out struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcribe response: %w", err)
	}
	return out.Transcript, nil
}

// Detect runs object detection on the uploaded asset. An empty object list
// is a valid result.
func (c *Client) Detect(ctx context.Context, asset domain.AssetRef) ([]string, error) {
	u := c.endpoint(CapDetect, "/detect", url.Values{"file_name": {asset.Name}})

	ctx, cancel := context.WithTimeout(ctx, c.manifest.Timeout(CapDetect, c.requestTimeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create detect request: %w", err)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(CapDetect, resp); err != nil {
		return nil, err
	}

	var out struct {
		Objects []string `json:"objects"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode detect response: %w", err)
	}
	return out.Objects, nil
}

// Generate produces a report of the given kind and returns the artifact path.
func (c *Client) Generate(ctx context.Context, asset domain.AssetRef, kind domain.ReportKind) (string, error) {
	u := c.endpoint(CapGenerate, "/generate", url.Values{
		"file_name":   {asset.Name},
		"report_type": {string(kind)},
	})

	ctx, cancel := context.WithTimeout(ctx, c.manifest.Timeout(CapGenerate, c.requestTimeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(CapGenerate, resp); err != nil {
		return "", err
	}

	var out struct {
		ReportPath string `json:"report_path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if out.ReportPath == "" {
		return "", fmt.Errorf("generate response missing report_path")
	}

	c.logger.Info("report generated", "kind", string(kind), "path", out.ReportPath)
	return out.ReportPath, nil
}

func checkStatus(capability string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{Capability: capability, StatusCode: resp.StatusCode, Body: string(body)}
}
