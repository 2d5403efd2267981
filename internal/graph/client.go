package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the production Graph API endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// TokenSource supplies bearer tokens for one tenant credential. Implementations
// must serialize refreshes so that concurrent callers never race duplicate
// token exchanges.
type TokenSource interface {
	// Token returns a token valid for at least a short safety margin.
	Token(ctx context.Context) (string, error)
	// InvalidateToken discards the cached token and acquires a fresh one.
	// Called after a 401 response.
	InvalidateToken(ctx context.Context) (string, error)
}

// ClientConfig holds the tunables of a Client.
type ClientConfig struct {
	BaseURL     string
	HTTPClient  *http.Client
	RateLimit   RateLimitConfig
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultClientConfig returns the production defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:     DefaultBaseURL,
		RateLimit:   DefaultRateLimit,
		MaxRetries:  3,
		BackoffBase: 2 * time.Second,
		BackoffMax:  60 * time.Second,
	}
}

// Client is the generic Graph request layer: it attaches bearer tokens,
// retries transient failures with bounded backoff, refreshes the token once
// on 401 and surfaces typed errors for everything else.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *RateLimiter
	tokens      TokenSource
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
}

// NewClient creates a Graph client for one tenant credential.
func NewClient(cfg ClientConfig, tokens TokenSource) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 60 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:  cfg.HTTPClient,
		limiter:     NewRateLimiter(cfg.RateLimit),
		tokens:      tokens,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		backoffMax:  cfg.BackoffMax,
	}
}

// endpoint resolves a path against the base URL. Server-supplied links
// (nextLink, deltaLink) are already absolute and pass through untouched.
func (c *Client) endpoint(path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	return c.baseURL + path
}

// do performs one request with retry, token refresh and backoff handling.
// The returned body is fully read.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("graph: encode request body: %w", err)
		}
	}

	endpoint := c.endpoint(path)
	refreshed := false

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, fmt.Errorf("graph: create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Network failure, transient
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
			}
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("graph: read response: %w", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized && !refreshed:
			// Invalidate the cached token and retry exactly once.
			refreshed = true
			if _, err := c.tokens.InvalidateToken(ctx); err != nil {
				return nil, err
			}
			continue

		case IsRetryable(resp.StatusCode):
			delay := retryDelay(resp.Header)
			if delay <= 0 {
				delay = c.backoff(attempt)
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				c.limiter.RecordRateLimitError(delay)
			}
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, WrapError(resp.StatusCode))
			}
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode >= 400:
			if msg := apiErrorMessage(respBody); msg != "" {
				return nil, fmt.Errorf("%w: %s", WrapError(resp.StatusCode), msg)
			}
			return nil, WrapError(resp.StatusCode)
		}

		return respBody, nil
	}
}

// backoff returns an exponential delay with jitter, capped at backoffMax.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.backoffBase << uint(attempt)
	if delay > c.backoffMax {
		delay = c.backoffMax
	}
	return delay + time.Duration(rand.Int63n(int64(delay)/2+1))
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// retryDelay parses a server-supplied Retry-After header.
func retryDelay(h http.Header) time.Duration {
	value := h.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// apiErrorMessage extracts the error message from a Graph error body.
func apiErrorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return parsed.Error.Message
}

// listResponse is the envelope of a paginated list endpoint.
type listResponse struct {
	Value    json.RawMessage `json:"value"`
	NextLink string          `json:"@odata.nextLink"`
}

// ListMessagesDelta fetches one page of a folder delta query. An empty link
// starts a new (full) round; a server-supplied nextLink or deltaLink resumes
// it. The terminal page carries the delta cursor for the next sync.
func (c *Client) ListMessagesDelta(ctx context.Context, mailbox, folder, link string) (*DeltaPage, error) {
	endpoint := link
	if endpoint == "" {
		endpoint = fmt.Sprintf("/users/%s/mailFolders/%s/messages/delta",
			url.PathEscape(mailbox), url.PathEscape(folder))
	}

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var page DeltaPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("graph: decode delta page: %w", err)
	}
	return &page, nil
}

// GetMessage fetches full message details including body.
func (c *Client) GetMessage(ctx context.Context, mailbox, messageID string) (*Message, error) {
	endpoint := fmt.Sprintf("/users/%s/messages/%s",
		url.PathEscape(mailbox), url.PathEscape(messageID))

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("graph: decode message: %w", err)
	}
	return &msg, nil
}

// ListAttachments fetches all attachments of a message, following pagination.
func (c *Client) ListAttachments(ctx context.Context, mailbox, messageID string) ([]Attachment, error) {
	endpoint := fmt.Sprintf("/users/%s/messages/%s/attachments",
		url.PathEscape(mailbox), url.PathEscape(messageID))

	var attachments []Attachment
	for endpoint != "" {
		body, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("graph: decode attachment page: %w", err)
		}
		var items []Attachment
		if len(page.Value) > 0 {
			if err := json.Unmarshal(page.Value, &items); err != nil {
				return nil, fmt.Errorf("graph: decode attachments: %w", err)
			}
		}
		attachments = append(attachments, items...)
		endpoint = page.NextLink
	}
	return attachments, nil
}

// ListFolders fetches all mail folders of a mailbox, following pagination.
func (c *Client) ListFolders(ctx context.Context, mailbox string) ([]MailFolder, error) {
	endpoint := fmt.Sprintf("/users/%s/mailFolders", url.PathEscape(mailbox))

	var folders []MailFolder
	for endpoint != "" {
		body, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("graph: decode folder page: %w", err)
		}
		var items []MailFolder
		if len(page.Value) > 0 {
			if err := json.Unmarshal(page.Value, &items); err != nil {
				return nil, fmt.Errorf("graph: decode folders: %w", err)
			}
		}
		folders = append(folders, items...)
		endpoint = page.NextLink
	}
	return folders, nil
}

// SendMail sends a message as the given mailbox address. The tenant
// credential must carry an application-level send permission.
func (c *Client) SendMail(ctx context.Context, mailbox string, req *SendRequest) error {
	endpoint := fmt.Sprintf("/users/%s/sendMail", url.PathEscape(mailbox))
	_, err := c.do(ctx, http.MethodPost, endpoint, req)
	return err
}

// MarkRead marks a remote message as read.
func (c *Client) MarkRead(ctx context.Context, mailbox, messageID string) error {
	endpoint := fmt.Sprintf("/users/%s/messages/%s",
		url.PathEscape(mailbox), url.PathEscape(messageID))
	_, err := c.do(ctx, http.MethodPatch, endpoint, map[string]bool{"isRead": true})
	return err
}
