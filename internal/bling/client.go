package bling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// DefaultBaseURL is the Bling v3 REST root.
const DefaultBaseURL = "https://www.bling.com.br/Api/v3"

const userAgent = "blingpick/0.1"

// maxErrorBody caps how much of an error response is kept in APIError.
const maxErrorBody = 4096

// TokenSource provides Bling bearer tokens. Defined at the consumer per Go
// convention "accept interfaces, return structs". *TokenManager implements it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshAfterReject(ctx context.Context, rejected string) (string, error)
}

// Client is an HTTP client for the Bling v3 API. Every request carries the
// current bearer token; a 401 triggers exactly one forced refresh and one
// replay. No other retries are made.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// NewClient creates a Bling API client.
func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
	}
}

// Do executes a request against the API. body, when non-nil, is encoded as
// JSON once so the 401 replay sends identical bytes. On a 2xx response the
// caller must close the body; any other status is returned as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	var payload []byte

	if body != nil {
		var err error

		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("bling: encoding %s %s body: %w", method, path, err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	tok, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("bling: obtaining token: %w", err)
	}

	resp, err := c.doOnce(ctx, method, target, payload, tok)
	if err != nil {
		return nil, fmt.Errorf("bling: %s %s: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)

		c.logger.Info("access token rejected, refreshing and replaying",
			slog.String("method", method),
			slog.String("path", path),
		)

		tok, err = c.tokens.RefreshAfterReject(ctx, tok)
		if err != nil {
			return nil, fmt.Errorf("bling: refreshing after 401: %w", err)
		}

		resp, err = c.doOnce(ctx, method, target, payload, tok)
		if err != nil {
			return nil, fmt.Errorf("bling: %s %s (replay): %w", method, path, err)
		}
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	return nil, c.apiError(method, path, resp)
}

// doOnce executes a single HTTP request with the given bearer token.
func (c *Client) doOnce(ctx context.Context, method, target string, payload []byte, tok string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) apiError(method, path string, resp *http.Response) error {
	defer resp.Body.Close()

	errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	c.logger.Warn("bling request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(errBody),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// getJSON performs a GET and decodes Bling's {"data": ...} envelope into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	envelope := struct {
		Data any `json:"data"`
	}{Data: out}

	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("bling: decoding %s response: %w", path, err)
	}

	return nil
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
