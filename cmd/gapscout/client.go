package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kalambet/gapscout/internal/config"
)

// analyzeTimeout covers a full pipeline run: every source search plus the model call.
const analyzeTimeout = 3 * time.Minute

type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	baseURL := os.Getenv("GAPSCOUT_SERVER_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	}

	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      cfg.Auth.APIToken,
		httpClient: &http.Client{Timeout: analyzeTimeout},
	}, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is gapscout serve running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *apiClient) patch(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPatch, path, body)
}

func (c *apiClient) delete(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Sources json.RawMessage `json:"sources"`
	Error   string          `json:"error"`
}

// decodeEnvelope reads a server response and unwraps its data into v. A
// failed envelope becomes an error carrying the server's message and status.
func decodeEnvelope(resp *http.Response, v any) (envelope, error) {
	defer resp.Body.Close()

	var env envelope
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return env, fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
	}
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 400 {
			return env, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return env, fmt.Errorf("decoding response: %w", err)
	}
	if resp.StatusCode >= 400 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return env, fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}
	if v != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return env, fmt.Errorf("decoding data: %w", err)
		}
	}
	return env, nil
}
