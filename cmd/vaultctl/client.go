package main

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

	apihttp "tranche-vault/internal/api/http"
)

// APIError is a non-2xx response from the vault service.
type APIError struct {
	Status int
	Body   apihttp.ErrorBody
}

func (e *APIError) Error() string {
	if e.Body.Code != "" {
		return fmt.Sprintf("%d %s: %s (%s)", e.Status, e.Body.Kind, e.Body.Message, e.Body.Code)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Body.Kind, e.Body.Message)
}

// Client calls the vault HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient constructs a client for baseURL.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("vaultctl: server url required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Do sends body as JSON and returns the raw response payload.
func (c *Client) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, &apiErr.Body); err != nil || apiErr.Body.Message == "" {
			apiErr.Body.Kind = "http"
			apiErr.Body.Message = strings.TrimSpace(string(data))
		}
		return nil, apiErr
	}
	return data, nil
}

// DoJSON sends body and decodes the response into out.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	data, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
