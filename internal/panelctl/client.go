package panelctl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edvin/panel/internal/core"
)

// Client talks to the panel REST API under /api/v1.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// APIError is a non-2xx reply. Kind carries the service error kind when the
// server reported one.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Kind       core.Kind
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s %s: status %d (%s): %s", e.Method, e.Path, e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind core.Kind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Get decodes the reply into out when out is non-nil. The same holds for
// Post, Put and Delete.
func (c *Client) Get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *Client) Post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *Client) Put(path string, body, out any) error {
	return c.do(http.MethodPut, path, body, out)
}

func (c *Client) Delete(path string) error {
	return c.do(http.MethodDelete, path, nil, nil)
}

func (c *Client) do(method, path string, body, out any) error {
	url := c.BaseURL + "/api/v1" + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var e struct {
			Error string    `json:"error"`
			Kind  core.Kind `json:"kind"`
		}
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
			apiErr.Kind = e.Kind
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse %s %s response: %w", method, path, err)
	}
	return nil
}
