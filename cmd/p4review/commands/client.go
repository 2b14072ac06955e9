package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// requestTimeout bounds a single API call.
const requestTimeout = 30 * time.Second

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status   int
	Message  string
	Messages map[string]string
	Files    []string
}

// Error implements error.
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "server returned %d", e.Status)
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	fields := make([]string, 0, len(e.Messages))
	for field := range e.Messages {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Fprintf(&b, "\n  %s: %s", field, e.Messages[field])
	}
	for _, f := range e.Files {
		fmt.Fprintf(&b, "\n  %s", f)
	}

	return b.String()
}

// Client calls the p4reviewd JSON API.
type Client struct {
	base *url.URL
	user string
	http *http.Client
}

// NewClient returns a client for the API at base acting as user.
func NewClient(base, user string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q needs a scheme and host", base)
	}

	return &Client{
		base: u,
		user: user,
		http: &http.Client{Timeout: requestTimeout},
	}, nil
}

// newClient builds a Client from the global flags.
func newClient() (*Client, error) {
	return NewClient(serverURL, userName)
}

// Get fetches path and decodes the JSON answer into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values,
	out any) error {

	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post sends body as JSON to path and decodes the answer into out. A nil
// body sends an empty request.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// PostForm sends form values to path.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values,
	out any) error {

	return c.send(ctx, http.MethodPost, path, nil,
		"application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), out)
}

func (c *Client) do(ctx context.Context, method, path string,
	query url.Values, body, out any) error {

	var (
		r           io.Reader
		contentType string
	)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
		contentType = "application/json"
	}

	return c.send(ctx, method, path, query, contentType, r, out)
}

func (c *Client) send(ctx context.Context, method, path string,
	query url.Values, contentType string, body io.Reader, out any) error {

	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.user != "" {
		req.Header.Set("X-P4-User", c.user)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error    string            `json:"error"`
			Messages map[string]string `json:"messages"`
			Files    []string          `json:"files"`
		}
		if json.Unmarshal(data, &body) == nil {
			apiErr.Message = body.Error
			apiErr.Messages = body.Messages
			apiErr.Files = body.Files
		}

		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
