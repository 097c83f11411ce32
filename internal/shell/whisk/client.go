// Package whisk is a client for the OpenWhisk-compatible REST API of the
// functions platform. It covers the calls the deployer makes: package and
// action management, activation lookup and blocking invocation.
package whisk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultNamespace is the path placeholder for the namespace owning the key.
const DefaultNamespace = "_"

// pageSize is the largest page the list endpoints return.
const pageSize = 200

// Config holds platform client configuration.
type Config struct {
	APIHost   string // e.g. "https://faas.example.com"
	Auth      string // "uuid:key"
	Namespace string // defaults to "_"
	Timeout   time.Duration
}

// Client talks to one namespace of the platform.
type Client struct {
	baseURL    string
	namespace  string
	user       string
	key        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new platform client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	user, key, ok := strings.Cut(cfg.Auth, ":")
	if !ok || user == "" || key == "" {
		return nil, ErrInvalidAuth
	}
	host := strings.TrimRight(cfg.APIHost, "/")
	if host == "" {
		return nil, fmt.Errorf("api host is required")
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:   host + "/api/v1/namespaces/" + url.PathEscape(ns),
		namespace: ns,
		user:      user,
		key:       key,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "whisk"),
	}, nil
}

// =============================================================================
// Packages
// =============================================================================

// GetPackage fetches a package, including the list of its actions.
func (c *Client) GetPackage(ctx context.Context, name string) (*Package, error) {
	var pkg Package
	if err := c.do(ctx, "get package", http.MethodGet, "/packages/"+escapeName(name), nil, nil, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// UpdatePackage creates or overwrites a package.
func (c *Client) UpdatePackage(ctx context.Context, name string, pkg Package) (*Package, error) {
	q := url.Values{"overwrite": {"true"}}
	var out Package
	if err := c.do(ctx, "update package", http.MethodPut, "/packages/"+escapeName(name), q, pkg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePackage deletes an empty package.
func (c *Client) DeletePackage(ctx context.Context, name string) error {
	return c.do(ctx, "delete package", http.MethodDelete, "/packages/"+escapeName(name), nil, nil, nil)
}

// ListPackages returns every package of the namespace.
func (c *Client) ListPackages(ctx context.Context) ([]Package, error) {
	var all []Package
	for skip := 0; ; skip += pageSize {
		var page []Package
		q := url.Values{"limit": {strconv.Itoa(pageSize)}, "skip": {strconv.Itoa(skip)}}
		if err := c.do(ctx, "list packages", http.MethodGet, "/packages", q, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// =============================================================================
// Actions
// =============================================================================

// GetAction fetches an action without its code. name may be "pkg/action".
func (c *Client) GetAction(ctx context.Context, name string) (*Action, error) {
	q := url.Values{"code": {"false"}}
	var action Action
	if err := c.do(ctx, "get action", http.MethodGet, "/actions/"+escapeName(name), q, nil, &action); err != nil {
		return nil, err
	}
	return &action, nil
}

// UpdateAction creates or overwrites an action.
func (c *Client) UpdateAction(ctx context.Context, name string, action Action) (*Action, error) {
	q := url.Values{"overwrite": {"true"}}
	var out Action
	if err := c.do(ctx, "update action", http.MethodPut, "/actions/"+escapeName(name), q, action, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAction deletes an action.
func (c *Client) DeleteAction(ctx context.Context, name string) error {
	return c.do(ctx, "delete action", http.MethodDelete, "/actions/"+escapeName(name), nil, nil, nil)
}

// ListActions returns every action of the namespace. The Namespace field of
// a packaged action is "ns/pkg".
func (c *Client) ListActions(ctx context.Context) ([]Action, error) {
	var all []Action
	for skip := 0; ; skip += pageSize {
		var page []Action
		q := url.Values{"limit": {strconv.Itoa(pageSize)}, "skip": {strconv.Itoa(skip)}}
		if err := c.do(ctx, "list actions", http.MethodGet, "/actions", q, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// InvokeAction runs an action blocking and returns its result. A fully
// qualified name ("/ns/pkg/action") targets another namespace.
func (c *Client) InvokeAction(ctx context.Context, name string, params map[string]any) (json.RawMessage, error) {
	q := url.Values{"blocking": {"true"}, "result": {"true"}}
	base := c.baseURL
	if strings.HasPrefix(name, "/") {
		ns, rest, _ := strings.Cut(strings.TrimPrefix(name, "/"), "/")
		base = strings.TrimSuffix(c.baseURL, "/"+url.PathEscape(c.namespace)) + "/" + url.PathEscape(ns)
		name = rest
	}
	if params == nil {
		params = map[string]any{}
	}
	var out json.RawMessage
	if err := c.doURL(ctx, "invoke action", http.MethodPost, base+"/actions/"+escapeName(name), q, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// Activations
// =============================================================================

// GetActivation fetches an activation record. A record that is not yet
// available yields ErrNotFound.
func (c *Client) GetActivation(ctx context.Context, id string) (*Activation, error) {
	var act Activation
	if err := c.do(ctx, "get activation", http.MethodGet, "/activations/"+url.PathEscape(id), nil, nil, &act); err != nil {
		return nil, err
	}
	return &act, nil
}

// =============================================================================
// Helper Methods
// =============================================================================

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	return c.doURL(ctx, op, method, c.baseURL+path, query, in, out)
}

func (c *Client) doURL(ctx context.Context, op, method, target string, query url.Values, in, out any) error {
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("platform request", "op", op, "method", method, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{Op: op, Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.user, c.key)
}

// errorMessage extracts the platform's {"error": "..."} message when present.
func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}

// escapeName escapes each segment of a possibly packaged name.
func escapeName(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
