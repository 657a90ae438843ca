// Package plugind is a small Go client for the plugin host's admin API.
package plugind

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom
// http.Client. It is intentionally short to avoid hanging admin calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the plugind admin REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// PluginInfo describes one registered plugin as reported by the daemon.
type PluginInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Author       string   `json:"author,omitempty"`
	Description  string   `json:"description,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	State        string   `json:"state"`
}

// Capability describes one artifact an enabled plugin contributes.
type Capability struct {
	Owner       string          `json:"owner"`
	MountPrefix string          `json:"mount_prefix"`
	Detail      json.RawMessage `json:"detail,omitempty"`
}

// APIError represents a failed admin call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("plugind api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the admin API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// ListPlugins returns every registered plugin with its lifecycle state.
func (c *Client) ListPlugins(ctx context.Context) ([]PluginInfo, error) {
	var plugins []PluginInfo
	if err := c.get(ctx, "/api/v1/plugins", &plugins); err != nil {
		return nil, err
	}
	return plugins, nil
}

// GetPlugin returns the detail view for a single plugin.
func (c *Client) GetPlugin(ctx context.Context, name string) (PluginInfo, error) {
	var info PluginInfo
	if err := c.get(ctx, "/api/v1/plugins/"+url.PathEscape(name), &info); err != nil {
		return PluginInfo{}, err
	}
	return info, nil
}

// Enable asks the daemon to enable the named plugin.
func (c *Client) Enable(ctx context.Context, name string) error {
	return c.post(ctx, "/api/v1/plugins/"+url.PathEscape(name)+"/enable")
}

// Disable asks the daemon to disable the named plugin.
func (c *Client) Disable(ctx context.Context, name string) error {
	return c.post(ctx, "/api/v1/plugins/"+url.PathEscape(name)+"/disable")
}

// Uninstall removes the named plugin from the daemon's registry.
func (c *Client) Uninstall(ctx context.Context, name string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/plugins/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Capabilities lists the artifacts of one capability kind, for example
// "route" or "component".
func (c *Client) Capabilities(ctx context.Context, kind string) ([]Capability, error) {
	var caps []Capability
	if err := c.get(ctx, "/api/v1/capabilities/"+url.PathEscape(kind), &caps); err != nil {
		return nil, err
	}
	return caps, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, endpoint string) error {
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
