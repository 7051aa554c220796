package hapyperion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrMissingHost   = fmt.Errorf("hyperion host not specified")
	ErrCommandFailed = fmt.Errorf("hyperion command failed")
)

const HYPERION_RPC_PATH = "/json-rpc"

// Component names understood by the componentstate command
const (
	COMPONENT_ALL       = "ALL"
	COMPONENT_LEDDEVICE = "LEDDEVICE"
)

// Returned when the device answered with "success": false
type CommandError struct {
	Command string
	Reason  string
}

func (e *CommandError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s", ErrCommandFailed, e.Command)
	}
	return fmt.Sprintf("%s: %s: %s", ErrCommandFailed, e.Command, e.Reason)
}

func (e *CommandError) Unwrap() error { return ErrCommandFailed }

// Client for the Hyperion JSON-RPC over HTTP API.
// Only the commands needed to drive a single light are implemented.
type Client struct {
	url        string
	httpClient *http.Client
}

// Creates a Client for the endpoint described by cfg.
// The endpoint URL is computed once; a missing host returns ErrMissingHost.
func NewClient(cfg LightConfig) (*Client, error) {
	cfg, err := cfg.WithDefaults()
	if err != nil {
		return nil, err
	}

	u, err := endpointURL(cfg.Host, cfg.Port)
	if err != nil {
		return nil, err
	}

	return &Client{
		url:        u,
		httpClient: &http.Client{Timeout: cfg.Timeout.Duration()},
	}, nil
}

// Builds the JSON-RPC URL from a host, which may carry an http(s) scheme,
// and a port. IPv6 literals are accepted with or without brackets.
func endpointURL(host string, port int) (string, error) {
	scheme := "http"
	if i := strings.Index(host, "://"); i >= 0 {
		scheme, host = strings.ToLower(host[:i]), host[i+3:]
	}
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", scheme)
	}

	host = strings.TrimSuffix(host, "/")
	if strings.Contains(host, "/") {
		return "", fmt.Errorf("host %q must not contain a path", host)
	}

	// a bare IPv6 address fails to split, as does a host without port
	if _, _, err := net.SplitHostPort(host); err == nil {
		return "", fmt.Errorf("host %q must not contain a port, use the port option", host)
	}

	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return "", ErrMissingHost
	}

	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   HYPERION_RPC_PATH,
	}
	return u.String(), nil
}

// Returns the endpoint URL requests are posted to
func (c *Client) URL() string { return c.url }

// Subset of the serverinfo "info" object.
// Decoding is lenient: a field or list entry that has an unexpected shape
// reads as absent instead of failing the whole response.
type ServerInfo struct {
	Components []Component
	Adjustment []Adjustment
}

type Component struct {
	Name    string
	Enabled bool
}

type Adjustment struct {
	Brightness *float64
}

func (si *ServerInfo) UnmarshalJSON(b []byte) error {
	// each field on its own, so one malformed field leaves the other intact
	var obj map[string]json.RawMessage
	if json.Unmarshal(b, &obj) != nil {
		return nil
	}

	var comps, adjs []json.RawMessage
	_ = json.Unmarshal(obj["components"], &comps)
	_ = json.Unmarshal(obj["adjustment"], &adjs)

	// keep list positions, the first component is significant
	si.Components = make([]Component, len(comps))
	for i, raw := range comps {
		var entry map[string]any
		if json.Unmarshal(raw, &entry) != nil {
			continue
		}
		si.Components[i].Name, _ = entry["name"].(string)
		si.Components[i].Enabled = truthy(entry["enabled"])
	}

	si.Adjustment = make([]Adjustment, len(adjs))
	for i, raw := range adjs {
		var entry map[string]any
		if json.Unmarshal(raw, &entry) != nil {
			continue
		}
		si.Adjustment[i].Brightness = number(entry["brightness"])
	}

	return nil
}

// Coerces a decoded JSON value to bool the way JavaScript's Boolean() does
func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case string:
		return v != ""
	}
	// objects and arrays
	return true
}

// Returns a decoded JSON number, or a string holding one, as *float64
func number(v any) *float64 {
	switch v := v.(type) {
	case float64:
		return &v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return &f
		}
	}
	return nil
}

// Finds a component by name
func (si *ServerInfo) Component(name string) (Component, bool) {
	for _, c := range si.Components {
		if c.Name == name {
			return c, true
		}
	}
	return Component{}, false
}

type response struct {
	Command string          `json:"command"`
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Info    json.RawMessage `json:"info"`
}

// Issues the serverinfo command
func (c *Client) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	resp, err := c.call(ctx, "serverinfo", map[string]any{"command": "serverinfo"})
	if err != nil {
		return nil, err
	}

	info := &ServerInfo{}
	if len(resp.Info) > 0 {
		if err := json.Unmarshal(resp.Info, info); err != nil {
			return nil, fmt.Errorf("parsing serverinfo: %w", err)
		}
	}
	return info, nil
}

// Enables or disables a device component
func (c *Client) SetComponentState(ctx context.Context, component string, state bool) error {
	_, err := c.call(ctx, "componentstate", map[string]any{
		"command": "componentstate",
		"componentstate": map[string]any{
			"component": component,
			"state":     state,
		},
	})
	return err
}

// Sets the brightness adjustment (0-100)
func (c *Client) SetAdjustment(ctx context.Context, brightness int) error {
	_, err := c.call(ctx, "adjustment", map[string]any{
		"command": "adjustment",
		"adjustment": map[string]any{
			"brightness": brightness,
		},
	})
	return err
}

// Sets a static color at the given priority
func (c *Client) SetColor(ctx context.Context, priority int, r, g, b uint8) error {
	_, err := c.call(ctx, "color", map[string]any{
		"command":  "color",
		"priority": priority,
		"color":    []int{int(r), int(g), int(b)},
	})
	return err
}

// Posts a single command. Transport and decoding problems are returned as-is,
// a response with success=false is returned as a *CommandError.
func (c *Client) call(ctx context.Context, command string, payload map[string]any) (*response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s request: %w", command, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending %s: %w", command, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", command, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, fmt.Errorf("hyperion API error %d: %s", httpResp.StatusCode, respBody)
	}

	resp := &response{}
	if err := json.Unmarshal(respBody, resp); err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", command, err)
	}

	if !resp.Success {
		return resp, &CommandError{Command: command, Reason: resp.Error}
	}
	return resp, nil
}

// Reports whether err is a device-side command failure rather than a transport error
func IsCommandError(err error) bool {
	return errors.Is(err, ErrCommandFailed)
}
