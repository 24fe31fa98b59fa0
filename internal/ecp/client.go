// Package ecp is a typed client for Roku's External Control Protocol, the
// HTTP/XML remote-control interface every Roku exposes on port 8060.
package ecp

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultPort is the fixed ECP port.
	DefaultPort = 8060

	// requestTimeout bounds every ECP round-trip. No call may hang past it;
	// callers decide whether to retry on their next cycle.
	requestTimeout = 5 * time.Second
)

// ErrRestricted is returned when the device answers 403: the owner has set
// "Control by mobile apps" to a restricted level. Distinct from being
// unreachable and never treated as a hard failure.
var ErrRestricted = errors.New("ecp: control by mobile apps is restricted")

// UnreachableError wraps timeouts and connection failures. Devices that
// are off or gone surface as this, not as protocol errors.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("ecp: %s unreachable: %v", e.Host, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// IsUnreachable reports whether err represents an unreachable device.
func IsUnreachable(err error) bool {
	var ue *UnreachableError
	return errors.As(err, &ue)
}

// Client talks ECP to a single device.
type Client struct {
	host       string
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for a device address. Accepts a bare IP or
// host:port; the default ECP port is appended when missing.
func NewClient(host string) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, fmt.Errorf("ecp: host is required")
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, fmt.Sprintf("%d", DefaultPort))
	}
	return &Client{
		host:    host,
		baseURL: "http://" + host,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}, nil
}

// Host returns the host:port this client targets.
func (c *Client) Host() string { return c.host }

// DeviceInfo fetches /query/device-info.
func (c *Client) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	var info DeviceInfo
	if err := c.getXML(ctx, "/query/device-info", &info); err != nil {
		return DeviceInfo{}, err
	}
	return info, nil
}

// Apps fetches the installed channel list.
func (c *Client) Apps(ctx context.Context) ([]App, error) {
	var env appsEnvelope
	if err := c.getXML(ctx, "/query/apps", &env); err != nil {
		return nil, err
	}
	for i := range env.Apps {
		env.Apps[i].Name = strings.TrimSpace(env.Apps[i].Name)
	}
	return env.Apps, nil
}

// ActiveApp fetches the foreground app. A nil result with nil error means
// the device answered but reported nothing in the foreground.
func (c *Client) ActiveApp(ctx context.Context) (*ActiveApp, error) {
	var env activeAppEnvelope
	if err := c.getXML(ctx, "/query/active-app", &env); err != nil {
		return nil, err
	}
	if env.Screensaver != nil {
		return &ActiveApp{
			ID:   env.Screensaver.ID,
			Name: strings.TrimSpace(env.Screensaver.Name),
			Type: "screensaver",
		}, nil
	}
	if env.App == nil {
		return nil, nil
	}
	typ := env.App.Type
	if typ == "" {
		typ = "appl"
	}
	return &ActiveApp{
		ID:   env.App.ID,
		Name: strings.TrimSpace(env.App.Name),
		Type: typ,
	}, nil
}

// MediaPlayer fetches transport state for the foreground app.
func (c *Client) MediaPlayer(ctx context.Context) (MediaPlayer, error) {
	var player MediaPlayer
	if err := c.getXML(ctx, "/query/media-player", &player); err != nil {
		return MediaPlayer{}, err
	}
	return player, nil
}

// Keypress sends a single remote key.
func (c *Client) Keypress(ctx context.Context, key string) error {
	if !ValidKey(key) {
		return fmt.Errorf("ecp: unsupported key %q", key)
	}
	return c.post(ctx, "/keypress/"+url.PathEscape(key))
}

// Launch starts a channel, optionally with a content id.
func (c *Client) Launch(ctx context.Context, appID, contentID string) error {
	if strings.TrimSpace(appID) == "" {
		return fmt.Errorf("ecp: app id is required")
	}
	path := "/launch/" + url.PathEscape(appID)
	if contentID != "" {
		path += "?contentID=" + url.QueryEscape(contentID)
	}
	return c.post(ctx, path)
}

// PowerOn wakes the device (TVs; sticks ignore it while headless).
func (c *Client) PowerOn(ctx context.Context) error {
	return c.Keypress(ctx, KeyPowerOn)
}

// PowerOff puts the device into standby.
func (c *Client) PowerOff(ctx context.Context) error {
	return c.Keypress(ctx, KeyPowerOff)
}

// IconURL returns the channel icon location. Plain URL assembly, no I/O.
func (c *Client) IconURL(appID string) string {
	return c.baseURL + "/query/icon/" + url.PathEscape(appID)
}

func (c *Client) getXML(ctx context.Context, path string, dest any) error {
	payload, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("ecp: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodPost, path)
	return err
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("ecp: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnreachableError{Host: c.host, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnreachableError{Host: c.host, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrRestricted
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("ecp: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	return payload, nil
}
