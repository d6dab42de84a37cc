// Package client talks to the booth API for the command line client.
package client

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ErrBusy is returned by Capture when the booth is already capturing.
var ErrBusy = errors.New("a capture is already running")

// Client is an API client. Token is sent as a bearer token on device
// calls and AdminKey on admin calls.
type Client struct {
	BaseURL  string
	HTTP     *http.Client
	Token    string
	AdminKey string
}

// New returns a client for baseURL. If caFile is set the server
// certificate must chain to it.
func New(baseURL, caFile string) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA cert")
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: caPool, MinVersion: tls.VersionTLS12}
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Transport: transport},
	}, nil
}

// LoginResult is the server response to a successful login.
type LoginResult struct {
	Token      string    `json:"token"`
	DeviceName string    `json:"deviceName"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Session is a created photo session.
type Session struct {
	SessionID   string    `json:"sessionId"`
	SessionName string    `json:"sessionName"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// StoredFrame is a captured photo as reported by the done event.
type StoredFrame struct {
	Index   int    `json:"index"`
	PhotoID string `json:"photoId"`
	Size    int64  `json:"size"`
	Digest  string `json:"digest"`
}

// CaptureEvent is one line of the capture stream.
type CaptureEvent struct {
	Phase  string        `json:"phase"`
	Count  int           `json:"count,omitempty"`
	Index  int           `json:"index,omitempty"`
	Frames []StoredFrame `json:"frames,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

// Login exchanges device credentials for a token.
func (c *Client) Login(ctx context.Context, deviceID, password string) (LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/api/auth/login", authNone,
		map[string]string{"deviceId": deviceID, "password": password}, &out)
	return out, err
}

// Verify returns the device id of token.
func (c *Client) Verify(ctx context.Context, token string) (string, error) {
	var out struct {
		DeviceID string `json:"deviceId"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/verify", authNone, map[string]string{"token": token}, &out)
	return out.DeviceID, err
}

// CreateSession opens a photo session.
func (c *Client) CreateSession(ctx context.Context, name string) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/api/sessions", authDevice, map[string]string{"sessionName": name}, &out)
	return out, err
}

// Capture runs a capture for the session and calls onEvent for every
// event. It returns the stored frames of the done event.
func (c *Client) Capture(ctx context.Context, sessionID string, onEvent func(CaptureEvent)) ([]StoredFrame, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/capture", authDevice, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capture failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil, ErrBusy
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var ev CaptureEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Phase {
		case "done":
			return ev.Frames, nil
		case "error":
			return nil, errors.New(ev.Error)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("capture stream: %w", err)
	}
	return nil, errors.New("capture stream ended without a result")
}

// SelectPhoto shares photoID and returns its download URL.
func (c *Client) SelectPhoto(ctx context.Context, sessionID, photoID string) (string, error) {
	var out struct {
		ShareURL string `json:"shareUrl"`
	}
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/select", authDevice,
		map[string]string{"photoId": photoID}, &out)
	return out.ShareURL, err
}

// CreateDevice registers a device and returns its record id.
func (c *Client) CreateDevice(ctx context.Context, deviceID, password, name string) (string, error) {
	var out struct {
		RecordID string `json:"recordId"`
	}
	err := c.do(ctx, http.MethodPost, "/api/admin/devices", authAdmin,
		map[string]string{"deviceId": deviceID, "password": password, "deviceName": name}, &out)
	return out.RecordID, err
}

// SetActive enables or disables a device.
func (c *Client) SetActive(ctx context.Context, deviceID string, active bool) error {
	return c.do(ctx, http.MethodPost, "/api/admin/devices/active", authAdmin,
		map[string]any{"deviceId": deviceID, "isActive": active}, nil)
}

// RevealPassword reads the password of a just created device. It works
// once per device.
func (c *Client) RevealPassword(ctx context.Context, deviceID string) (string, error) {
	var out struct {
		Password string `json:"password"`
	}
	err := c.do(ctx, http.MethodGet, "/api/admin/devices/"+url.PathEscape(deviceID)+"/password", authAdmin, nil, &out)
	return out.Password, err
}

type authMode int

const (
	authNone authMode = iota
	authDevice
	authAdmin
)

func (c *Client) newRequest(ctx context.Context, method, path string, auth authMode, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch auth {
	case authDevice:
		req.Header.Set("Authorization", "Bearer "+c.Token)
	case authAdmin:
		req.Header.Set("X-Admin-Key", c.AdminKey)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, auth authMode, body, out any) error {
	req, err := c.newRequest(ctx, method, path, auth, body)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
