package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTripperFunc lets tests stand in for the HTTP transport.
type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(fn roundTripperFunc) *Client {
	return &Client{
		BaseURL:  "http://booth.test",
		HTTP:     &http.Client{Transport: fn, Timeout: time.Second},
		Token:    "tok",
		AdminKey: "adm",
	}
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestLogin_Success(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/api/auth/login", req.URL.Path)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		assert.Empty(t, req.Header.Get("Authorization"))
		b, _ := io.ReadAll(req.Body)
		assert.JSONEq(t, `{"deviceId":"DEV1","password":"secret"}`, string(b))
		return respond(200, `{"success":true,"token":"T","deviceName":"iPad A","expiresAt":"2026-06-02T20:00:00Z"}`), nil
	})

	res, err := c.Login(context.Background(), "DEV1", "secret")
	require.NoError(t, err)
	assert.Equal(t, "T", res.Token)
	assert.Equal(t, "iPad A", res.DeviceName)
}

func TestLogin_Rejected(t *testing.T) {
	c := newTestClient(func(*http.Request) (*http.Response, error) {
		return respond(401, `{"success":false,"error":"device id or password is incorrect"}`), nil
	})

	_, err := c.Login(context.Background(), "DEV1", "bad")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
	assert.Equal(t, "device id or password is incorrect", apiErr.Message)
}

func TestDo_NetworkError(t *testing.T) {
	c := newTestClient(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("network down")
	})

	_, err := c.Verify(context.Background(), "T")
	if err == nil || !strings.Contains(err.Error(), "request failed") {
		t.Errorf("expected network failure, got %v", err)
	}
}

func TestDo_PlainTextError(t *testing.T) {
	c := newTestClient(func(*http.Request) (*http.Response, error) {
		return respond(415, "Unsupported Media Type\n"), nil
	})

	err := c.SetActive(context.Background(), "DEV1", true)
	assert.EqualError(t, err, "server error (415): Unsupported Media Type")
}

func TestAuthHeaders(t *testing.T) {
	var seen []string
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		seen = append(seen, req.URL.Path+" "+req.Header.Get("Authorization")+" "+req.Header.Get("X-Admin-Key"))
		return respond(200, `{"success":true}`), nil
	})
	ctx := context.Background()

	_, _ = c.CreateSession(ctx, "party")
	_, _ = c.CreateDevice(ctx, "DEV1", "p", "n")
	_, _ = c.RevealPassword(ctx, "DEV1")

	assert.Equal(t, []string{
		"/api/sessions Bearer tok ",
		"/api/admin/devices  adm",
		"/api/admin/devices/DEV1/password  adm",
	}, seen)
}

func TestPathSegmentsEscaped(t *testing.T) {
	var seen []string
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		seen = append(seen, req.URL.EscapedPath()+" query="+req.URL.RawQuery+" fragment="+req.URL.Fragment)
		if strings.HasSuffix(req.URL.Path, "/capture") {
			return respond(200, `{"phase":"done","frames":[]}`), nil
		}
		return respond(200, `{"success":true}`), nil
	})
	ctx := context.Background()

	_, _ = c.RevealPassword(ctx, "booth/1?x#y")
	_, _ = c.SelectPhoto(ctx, "../s 1", "p1")
	_, _ = c.Capture(ctx, "s#1", nil)

	assert.Equal(t, []string{
		"/api/admin/devices/booth%2F1%3Fx%23y/password query= fragment=",
		"/api/sessions/..%2Fs%201/select query= fragment=",
		"/api/sessions/s%231/capture query= fragment=",
	}, seen)
}

func TestCapture_Stream(t *testing.T) {
	stream := strings.Join([]string{
		`{"phase":"countdown","count":1}`,
		`{"phase":"capturing","index":1}`,
		`{"phase":"done","frames":[{"index":1,"photoId":"p1"},{"index":2,"photoId":"p2"},{"index":3,"photoId":"p3"}]}`,
	}, "\n")
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/api/sessions/s1/capture", req.URL.Path)
		return respond(200, stream), nil
	})

	var phases []string
	frames, err := c.Capture(context.Background(), "s1", func(ev CaptureEvent) { phases = append(phases, ev.Phase) })
	require.NoError(t, err)
	assert.Equal(t, []string{"countdown", "capturing", "done"}, phases)
	require.Len(t, frames, 3)
	assert.Equal(t, "p3", frames[2].PhotoID)
}

func TestCapture_ErrorEvent(t *testing.T) {
	c := newTestClient(func(*http.Request) (*http.Response, error) {
		return respond(200, `{"phase":"error","error":"capture failed, please start again"}`+"\n"), nil
	})

	_, err := c.Capture(context.Background(), "s1", nil)
	assert.EqualError(t, err, "capture failed, please start again")
}

func TestCapture_Busy(t *testing.T) {
	c := newTestClient(func(*http.Request) (*http.Response, error) {
		return respond(409, `{"success":false,"error":"a capture is already running"}`), nil
	})

	_, err := c.Capture(context.Background(), "s1", nil)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestCapture_Truncated(t *testing.T) {
	c := newTestClient(func(*http.Request) (*http.Response, error) {
		return respond(200, `{"phase":"countdown","count":3}`+"\n"), nil
	})

	_, err := c.Capture(context.Background(), "s1", nil)
	assert.Error(t, err)
}

func TestNew_CAFile(t *testing.T) {
	_, err := New("https://booth.test", filepath.Join(t.TempDir(), "missing.crt"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.crt")
	require.NoError(t, os.WriteFile(bad, []byte("not pem"), 0o600))
	_, err = New("https://booth.test", bad)
	assert.EqualError(t, err, "failed to parse CA cert")

	c, err := New("https://booth.test/", "")
	require.NoError(t, err)
	assert.Equal(t, "https://booth.test", c.BaseURL)
}

func TestTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	now := time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)

	_, err := LoadToken(path, now)
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, SaveToken(path, LoginResult{Token: "T", DeviceName: "iPad A", ExpiresAt: now.Add(time.Hour)}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	res, err := LoadToken(path, now)
	require.NoError(t, err)
	assert.Equal(t, "T", res.Token)

	_, err = LoadToken(path, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestPrompter_NonTerminal(t *testing.T) {
	var out strings.Builder
	p := &Prompter{In: strings.NewReader("DEV1\n secret \n"), Out: &out, FD: -1}

	assert.Equal(t, "DEV1", p.Line("Device ID: "))
	pw, err := p.Password("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "secret", pw)
	assert.Equal(t, "Device ID: Password: ", out.String())
}
