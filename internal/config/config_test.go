package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	opts, err := Load([]string{"--config", "", "--auth-secret", "s3cret"}, envFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", opts.Address)
	assert.Equal(t, 24*time.Hour, opts.TokenTTL)
	assert.Equal(t, 24*time.Hour, opts.PhotoTTL)
	assert.Equal(t, time.Hour, opts.CleanupInterval)
	assert.Equal(t, "media", opts.MediaDir)
	assert.Equal(t, "info", opts.LogLevel)
}

func TestLoad_MissingSecret(t *testing.T) {
	_, err := Load([]string{"--config", ""}, envFrom(nil))
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestLoad_JSONWithComments(t *testing.T) {
	path := writeFile(t, "booth.json", `{
		// booth in the hall
		"address": ":9090",
		"auth_secret": "from-file",
		"token_ttl": "2h",
		"public_url": "https://booth.local/",
	}`)

	opts, err := Load([]string{"-c", path}, envFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, ":9090", opts.Address)
	assert.Equal(t, "from-file", opts.AuthSecret)
	assert.Equal(t, 2*time.Hour, opts.TokenTTL)
	assert.Equal(t, "https://booth.local", opts.PublicURL)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "booth.yaml", `
address: ":7070"
auth_secret: yaml-secret
photo_ttl: 48h
camera_url: http://cam.local/snapshot.jpg
`)

	opts, err := Load([]string{"--config", path}, envFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, ":7070", opts.Address)
	assert.Equal(t, 48*time.Hour, opts.PhotoTTL)
	assert.Equal(t, "http://cam.local/snapshot.jpg", opts.CameraURL)
}

func TestLoad_BadDurationInFile(t *testing.T) {
	path := writeFile(t, "booth.yml", "auth_secret: x\ntoken_ttl: soon\n")

	_, err := Load([]string{"--config", path}, envFrom(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token_ttl")
}

func TestLoad_NonPositiveDuration(t *testing.T) {
	cases := []struct {
		name string
		args func(t *testing.T) []string
		key  string
	}{
		{
			name: "zero cleanup interval flag",
			args: func(*testing.T) []string {
				return []string{"--config", "", "--auth-secret", "x", "--cleanup-interval", "0s"}
			},
			key: "cleanup_interval",
		},
		{
			name: "negative token ttl flag",
			args: func(*testing.T) []string {
				return []string{"--config", "", "--auth-secret", "x", "--token-ttl", "-1h"}
			},
			key: "token_ttl",
		},
		{
			name: "zero photo ttl in file",
			args: func(t *testing.T) []string {
				return []string{"--config", writeFile(t, "booth.yaml", "auth_secret: x\nphoto_ttl: 0s\n")}
			},
			key: "photo_ttl",
		},
		{
			name: "negative cleanup interval in file",
			args: func(t *testing.T) []string {
				return []string{"--config", writeFile(t, "booth.json", `{"auth_secret": "x", "cleanup_interval": "-5m"}`)}
			},
			key: "cleanup_interval",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := Load(tc.args(t), envFrom(nil))
			require.ErrorIs(t, err, ErrInvalidDuration)
			assert.Contains(t, err.Error(), tc.key)
			assert.Nil(t, opts)
		})
	}
}

func TestLoad_EnvOverridesFileAndFlags(t *testing.T) {
	path := writeFile(t, "booth.json", `{"address": ":9090", "auth_secret": "file"}`)

	opts, err := Load(
		[]string{"--config", path, "--admin-key", "flag-key"},
		envFrom(map[string]string{
			"SERVER_ADDRESS": ":1234",
			"AUTH_SECRET":    "env",
			"ADMIN_KEY":      "env-key",
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, ":1234", opts.Address)
	assert.Equal(t, "env", opts.AuthSecret)
	assert.Equal(t, "env-key", opts.AdminKey)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := writeFile(t, "env.yaml", "auth_secret: via-env-path\n")

	opts, err := Load(nil, envFrom(map[string]string{"CONFIG": path}))
	require.NoError(t, err)
	assert.Equal(t, "via-env-path", opts.AuthSecret)
}

func TestLoad_UnknownFlag(t *testing.T) {
	_, err := Load([]string{"--nope"}, envFrom(nil))
	assert.Error(t, err)
}
