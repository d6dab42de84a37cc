// Package config provides functionality for managing configuration options
// for the booth server using command-line flags, a config file and
// environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Options holds the configuration values for the application.
type Options struct {
	// Address defines the server's listening address (ip:port).
	Address string

	// DatabaseDSN is either a postgres:// DSN or sqlite://path.
	DatabaseDSN string

	// Config is the path to the config file.
	Config string

	// AuthSecret keys the device token MAC.
	AuthSecret string

	// AdminKey guards the /api/admin routes. Empty disables them.
	AdminKey string

	// TokenTTL is the lifetime of a device token.
	TokenTTL time.Duration

	// PhotoTTL is how long a photo session and its photos are kept.
	PhotoTTL time.Duration

	// CleanupInterval is the period of the expired-session cleaner.
	CleanupInterval time.Duration

	// MediaDir is the root directory of the blob store.
	MediaDir string

	// PublicURL is the externally reachable base URL used in share links.
	PublicURL string

	// CameraURL is the snapshot endpoint of the booth camera. Empty
	// disables server-side capture.
	CameraURL string

	// LogLevel is the zap level name.
	LogLevel string

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string
	TLSKey  string
}

// fileOptions mirrors Options in the config file. Durations are
// strings such as "24h".
type fileOptions struct {
	Address         *string `json:"address" yaml:"address"`
	DatabaseDSN     *string `json:"database_dsn" yaml:"database_dsn"`
	AuthSecret      *string `json:"auth_secret" yaml:"auth_secret"`
	AdminKey        *string `json:"admin_key" yaml:"admin_key"`
	TokenTTL        *string `json:"token_ttl" yaml:"token_ttl"`
	PhotoTTL        *string `json:"photo_ttl" yaml:"photo_ttl"`
	CleanupInterval *string `json:"cleanup_interval" yaml:"cleanup_interval"`
	MediaDir        *string `json:"media_dir" yaml:"media_dir"`
	PublicURL       *string `json:"public_url" yaml:"public_url"`
	CameraURL       *string `json:"camera_url" yaml:"camera_url"`
	LogLevel        *string `json:"log_level" yaml:"log_level"`
	TLSCert         *string `json:"tls_cert" yaml:"tls_cert"`
	TLSKey          *string `json:"tls_key" yaml:"tls_key"`
}

var (
	// ErrNoSecret is returned when no auth secret was configured.
	ErrNoSecret = errors.New("auth secret is required")
	// ErrInvalidDuration is returned for a zero or negative TTL or
	// cleanup interval.
	ErrInvalidDuration = errors.New("duration must be positive")
)

// Parse parses the process flags, config file and environment. It
// exits the process with a message when the configuration is invalid.
func Parse() *Options {
	opts, err := Load(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	return opts
}

// Load builds Options from args, then the config file, then the
// environment looked up through getenv. Later sources win.
func Load(args []string, getenv func(string) string) (*Options, error) {
	opts := &Options{}

	fs := pflag.NewFlagSet("partybooth", pflag.ContinueOnError)
	fs.StringVarP(&opts.Address, "address", "a", "localhost:8080", "run on ip:port server")
	fs.StringVarP(&opts.DatabaseDSN, "database", "d", "", "database DSN (postgres://... or sqlite://path)")
	fs.StringVarP(&opts.Config, "config", "c", "config.json", "path to config file (.json or .yaml)")
	fs.StringVar(&opts.AuthSecret, "auth-secret", "", "secret keying device tokens")
	fs.StringVar(&opts.AdminKey, "admin-key", "", "key required by admin endpoints")
	fs.DurationVar(&opts.TokenTTL, "token-ttl", 24*time.Hour, "device token lifetime")
	fs.DurationVar(&opts.PhotoTTL, "photo-ttl", 24*time.Hour, "photo session lifetime")
	fs.DurationVar(&opts.CleanupInterval, "cleanup-interval", time.Hour, "expired session cleanup period")
	fs.StringVar(&opts.MediaDir, "media-dir", "media", "directory for stored photos")
	fs.StringVar(&opts.PublicURL, "public-url", "http://localhost:8080", "base URL used in share links")
	fs.StringVar(&opts.CameraURL, "camera-url", "", "camera snapshot URL for server-side capture")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&opts.TLSCert, "tls-cert", "", "TLS certificate file")
	fs.StringVar(&opts.TLSKey, "tls-key", "", "TLS key file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configPath := getenv("CONFIG"); configPath != "" {
		opts.Config = configPath
	}

	if opts.Config != "" {
		if _, err := os.Stat(opts.Config); err == nil {
			if err := loadFile(opts.Config, opts); err != nil {
				return nil, err
			}
		}
	}

	overrideFromEnv(opts, getenv)

	if opts.AuthSecret == "" {
		return nil, ErrNoSecret
	}
	for key, d := range map[string]time.Duration{
		"token_ttl":        opts.TokenTTL,
		"photo_ttl":        opts.PhotoTTL,
		"cleanup_interval": opts.CleanupInterval,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("config %s %s: %w", key, d, ErrInvalidDuration)
		}
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return opts, nil
}

func loadFile(path string, opts *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}

	var fo fileOptions
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fo)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), &fo)
	}
	if err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}

	setString(&opts.Address, fo.Address)
	setString(&opts.DatabaseDSN, fo.DatabaseDSN)
	setString(&opts.AuthSecret, fo.AuthSecret)
	setString(&opts.AdminKey, fo.AdminKey)
	setString(&opts.MediaDir, fo.MediaDir)
	setString(&opts.PublicURL, fo.PublicURL)
	setString(&opts.CameraURL, fo.CameraURL)
	setString(&opts.LogLevel, fo.LogLevel)
	setString(&opts.TLSCert, fo.TLSCert)
	setString(&opts.TLSKey, fo.TLSKey)

	for _, d := range []struct {
		dst *time.Duration
		src *string
		key string
	}{
		{&opts.TokenTTL, fo.TokenTTL, "token_ttl"},
		{&opts.PhotoTTL, fo.PhotoTTL, "photo_ttl"},
		{&opts.CleanupInterval, fo.CleanupInterval, "cleanup_interval"},
	} {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func overrideFromEnv(opts *Options, getenv func(string) string) {
	for env, dst := range map[string]*string{
		"SERVER_ADDRESS": &opts.Address,
		"DATABASE_DSN":   &opts.DatabaseDSN,
		"AUTH_SECRET":    &opts.AuthSecret,
		"ADMIN_KEY":      &opts.AdminKey,
		"PUBLIC_URL":     &opts.PublicURL,
		"CAMERA_URL":     &opts.CameraURL,
	} {
		if v := getenv(env); v != "" {
			*dst = v
		}
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
