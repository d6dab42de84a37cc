package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrNoToken is returned by LoadToken when no usable token is stored.
var ErrNoToken = errors.New("not logged in")

// SaveToken writes the login result to path, readable by the owner only.
func SaveToken(path string, res LoginResult) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadToken reads the stored token. Expired tokens count as missing.
func LoadToken(path string, now time.Time) (LoginResult, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return LoginResult{}, ErrNoToken
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to read token: %w", err)
	}
	var res LoginResult
	if err := json.Unmarshal(b, &res); err != nil {
		return LoginResult{}, fmt.Errorf("failed to decode token file: %w", err)
	}
	if res.Token == "" || now.After(res.ExpiresAt) {
		return LoginResult{}, ErrNoToken
	}
	return res, nil
}
