// Package service holds the booth business logic: the device auth gate
// and photo sessions. Persistence is delegated to repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/atinyakov/PartyBooth/internal/clock"
	"github.com/atinyakov/PartyBooth/internal/models"
	"github.com/atinyakov/PartyBooth/internal/repository"
	"github.com/atinyakov/PartyBooth/internal/token"
)

// DeviceRepository defines the persistence operations required by the
// auth service.
type DeviceRepository interface {
	Create(ctx context.Context, d models.Device) error
	// GetByDeviceID returns repository.ErrNotFound for unknown devices.
	GetByDeviceID(ctx context.Context, deviceID string) (models.Device, error)
	TouchLastLogin(ctx context.Context, deviceID string, at time.Time) error
	// SetActive returns repository.ErrNotFound if no row matched.
	SetActive(ctx context.Context, deviceID string, active bool) error
	List(ctx context.Context) ([]models.Device, error)
}

// TokenIssuer mints and verifies device tokens.
type TokenIssuer interface {
	Mint(deviceID string) (string, token.Claims, error)
	Verify(tok string) (token.Claims, error)
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token      string
	DeviceName string
	ExpiresAt  time.Time
}

// AuthService authenticates shared booth devices.
type AuthService struct {
	repo   DeviceRepository
	tokens TokenIssuer
	clock  clock.Clock
	log    *zap.Logger
	cost   int

	// dummyHash keeps unknown-device logins as slow as wrong passwords.
	dummyHash []byte
}

// AuthOption configures an AuthService.
type AuthOption func(*AuthService)

// WithBcryptCost overrides the bcrypt work factor.
func WithBcryptCost(cost int) AuthOption { return func(s *AuthService) { s.cost = cost } }

// WithAuthClock sets the clock used for last-login timestamps.
func WithAuthClock(c clock.Clock) AuthOption { return func(s *AuthService) { s.clock = c } }

// NewAuthService constructs an AuthService.
func NewAuthService(repo DeviceRepository, tokens TokenIssuer, log *zap.Logger, opts ...AuthOption) *AuthService {
	s := &AuthService{
		repo:   repo,
		tokens: tokens,
		clock:  clock.Real(),
		log:    log,
		cost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("partybooth"), s.cost)
	return s
}

// Login checks the device credentials and issues a token.
func (s *AuthService) Login(ctx context.Context, deviceID, password string) (LoginResult, error) {
	deviceID = strings.TrimSpace(deviceID)
	password = strings.TrimSpace(password)
	if deviceID == "" || password == "" {
		return LoginResult{}, ErrInvalidInput
	}

	d, err := s.repo.GetByDeviceID(ctx, deviceID)
	if errors.Is(err, repository.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.log.Info("login rejected", zap.String("device_id", deviceID), zap.String("reason", "unknown device"))
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("load device: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(d.PasswordHash, []byte(password)); err != nil {
		s.log.Info("login rejected", zap.String("device_id", deviceID), zap.String("reason", "bad password"))
		return LoginResult{}, ErrInvalidCredentials
	}
	if !d.IsActive {
		s.log.Info("login rejected", zap.String("device_id", deviceID), zap.String("reason", "inactive"))
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := s.repo.TouchLastLogin(ctx, deviceID, s.clock.Now()); err != nil {
		s.log.Warn("failed to record last login", zap.String("device_id", deviceID), zap.Error(err))
	}

	tok, claims, err := s.tokens.Mint(deviceID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("mint token: %w", err)
	}
	s.log.Info("device logged in", zap.String("device_id", deviceID))
	return LoginResult{Token: tok, DeviceName: d.DeviceName, ExpiresAt: claims.ExpiresAt()}, nil
}

// Verify returns the device id a token was issued to. The store is not
// consulted, so a deactivated device keeps access until its token
// expires.
func (s *AuthService) Verify(_ context.Context, tok string) (string, error) {
	claims, err := s.tokens.Verify(strings.TrimSpace(tok))
	switch {
	case errors.Is(err, token.ErrExpired):
		return "", ErrTokenExpired
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims.DeviceID, nil
}

// CreateDevice stores a new active device and returns its record id.
func (s *AuthService) CreateDevice(ctx context.Context, deviceID, password, deviceName string) (string, error) {
	deviceID = strings.TrimSpace(deviceID)
	password = strings.TrimSpace(password)
	deviceName = strings.TrimSpace(deviceName)
	if deviceID == "" || password == "" || deviceName == "" {
		return "", ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: password too long", ErrInvalidInput)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	d := models.Device{
		ID:           uuid.NewString(),
		DeviceID:     deviceID,
		PasswordHash: hash,
		DeviceName:   deviceName,
		IsActive:     true,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.Create(ctx, d); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return "", ErrDuplicateDevice
		}
		return "", fmt.Errorf("create device: %w", err)
	}
	s.log.Info("device created", zap.String("device_id", deviceID), zap.String("record_id", d.ID))
	return d.ID, nil
}

// SetActive enables or disables login for a device.
func (s *AuthService) SetActive(ctx context.Context, deviceID string, active bool) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return ErrInvalidInput
	}
	if err := s.repo.SetActive(ctx, deviceID, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("set active: %w", err)
	}
	s.log.Info("device active flag changed", zap.String("device_id", deviceID), zap.Bool("active", active))
	return nil
}

// ListDevices returns all devices.
func (s *AuthService) ListDevices(ctx context.Context) ([]models.Device, error) {
	devices, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}
