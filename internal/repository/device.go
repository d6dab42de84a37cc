package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/PartyBooth/internal/models"
)

// DeviceRepository stores shared-device credentials in device_auth.
type DeviceRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewDeviceRepository creates a DeviceRepository over db.
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{DB: db}
}

// Create inserts a device. ErrDuplicate is returned if the device id
// is taken.
func (r *DeviceRepository) Create(ctx context.Context, d models.Device) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO device_auth (id, device_id, password_hash, device_name, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.DeviceID, d.PasswordHash, d.DeviceName, d.IsActive, d.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create device %q: %w", d.DeviceID, ErrDuplicate)
		}
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}

// GetByDeviceID loads a device by its login name.
func (r *DeviceRepository) GetByDeviceID(ctx context.Context, deviceID string) (models.Device, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, device_id, password_hash, device_name, is_active, created_at, last_login
		FROM device_auth WHERE device_id = $1
	`, deviceID)

	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Device{}, ErrNotFound
	}
	if err != nil {
		return models.Device{}, fmt.Errorf("get device: %w", err)
	}
	return d, nil
}

// TouchLastLogin records a successful login.
func (r *DeviceRepository) TouchLastLogin(ctx context.Context, deviceID string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE device_auth SET last_login = $1 WHERE device_id = $2`,
		at.UTC(), deviceID,
	)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// SetActive flips the active flag. ErrNotFound is returned if no
// device matched.
func (r *DeviceRepository) SetActive(ctx context.Context, deviceID string, active bool) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE device_auth SET is_active = $1 WHERE device_id = $2`,
		active, deviceID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all devices ordered by device id.
func (r *DeviceRepository) List(ctx context.Context) ([]models.Device, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, device_id, password_hash, device_name, is_active, created_at, last_login
		FROM device_auth ORDER BY device_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (models.Device, error) {
	var (
		d         models.Device
		lastLogin sql.NullTime
	)
	if err := s.Scan(&d.ID, &d.DeviceID, &d.PasswordHash, &d.DeviceName, &d.IsActive, &d.CreatedAt, &lastLogin); err != nil {
		return models.Device{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		d.LastLoginAt = &t
	}
	return d, nil
}
