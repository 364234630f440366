package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/staging"
	"github.com/wardenhq/warden/pkg/status"
)

// DeviceService applies device mutations directly or through the session
// ledger.
type DeviceService struct {
	txn    *Coordinator
	ledger *staging.Store
	logger *observability.Logger
}

// NewDeviceService creates a device service.
func NewDeviceService(txn *Coordinator, ledger *staging.Store, logger *observability.Logger) *DeviceService {
	return &DeviceService{txn: txn, ledger: ledger, logger: logger}
}

// Add registers a device or stages its registration.
func (s *DeviceService) Add(ctx context.Context, payload map[string]interface{}, persistImmediately bool) (status.Result, error) {
	var device Device
	if err := decodePayload(payload, &device); err != nil {
		return status.Failure(status.BadRequest, err.Error()), nil
	}
	if device.Name == "" {
		return status.Failure(status.BadRequest, "device name is required"), nil
	}

	if !persistImmediately {
		sessionID, ok := sessionFromContext(ctx)
		if !ok {
			return status.Failure(status.BadRequest, "no editing session"), nil
		}
		return s.ledger.StageCreate(ctx, sessionID, staging.CategoryDevices, payload)
	}

	q := s.txn.querier()
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM devices WHERE name = $1)`, device.Name).Scan(&exists); err != nil {
		return status.Result{}, fmt.Errorf("failed to check device name: %w", err)
	}
	if exists {
		return status.Failure(status.Conflict, "device already exists"), nil
	}

	now := time.Now().UTC()
	err := q.QueryRowContext(ctx, `
		INSERT INTO devices (name, address, model, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, device.Name, device.Address, device.Model, device.Enabled, now, now).Scan(&device.ID)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to create device: %w", err)
	}

	device.CreatedAt = now
	device.UpdatedAt = now
	return status.Result{Status: status.Success, Entity: &device}, nil
}

// Update applies a sparse field payload to a device or stages it.
func (s *DeviceService) Update(ctx context.Context, id uint64, payload interface{}, persistImmediately bool) (status.Result, error) {
	fields, err := sparseFields(payload)
	if err != nil {
		return status.Failure(status.BadRequest, err.Error()), nil
	}

	if !persistImmediately {
		sessionID, ok := sessionFromContext(ctx)
		if !ok {
			return status.Failure(status.BadRequest, "no editing session"), nil
		}
		current, err := s.fetch(ctx, id)
		if err != nil {
			return status.Result{}, err
		}
		if current == nil {
			return status.Failure(status.NotFound, "device not found"), nil
		}
		return s.ledger.StageUpdate(ctx, sessionID, staging.CategoryDevices, fields, current.snapshot(), id, current.Name)
	}

	if len(fields) == 0 {
		return status.OKResult(), nil
	}

	q := s.txn.querier()
	if name, ok := fields["name"].(string); ok && name != "" {
		var exists bool
		if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM devices WHERE name = $1 AND id <> $2)`, name, id).Scan(&exists); err != nil {
			return status.Result{}, fmt.Errorf("failed to check device name: %w", err)
		}
		if exists {
			return status.Result{}, fmt.Errorf("%w: device %q", ErrDuplicateName, name)
		}
	}

	columns := map[string]string{
		"name":    "name",
		"address": "address",
		"model":   "model",
		"enabled": "enabled",
	}

	setClauses := []string{}
	args := []interface{}{}
	argPos := 1
	for _, field := range []string{"name", "address", "model", "enabled"} {
		value, present := fields[field]
		if !present {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", columns[field], argPos))
		args = append(args, value)
		argPos++
	}
	if len(setClauses) == 0 {
		return status.OKResult(), nil
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now().UTC())
	argPos++
	args = append(args, id)

	query := fmt.Sprintf("UPDATE devices SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argPos)
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to update device: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return status.Failure(status.NotFound, "device not found"), nil
	}
	return status.OKResult(), nil
}

// Delete removes a device or stages the removal.
func (s *DeviceService) Delete(ctx context.Context, id uint64, persistImmediately bool) (status.Result, error) {
	if !persistImmediately {
		sessionID, ok := sessionFromContext(ctx)
		if !ok {
			return status.Failure(status.BadRequest, "no editing session"), nil
		}
		current, err := s.fetch(ctx, id)
		if err != nil {
			return status.Result{}, err
		}
		if current == nil {
			return status.Failure(status.NotFound, "device not found"), nil
		}
		return s.ledger.StageDelete(ctx, sessionID, staging.CategoryDevices, id, current.Name)
	}

	result, err := s.txn.querier().ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to delete device: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return status.Failure(status.NotFound, "device not found"), nil
	}
	return status.OKResult(), nil
}

// List returns all devices ordered by name.
func (s *DeviceService) List(ctx context.Context) ([]Device, error) {
	rows, err := s.txn.querier().QueryContext(ctx, `
		SELECT id, name, address, model, enabled, created_at, updated_at
		FROM devices
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var device Device
		if err := rows.Scan(&device.ID, &device.Name, &device.Address, &device.Model, &device.Enabled, &device.CreatedAt, &device.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

// fetch loads a device by id; a missing row returns nil without error.
func (s *DeviceService) fetch(ctx context.Context, id uint64) (*Device, error) {
	var device Device
	err := s.txn.querier().QueryRowContext(ctx, `
		SELECT id, name, address, model, enabled, created_at, updated_at
		FROM devices
		WHERE id = $1
	`, id).Scan(&device.ID, &device.Name, &device.Address, &device.Model, &device.Enabled, &device.CreatedAt, &device.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &device, nil
}

// snapshot returns the device's editable fields by wire name for diffing.
func (d *Device) snapshot() map[string]interface{} {
	return map[string]interface{}{
		"name":    d.Name,
		"address": d.Address,
		"model":   d.Model,
		"enabled": d.Enabled,
	}
}
