package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/staging"
	"github.com/wardenhq/warden/pkg/status"
)

// SettingService applies system feature and policy changes. Settings are a
// fixed catalogue: they can be updated but never created or deleted.
type SettingService struct {
	txn    *Coordinator
	ledger *staging.Store
	logger *observability.Logger
}

// NewSettingService creates a setting service.
func NewSettingService(txn *Coordinator, ledger *staging.Store, logger *observability.Logger) *SettingService {
	return &SettingService{txn: txn, ledger: ledger, logger: logger}
}

// Add is not supported for settings.
func (s *SettingService) Add(ctx context.Context, payload map[string]interface{}, persistImmediately bool) (status.Result, error) {
	return status.Failure(status.Forbidden, "settings cannot be created"), nil
}

// Delete is not supported for settings.
func (s *SettingService) Delete(ctx context.Context, id uint64, persistImmediately bool) (status.Result, error) {
	return status.Failure(status.Forbidden, "settings cannot be deleted"), nil
}

// Update applies a new value to a setting or stages it. Setting values are
// opaque JSON; lists of policy entries are stored as-is.
func (s *SettingService) Update(ctx context.Context, id uint64, payload interface{}, persistImmediately bool) (status.Result, error) {
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
			return status.Failure(status.NotFound, "setting not found"), nil
		}

		fields, err := sparseFields(payload)
		if err != nil {
			return status.Failure(status.BadRequest, err.Error()), nil
		}
		return s.ledger.StageUpdate(ctx, sessionID, staging.CategorySettings, fields, current.snapshot(), id, current.Name)
	}

	value := payload
	if fields, err := sparseFields(payload); err == nil {
		if v, present := fields["value"]; present {
			value = v
		}
	}

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to marshal setting value: %w", err)
	}

	result, err := s.txn.querier().ExecContext(ctx,
		`UPDATE settings SET value = $1, updated_at = $2 WHERE id = $3`,
		string(valueJSON), time.Now().UTC(), id)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to update setting: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return status.Failure(status.NotFound, "setting not found"), nil
	}
	return status.OKResult(), nil
}

// List returns all settings ordered by name.
func (s *SettingService) List(ctx context.Context) ([]Setting, error) {
	rows, err := s.txn.querier().QueryContext(ctx, `
		SELECT id, name, value, updated_at
		FROM settings
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var setting Setting
		var valueJSON string
		if err := rows.Scan(&setting.ID, &setting.Name, &valueJSON, &setting.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		if err := json.Unmarshal([]byte(valueJSON), &setting.Value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal setting value: %w", err)
		}
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

// fetch loads a setting by id; a missing row returns nil without error.
func (s *SettingService) fetch(ctx context.Context, id uint64) (*Setting, error) {
	var setting Setting
	var valueJSON string
	err := s.txn.querier().QueryRowContext(ctx, `
		SELECT id, name, value, updated_at
		FROM settings
		WHERE id = $1
	`, id).Scan(&setting.ID, &setting.Name, &valueJSON, &setting.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	if err := json.Unmarshal([]byte(valueJSON), &setting.Value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal setting value: %w", err)
	}
	return &setting, nil
}

// snapshot returns the setting's editable fields by wire name for diffing.
func (s *Setting) snapshot() map[string]interface{} {
	return map[string]interface{}{
		"name":  s.Name,
		"value": s.Value,
	}
}
