package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/staging"
	"github.com/wardenhq/warden/pkg/status"
)

// RoleService applies role mutations directly or through the session ledger.
type RoleService struct {
	txn    *Coordinator
	ledger *staging.Store
	logger *observability.Logger
}

// NewRoleService creates a role service.
func NewRoleService(txn *Coordinator, ledger *staging.Store, logger *observability.Logger) *RoleService {
	return &RoleService{txn: txn, ledger: ledger, logger: logger}
}

// Add creates a role or stages its creation. Role names are unique.
func (s *RoleService) Add(ctx context.Context, payload map[string]interface{}, persistImmediately bool) (status.Result, error) {
	var role Role
	if err := decodePayload(payload, &role); err != nil {
		return status.Failure(status.BadRequest, err.Error()), nil
	}
	if role.Name == "" {
		return status.Failure(status.BadRequest, "role name is required"), nil
	}

	if !persistImmediately {
		sessionID, ok := sessionFromContext(ctx)
		if !ok {
			return status.Failure(status.BadRequest, "no editing session"), nil
		}
		return s.ledger.StageCreate(ctx, sessionID, staging.CategoryRoles, payload)
	}

	q := s.txn.querier()
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1)`, role.Name).Scan(&exists); err != nil {
		return status.Result{}, fmt.Errorf("failed to check role name: %w", err)
	}
	if exists {
		return status.Failure(status.Conflict, "role already exists"), nil
	}

	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to marshal permissions: %w", err)
	}

	now := time.Now().UTC()
	err = q.QueryRowContext(ctx, `
		INSERT INTO roles (name, description, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, role.Name, role.Description, string(permissionsJSON), now, now).Scan(&role.ID)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return status.Result{Status: status.Success, Entity: &role}, nil
}

// Update applies a sparse field payload to a role or stages it. A name that
// collides with another role is reported as an error, not a result.
func (s *RoleService) Update(ctx context.Context, id uint64, payload interface{}, persistImmediately bool) (status.Result, error) {
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
			return status.Failure(status.NotFound, "role not found"), nil
		}
		return s.ledger.StageUpdate(ctx, sessionID, staging.CategoryRoles, fields, current.snapshot(), id, current.Name)
	}

	if len(fields) == 0 {
		return status.OKResult(), nil
	}

	q := s.txn.querier()
	if name, ok := fields["name"].(string); ok && name != "" {
		var exists bool
		if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1 AND id <> $2)`, name, id).Scan(&exists); err != nil {
			return status.Result{}, fmt.Errorf("failed to check role name: %w", err)
		}
		if exists {
			return status.Result{}, fmt.Errorf("%w: role %q", ErrDuplicateName, name)
		}
	}

	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if name, ok := fields["name"].(string); ok {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argPos))
		args = append(args, name)
		argPos++
	}
	if description, ok := fields["description"].(string); ok {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argPos))
		args = append(args, description)
		argPos++
	}
	if permissions, present := fields["permissions"]; present {
		permissionsJSON, err := json.Marshal(permissions)
		if err != nil {
			return status.Result{}, fmt.Errorf("failed to marshal permissions: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("permissions = $%d", argPos))
		args = append(args, string(permissionsJSON))
		argPos++
	}

	if len(setClauses) == 0 {
		return status.OKResult(), nil
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now().UTC())
	argPos++
	args = append(args, id)

	query := fmt.Sprintf("UPDATE roles SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argPos)
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to update role: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return status.Failure(status.NotFound, "role not found"), nil
	}
	return status.OKResult(), nil
}

// Delete removes a role or stages the removal.
func (s *RoleService) Delete(ctx context.Context, id uint64, persistImmediately bool) (status.Result, error) {
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
			return status.Failure(status.NotFound, "role not found"), nil
		}
		return s.ledger.StageDelete(ctx, sessionID, staging.CategoryRoles, id, current.Name)
	}

	result, err := s.txn.querier().ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to delete role: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return status.Failure(status.NotFound, "role not found"), nil
	}
	return status.OKResult(), nil
}

// List returns all roles ordered by name.
func (s *RoleService) List(ctx context.Context) ([]Role, error) {
	rows, err := s.txn.querier().QueryContext(ctx, `
		SELECT id, name, description, permissions, created_at, updated_at
		FROM roles
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		var permissionsJSON string
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &permissionsJSON, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// fetch loads a role by id; a missing row returns nil without error.
func (s *RoleService) fetch(ctx context.Context, id uint64) (*Role, error) {
	var role Role
	var permissionsJSON string
	err := s.txn.querier().QueryRowContext(ctx, `
		SELECT id, name, description, permissions, created_at, updated_at
		FROM roles
		WHERE id = $1
	`, id).Scan(&role.ID, &role.Name, &role.Description, &permissionsJSON, &role.CreatedAt, &role.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	return &role, nil
}

// snapshot returns the role's editable fields by wire name for diffing.
func (r *Role) snapshot() map[string]interface{} {
	permissions := make([]interface{}, len(r.Permissions))
	for i, p := range r.Permissions {
		permissions[i] = p
	}
	return map[string]interface{}{
		"name":        r.Name,
		"description": r.Description,
		"permissions": permissions,
	}
}
