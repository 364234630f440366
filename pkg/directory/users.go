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

// UserService applies user mutations. With persistImmediately the change is
// written straight to the store; otherwise it is recorded in the session
// ledger for later review.
type UserService struct {
	txn    *Coordinator
	ledger *staging.Store
	logger *observability.Logger
}

// NewUserService creates a user service.
func NewUserService(txn *Coordinator, ledger *staging.Store, logger *observability.Logger) *UserService {
	return &UserService{txn: txn, ledger: ledger, logger: logger}
}

// sessionFromContext extracts the editing session id required by the
// staging path.
func sessionFromContext(ctx context.Context) (string, bool) {
	sessionID := observability.GetSessionID(ctx)
	return sessionID, sessionID != ""
}

// Add creates a user or stages its creation.
func (s *UserService) Add(ctx context.Context, payload map[string]interface{}, persistImmediately bool) (status.Result, error) {
	var user User
	if err := decodePayload(payload, &user); err != nil {
		return status.Failure(status.BadRequest, err.Error()), nil
	}

	if user.Username == "" {
		return status.Failure(status.BadRequest, "username is required"), nil
	}
	if len(user.Password) < 8 {
		return status.Failure(status.BadRequest, "password must be at least 8 characters"), nil
	}
	if strings.EqualFold(user.Username, user.Password) {
		return status.Failure(status.BadRequest, "username cannot equal password"), nil
	}

	if !persistImmediately {
		sessionID, ok := sessionFromContext(ctx)
		if !ok {
			return status.Failure(status.BadRequest, "no editing session"), nil
		}
		return s.ledger.StageCreate(ctx, sessionID, staging.CategoryUsers, payload)
	}

	q := s.txn.querier()
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, user.Username).Scan(&exists)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return status.Failure(status.Conflict, "user already exists"), nil
	}

	now := time.Now().UTC()
	err = q.QueryRowContext(ctx, `
		INSERT INTO users (username, password, first_name, last_name, email, locked, retired, change_password_on_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		user.Username,
		user.Password,
		user.FirstName,
		user.LastName,
		user.Email,
		user.Locked,
		user.Retired,
		user.ChangePasswordOnLogin,
		now,
		now,
	).Scan(&user.ID)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	user.Password = ""
	return status.Result{Status: status.Success, Entity: &user}, nil
}

// Update applies a sparse field payload to a user or stages it.
func (s *UserService) Update(ctx context.Context, id uint64, payload interface{}, persistImmediately bool) (status.Result, error) {
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
			return status.Failure(status.NotFound, "user not found"), nil
		}
		return s.ledger.StageUpdate(ctx, sessionID, staging.CategoryUsers, fields, current.snapshot(), id, current.Username)
	}

	if len(fields) == 0 {
		return status.OKResult(), nil
	}

	q := s.txn.querier()
	if username, ok := fields["username"].(string); ok && username != "" {
		var exists bool
		err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 AND id <> $2)`, username, id).Scan(&exists)
		if err != nil {
			return status.Result{}, fmt.Errorf("failed to check username: %w", err)
		}
		if exists {
			return status.Result{}, fmt.Errorf("%w: user %q", ErrDuplicateName, username)
		}
	}

	columns := map[string]string{
		"username":              "username",
		"password":              "password",
		"firstName":             "first_name",
		"lastName":              "last_name",
		"email":                 "email",
		"changePasswordOnLogin": "change_password_on_login",
	}

	setClauses := []string{}
	args := []interface{}{}
	argPos := 1
	for _, field := range []string{"username", "password", "firstName", "lastName", "email", "changePasswordOnLogin"} {
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

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argPos)
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to update user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return status.Failure(status.NotFound, "user not found"), nil
	}

	return status.OKResult(), nil
}

// Delete removes a user or stages the removal.
func (s *UserService) Delete(ctx context.Context, id uint64, persistImmediately bool) (status.Result, error) {
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
			return status.Failure(status.NotFound, "user not found"), nil
		}
		return s.ledger.StageDelete(ctx, sessionID, staging.CategoryUsers, id, current.Username)
	}

	result, err := s.txn.querier().ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return status.Failure(status.NotFound, "user not found"), nil
	}
	return status.OKResult(), nil
}

// Retire marks a user retired or stages the retirement.
func (s *UserService) Retire(ctx context.Context, id uint64, persistImmediately bool) (status.Result, error) {
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
			return status.Failure(status.NotFound, "user not found"), nil
		}
		return s.ledger.StageRetire(ctx, sessionID, staging.CategoryUsers, id, current.Username)
	}

	result, err := s.txn.querier().ExecContext(ctx,
		`UPDATE users SET retired = TRUE, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to retire user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return status.Failure(status.NotFound, "user not found"), nil
	}
	return status.OKResult(), nil
}

// Unlock clears a user's lockout or stages the unlock.
func (s *UserService) Unlock(ctx context.Context, id uint64, changePasswordOnLogin, persistImmediately bool) (status.Result, error) {
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
			return status.Failure(status.NotFound, "user not found"), nil
		}
		return s.ledger.StageUnlock(ctx, sessionID, staging.CategoryUsers, id, current.Username, changePasswordOnLogin)
	}

	result, err := s.txn.querier().ExecContext(ctx,
		`UPDATE users SET locked = FALSE, change_password_on_login = $1, updated_at = $2 WHERE id = $3`,
		changePasswordOnLogin, time.Now().UTC(), id)
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to unlock user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return status.Result{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return status.Failure(status.NotFound, "user not found"), nil
	}
	return status.OKResult(), nil
}

// Get retrieves a user by id for the read API.
func (s *UserService) Get(ctx context.Context, id uint64) (*User, error) {
	user, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user not found: %d", id)
	}
	return user, nil
}

// List returns all users ordered by username.
func (s *UserService) List(ctx context.Context) ([]User, error) {
	rows, err := s.txn.querier().QueryContext(ctx, `
		SELECT id, username, first_name, last_name, email, locked, retired, change_password_on_login, created_at, updated_at
		FROM users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.FirstName,
			&user.LastName,
			&user.Email,
			&user.Locked,
			&user.Retired,
			&user.ChangePasswordOnLogin,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// fetch loads a user by id; a missing row returns nil without error.
func (s *UserService) fetch(ctx context.Context, id uint64) (*User, error) {
	var user User
	err := s.txn.querier().QueryRowContext(ctx, `
		SELECT id, username, first_name, last_name, email, locked, retired, change_password_on_login, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Locked,
		&user.Retired,
		&user.ChangePasswordOnLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// snapshot returns the user's editable fields by wire name for diffing.
// The password is never part of a snapshot.
func (u *User) snapshot() map[string]interface{} {
	return map[string]interface{}{
		"username":              u.Username,
		"firstName":             u.FirstName,
		"lastName":              u.LastName,
		"email":                 u.Email,
		"changePasswordOnLogin": u.ChangePasswordOnLogin,
	}
}
