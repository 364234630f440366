package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateName reports a natural-key collision detected while applying
// an update to the system of record. It is returned as an error, not a
// result status, and surfaces to the caller of the commit replay.
var ErrDuplicateName = errors.New("duplicate name")

// User is an administrative account
type User struct {
	ID                    uint64    `json:"id"`
	Username              string    `json:"username"`
	Password              string    `json:"password,omitempty"`
	FirstName             string    `json:"firstName,omitempty"`
	LastName              string    `json:"lastName,omitempty"`
	Email                 string    `json:"email,omitempty"`
	Locked                bool      `json:"locked"`
	Retired               bool      `json:"retired"`
	ChangePasswordOnLogin bool      `json:"changePasswordOnLogin"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// Role is a named permission grouping
type Role struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Device is a managed endpoint
type Device struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Model     string    `json:"model,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Setting is a system feature or security policy value
type Setting struct {
	ID        uint64      `json:"id"`
	Name      string      `json:"name"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// decodePayload converts a generic decoded JSON payload into a typed entity.
func decodePayload(payload interface{}, dest interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// sparseFields narrows a generic update payload to a field map. A nil
// payload yields an empty map.
func sparseFields(payload interface{}) (map[string]interface{}, error) {
	if payload == nil {
		return map[string]interface{}{}, nil
	}
	fields, ok := payload.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("update payload must be an object, got %T", payload)
	}
	return fields, nil
}
