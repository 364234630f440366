package review

import (
	"context"

	"github.com/wardenhq/warden/pkg/staging"
	"github.com/wardenhq/warden/pkg/status"
)

// EntityMutator applies a single staged operation directly to the system of
// record. The persistImmediately flag distinguishes the commit replay path
// (true: write through to the store) from the interactive editing path
// (false: record the intent in the session ledger instead).
//
// A non-success Result reports a business rejection; a non-nil error reports
// an unexpected failure and is surfaced to the caller unconverted.
type EntityMutator interface {
	Add(ctx context.Context, payload map[string]interface{}, persistImmediately bool) (status.Result, error)
	Update(ctx context.Context, id uint64, payload interface{}, persistImmediately bool) (status.Result, error)
	Delete(ctx context.Context, id uint64, persistImmediately bool) (status.Result, error)
}

// Retirer is implemented by mutators whose category supports retirement.
type Retirer interface {
	Retire(ctx context.Context, id uint64, persistImmediately bool) (status.Result, error)
}

// Unlocker is implemented by mutators whose category supports account unlock.
type Unlocker interface {
	Unlock(ctx context.Context, id uint64, changePasswordOnLogin, persistImmediately bool) (status.Result, error)
}

// TransactionCoordinator scopes the commit replay in one transaction.
// AbandonTransaction discards a transaction the committer will neither commit
// nor report as rolled back, so the coordinator is free for the next commit.
type TransactionCoordinator interface {
	BeginTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	AbandonTransaction(ctx context.Context)
}

// Mutators holds the per-category entity mutators.
type Mutators struct {
	Users    EntityMutator
	Roles    EntityMutator
	Devices  EntityMutator
	Settings EntityMutator
}

// ForCategory returns the mutator responsible for a category.
func (m Mutators) ForCategory(c staging.Category) EntityMutator {
	switch c {
	case staging.CategoryUsers:
		return m.Users
	case staging.CategoryRoles:
		return m.Roles
	case staging.CategoryDevices:
		return m.Devices
	case staging.CategorySettings:
		return m.Settings
	default:
		return nil
	}
}
