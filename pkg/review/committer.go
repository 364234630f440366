package review

import (
	"context"
	"fmt"
	"time"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/staging"
	"github.com/wardenhq/warden/pkg/status"
)

// CommitResult is the aggregate outcome of replaying a session document.
type CommitResult struct {
	Status  status.Status `json:"status"`
	Message string        `json:"message,omitempty"`

	// FailedStep names the staged item that aborted the replay, e.g.
	// "users/create[2]". Empty on success.
	FailedStep string `json:"failedStep,omitempty"`
}

// Committer validates a session document and replays its staged operations
// against the system of record inside a single transaction.
type Committer struct {
	ledger   *staging.Store
	mutators Mutators
	txn      TransactionCoordinator
	logger   *observability.Logger
	metrics  *observability.Metrics
	auditor  audit.Logger
}

// NewCommitter creates a committer.
func NewCommitter(ledger *staging.Store, mutators Mutators, txn TransactionCoordinator, logger *observability.Logger, metrics *observability.Metrics, auditor audit.Logger) *Committer {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	return &Committer{
		ledger:   ledger,
		mutators: mutators,
		txn:      txn,
		logger:   logger,
		metrics:  metrics,
		auditor:  auditor,
	}
}

// ReadPendingChanges returns the session's raw document for display. A
// missing file yields an empty document.
func (c *Committer) ReadPendingChanges(ctx context.Context, sessionID string) (*staging.SessionDocument, error) {
	doc, err := c.ledger.ReadDocument(sessionID)
	if err != nil {
		return nil, err
	}
	c.auditor.LogEvent(ctx, &audit.Event{
		EventType: audit.EventTypePendingRead,
		Status:    audit.EventStatusSuccess,
		SessionID: sessionID,
	})
	return doc, nil
}

// OverwritePendingChanges persists an externally edited document verbatim. A
// nil document is a successful no-op.
func (c *Committer) OverwritePendingChanges(ctx context.Context, sessionID string, doc *staging.SessionDocument) error {
	if err := c.ledger.WriteDocument(sessionID, doc); err != nil {
		return err
	}
	c.auditor.LogEvent(ctx, &audit.Event{
		EventType: audit.EventTypePendingOverwrite,
		Status:    audit.EventStatusSuccess,
		SessionID: sessionID,
	})
	return nil
}

// ReviewAndSave loads the session's document, commits it, and clears the
// ledger file on success. Failed reviews retain the file so the operator can
// inspect and correct the staged changes.
func (c *Committer) ReviewAndSave(ctx context.Context, sessionID string) (CommitResult, error) {
	doc, err := c.ledger.ReadDocument(sessionID)
	if err != nil {
		return CommitResult{}, err
	}

	result, err := c.Commit(ctx, doc)
	if err != nil {
		return CommitResult{}, err
	}

	if result.Status.OK() {
		if err := c.ledger.Clear(sessionID); err != nil {
			c.logger.WithError(err).Warnf("Failed to clear session ledger %s after commit", sessionID)
		}
	}
	return result, nil
}

// Commit validates the document and replays its staged operations.
//
// At most one category may hold staged changes; more than one fails with
// InvalidOperation before any transaction is opened. An empty document opens
// and commits an empty transaction and succeeds. Otherwise the active
// category's lists are replayed in the fixed order create, update, delete,
// retire, unlock, preserving insertion order within each list.
//
// The first mutator call reporting a non-success status aborts the replay:
// the transaction is rolled back and the aggregate result is InternalError
// regardless of the specific status the step returned. A mutator call that
// returns an error is surfaced to the caller as-is and is not reported as a
// rollback; the surrounding transport error handler owns that path. The
// dangling transaction is abandoned so the coordinator stays usable.
func (c *Committer) Commit(ctx context.Context, doc *staging.SessionDocument) (CommitResult, error) {
	if doc == nil {
		doc = &staging.SessionDocument{}
	}

	start := time.Now()
	logger := observability.FromContext(ctx)

	active := doc.ActiveCategories()
	if len(active) > 1 {
		logger.WithField("categories", categoryNames(active)).Warn("Review rejected: changes staged in more than one category")
		c.metrics.ObserveCommit("invalid_operation", time.Since(start))
		c.auditor.LogEvent(ctx, &audit.Event{
			EventType: audit.EventTypeReviewRejected,
			Status:    audit.EventStatusFailure,
			Message:   "changes staged in more than one category",
		})
		return CommitResult{
			Status:  status.InvalidOperation,
			Message: "changes may only be saved for one category at a time",
		}, nil
	}

	if err := c.txn.BeginTransaction(ctx); err != nil {
		return CommitResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if len(active) == 1 {
		category := active[0]
		ledger := doc.PeekLedger(category)

		rejected, failedStep, err := c.replay(ctx, category, ledger)
		if err != nil {
			// Unexpected mutator errors propagate without a rollback. The
			// open transaction is abandoned so later commits can begin.
			c.txn.AbandonTransaction(ctx)
			return CommitResult{}, err
		}
		if rejected != nil {
			if rbErr := c.txn.RollbackTransaction(ctx); rbErr != nil {
				logger.WithError(rbErr).Error("Rollback failed after rejected step")
			}
			c.metrics.ObserveRollback()
			c.metrics.ObserveCommit("rolled_back", time.Since(start))
			c.auditor.LogEvent(ctx, &audit.Event{
				EventType: audit.EventTypeReviewRollback,
				Status:    audit.EventStatusFailure,
				Category:  string(category),
				Message:   rejected.Message,
				Metadata:  map[string]interface{}{"failed_step": failedStep},
			})
			logger.WithFields(map[string]interface{}{
				"category":    string(category),
				"failed_step": failedStep,
				"step_status": string(rejected.Status),
			}).Error("Review rolled back")
			return CommitResult{
				Status:     status.InternalError,
				Message:    "failed to save staged changes",
				FailedStep: failedStep,
			}, nil
		}
	}

	if err := c.txn.CommitTransaction(ctx); err != nil {
		return CommitResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.metrics.ObserveCommit("success", time.Since(start))
	c.auditor.LogEvent(ctx, &audit.Event{
		EventType: audit.EventTypeReviewCommit,
		Status:    audit.EventStatusSuccess,
		Category:  firstCategoryName(active),
	})
	return CommitResult{Status: status.Success}, nil
}

// replay applies one category's staged operations in order. It returns the
// first rejecting result and the step that produced it, or an error from a
// failing mutator call.
func (c *Committer) replay(ctx context.Context, category staging.Category, ledger *staging.CategoryLedger) (*status.Result, string, error) {
	mutator := c.mutators.ForCategory(category)
	if mutator == nil {
		res := status.Failure(status.InternalError, fmt.Sprintf("no mutator registered for category %s", category))
		return &res, string(category), nil
	}

	for i, payload := range ledger.Create {
		step := fmt.Sprintf("%s/create[%d]", category, i)
		res, err := mutator.Add(ctx, payload, true)
		if err != nil {
			return nil, step, err
		}
		if !res.Status.OK() {
			return &res, step, nil
		}
	}

	for i, rec := range ledger.Update {
		step := fmt.Sprintf("%s/update[%d]", category, i)
		res, err := mutator.Update(ctx, rec.ID, rec.NewValue, true)
		if err != nil {
			return nil, step, err
		}
		if !res.Status.OK() {
			return &res, step, nil
		}
	}

	for i, rec := range ledger.Delete {
		step := fmt.Sprintf("%s/delete[%d]", category, i)
		res, err := mutator.Delete(ctx, rec.ID, true)
		if err != nil {
			return nil, step, err
		}
		if !res.Status.OK() {
			return &res, step, nil
		}
	}

	for i, rec := range ledger.Retire {
		step := fmt.Sprintf("%s/retire[%d]", category, i)
		retirer, ok := mutator.(Retirer)
		if !ok {
			res := status.Failure(status.InternalError, fmt.Sprintf("category %s does not support retire", category))
			return &res, step, nil
		}
		res, err := retirer.Retire(ctx, rec.ID, true)
		if err != nil {
			return nil, step, err
		}
		if !res.Status.OK() {
			return &res, step, nil
		}
	}

	for i, rec := range ledger.Unlock {
		step := fmt.Sprintf("%s/unlock[%d]", category, i)
		unlocker, ok := mutator.(Unlocker)
		if !ok {
			res := status.Failure(status.InternalError, fmt.Sprintf("category %s does not support unlock", category))
			return &res, step, nil
		}
		res, err := unlocker.Unlock(ctx, rec.ID, rec.ChangePasswordOnLogin, true)
		if err != nil {
			return nil, step, err
		}
		if !res.Status.OK() {
			return &res, step, nil
		}
	}

	return nil, "", nil
}

func categoryNames(categories []staging.Category) []string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	return names
}

func firstCategoryName(categories []staging.Category) string {
	if len(categories) == 0 {
		return ""
	}
	return string(categories[0])
}
