package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/diff"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/status"
)

// Store persists per-session staged changes as JSON ledger files.
//
// Every stage operation is a read-modify-write of the whole session document.
// The file is scoped to a single editing session and is not locked against
// concurrent writers; the last writer wins. Single-editor-per-session usage
// is assumed, matching the admin UI's session model.
type Store struct {
	basePath string
	logger   *observability.Logger
	metrics  *observability.Metrics
	auditor  audit.Logger
}

// NewStore creates a ledger store rooted at basePath. The directory is
// created lazily on first write.
func NewStore(basePath string, logger *observability.Logger, metrics *observability.Metrics, auditor audit.Logger) *Store {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	return &Store{
		basePath: basePath,
		logger:   logger,
		metrics:  metrics,
		auditor:  auditor,
	}
}

// path resolves the ledger file for a session.
func (s *Store) path(sessionID string) string {
	// Base strips any path separators a hostile session id could carry.
	return filepath.Join(s.basePath, filepath.Base(sessionID)+".json")
}

// ReadDocument returns the session's document. A missing file is not an
// error; it yields an empty document.
func (s *Store) ReadDocument(sessionID string) (*SessionDocument, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if os.IsNotExist(err) {
		return &SessionDocument{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session document: %w", err)
	}

	var doc SessionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session document: %w", err)
	}
	return &doc, nil
}

// WriteDocument persists a caller-supplied document verbatim. A nil document
// is accepted as a successful no-op.
func (s *Store) WriteDocument(sessionID string, doc *SessionDocument) error {
	if doc == nil {
		return nil
	}

	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal session document: %w", err)
	}

	if err := os.WriteFile(s.path(sessionID), data, 0644); err != nil {
		return fmt.Errorf("failed to write session document: %w", err)
	}

	s.metrics.ObserveLedgerWrite()
	return nil
}

// Clear removes the session's ledger file. A missing file is not an error.
func (s *Store) Clear(sessionID string) error {
	err := os.Remove(s.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session document: %w", err)
	}
	return nil
}

// StageCreate records an entity-creation payload. A payload whose natural
// key matches an already staged create is rejected as a conflict and nothing
// is written.
func (s *Store) StageCreate(ctx context.Context, sessionID string, category Category, payload map[string]interface{}) (status.Result, error) {
	doc, err := s.ReadDocument(sessionID)
	if err != nil {
		return status.Result{}, err
	}

	ledger := doc.Ledger(category)
	key := stringField(payload, category.NaturalKeyField())
	if key != "" && ledger.hasCreateKey(category.NaturalKeyField(), key) {
		observability.FromContext(ctx).WithFields(map[string]interface{}{
			"category": string(category),
			"key":      key,
		}).Warn("Staged create rejected: natural key already staged")
		s.metrics.ObserveStageOperation(string(category), "create", "conflict")
		s.auditor.LogEvent(ctx, &audit.Event{
			EventType:    audit.EventTypeStageCreate,
			Status:       audit.EventStatusConflict,
			SessionID:    sessionID,
			Category:     string(category),
			ResourceName: key,
			Message:      fmt.Sprintf("%s already exists", category.EntityName()),
		})
		return status.Failure(status.Conflict, fmt.Sprintf("%s already exists", category.EntityName())), nil
	}

	ledger.Create = append(ledger.Create, payload)
	if err := s.WriteDocument(sessionID, doc); err != nil {
		return status.Result{}, err
	}

	s.metrics.ObserveStageOperation(string(category), "create", "success")
	s.auditor.LogEvent(ctx, &audit.Event{
		EventType:    audit.EventTypeStageCreate,
		Status:       audit.EventStatusSuccess,
		SessionID:    sessionID,
		Category:     string(category),
		ResourceName: key,
		Changes:      &audit.ChangeDetails{After: payload},
	})
	return status.OKResult(), nil
}

// StageUpdate computes the sparse difference between the old and new payloads
// and records it for the entity.
//
// An empty diff still rewrites the document unchanged and reports success
// without adding a record. A non-empty diff whose resulting natural key
// collides with another staged update (different id) or a staged create is a
// conflict; otherwise the update record for the id is replaced wholesale.
func (s *Store) StageUpdate(ctx context.Context, sessionID string, category Category, newPayload, oldPayload map[string]interface{}, id uint64, name string) (status.Result, error) {
	doc, err := s.ReadDocument(sessionID)
	if err != nil {
		return status.Result{}, err
	}

	changed := diff.Fields(oldPayload, newPayload)
	if len(changed) == 0 {
		if err := s.WriteDocument(sessionID, doc); err != nil {
			return status.Result{}, err
		}
		s.metrics.ObserveStageOperation(string(category), "update", "success")
		return status.OKResult(), nil
	}

	ledger := doc.Ledger(category)
	keyField := category.NaturalKeyField()
	resulting := name
	if v, ok := changed[keyField].(string); ok && v != "" {
		resulting = v
	}

	for _, rec := range ledger.Update {
		if rec.ID != id && rec.resultingName(keyField) == resulting {
			s.metrics.ObserveStageOperation(string(category), "update", "conflict")
			s.auditUpdateConflict(ctx, sessionID, category, id, resulting)
			return status.Failure(status.Conflict, fmt.Sprintf("%s already exists", category.EntityName())), nil
		}
	}
	if ledger.hasCreateKey(keyField, resulting) {
		s.metrics.ObserveStageOperation(string(category), "update", "conflict")
		s.auditUpdateConflict(ctx, sessionID, category, id, resulting)
		return status.Failure(status.Conflict, fmt.Sprintf("%s already exists", category.EntityName())), nil
	}

	rec := UpdateRecord{ID: id, Name: name, OldValue: oldPayload, NewValue: changed}
	if i := ledger.findUpdate(id); i >= 0 {
		ledger.Update[i] = rec
	} else {
		ledger.Update = append(ledger.Update, rec)
	}

	if err := s.WriteDocument(sessionID, doc); err != nil {
		return status.Result{}, err
	}

	s.metrics.ObserveStageOperation(string(category), "update", "success")
	s.auditor.LogEvent(ctx, &audit.Event{
		EventType:    audit.EventTypeStageUpdate,
		Status:       audit.EventStatusSuccess,
		SessionID:    sessionID,
		Category:     string(category),
		ResourceID:   id,
		ResourceName: name,
		Changes:      &audit.ChangeDetails{Before: oldPayload, After: changed},
	})
	return status.OKResult(), nil
}

// auditUpdateConflict records a rejected staged update.
func (s *Store) auditUpdateConflict(ctx context.Context, sessionID string, category Category, id uint64, resulting string) {
	s.auditor.LogEvent(ctx, &audit.Event{
		EventType:    audit.EventTypeStageUpdate,
		Status:       audit.EventStatusConflict,
		SessionID:    sessionID,
		Category:     string(category),
		ResourceID:   id,
		ResourceName: resulting,
		Message:      fmt.Sprintf("%s already exists", category.EntityName()),
	})
}

// StageDelete records an entity deletion. Re-staging an identical delete is
// a no-op; the record is never duplicated.
func (s *Store) StageDelete(ctx context.Context, sessionID string, category Category, id uint64, name string) (status.Result, error) {
	doc, err := s.ReadDocument(sessionID)
	if err != nil {
		return status.Result{}, err
	}

	ledger := doc.Ledger(category)
	rec := IdentityRecord{ID: id, Name: name}
	if !containsIdentity(ledger.Delete, rec) {
		ledger.Delete = append(ledger.Delete, rec)
	}

	if err := s.WriteDocument(sessionID, doc); err != nil {
		return status.Result{}, err
	}

	s.metrics.ObserveStageOperation(string(category), "delete", "success")
	s.auditor.LogEvent(ctx, &audit.Event{
		EventType:    audit.EventTypeStageDelete,
		Status:       audit.EventStatusSuccess,
		SessionID:    sessionID,
		Category:     string(category),
		ResourceID:   id,
		ResourceName: name,
	})
	return status.OKResult(), nil
}

// StageRetire records an account retirement with the same idempotent-append
// behavior as StageDelete. Only the users category stages retirements in
// practice, but the mechanism is category-generic.
func (s *Store) StageRetire(ctx context.Context, sessionID string, category Category, id uint64, name string) (status.Result, error) {
	doc, err := s.ReadDocument(sessionID)
	if err != nil {
		return status.Result{}, err
	}

	ledger := doc.Ledger(category)
	rec := IdentityRecord{ID: id, Name: name}
	if !containsIdentity(ledger.Retire, rec) {
		ledger.Retire = append(ledger.Retire, rec)
	}

	if err := s.WriteDocument(sessionID, doc); err != nil {
		return status.Result{}, err
	}

	s.metrics.ObserveStageOperation(string(category), "retire", "success")
	s.auditor.LogEvent(ctx, &audit.Event{
		EventType:    audit.EventTypeStageRetire,
		Status:       audit.EventStatusSuccess,
		SessionID:    sessionID,
		Category:     string(category),
		ResourceID:   id,
		ResourceName: name,
	})
	return status.OKResult(), nil
}

// StageUnlock records an account unlock, keyed by id, name, and the
// change-password flag. An identical record is never duplicated.
func (s *Store) StageUnlock(ctx context.Context, sessionID string, category Category, id uint64, name string, changePasswordOnLogin bool) (status.Result, error) {
	doc, err := s.ReadDocument(sessionID)
	if err != nil {
		return status.Result{}, err
	}

	ledger := doc.Ledger(category)
	rec := UnlockRecord{ID: id, Name: name, ChangePasswordOnLogin: changePasswordOnLogin}
	if !containsUnlock(ledger.Unlock, rec) {
		ledger.Unlock = append(ledger.Unlock, rec)
	}

	if err := s.WriteDocument(sessionID, doc); err != nil {
		return status.Result{}, err
	}

	s.metrics.ObserveStageOperation(string(category), "unlock", "success")
	s.auditor.LogEvent(ctx, &audit.Event{
		EventType:    audit.EventTypeStageUnlock,
		Status:       audit.EventStatusSuccess,
		SessionID:    sessionID,
		Category:     string(category),
		ResourceID:   id,
		ResourceName: name,
		Metadata:     map[string]interface{}{"change_password_on_login": changePasswordOnLogin},
	})
	return status.OKResult(), nil
}

// hasCreateKey reports whether a staged create payload carries the given
// natural key value.
func (l *CategoryLedger) hasCreateKey(field, value string) bool {
	for _, payload := range l.Create {
		if stringField(payload, field) == value {
			return true
		}
	}
	return false
}

// resultingName returns the name an update record would produce once
// applied: the staged new value for the key field when present, the current
// name otherwise.
func (r UpdateRecord) resultingName(keyField string) string {
	if newValue, ok := r.NewValue.(map[string]interface{}); ok {
		if v, ok := newValue[keyField].(string); ok && v != "" {
			return v
		}
	}
	return r.Name
}

// stringField extracts a string-valued field from a decoded payload.
func stringField(payload map[string]interface{}, field string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[field].(string); ok {
		return v
	}
	return ""
}
