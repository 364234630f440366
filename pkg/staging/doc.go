// Package staging implements the per-session staged-change ledger.
//
// # Overview
//
// Administrative edits are not applied to the system of record immediately.
// Each editing session stages its intended creates, updates, deletes,
// retirements, and unlocks in a JSON document on disk, one file per session
// at {basePath}/{sessionID}.json. The review committer (pkg/review) later
// replays a document against the real store in a single transaction.
//
// # Document shape
//
//	{
//	  "users":              { "create": [...], "update": [...], "delete": [...], "retire": [...], "unlock": [...] },
//	  "roles":              { "create": [...], "update": [...], "delete": [...] },
//	  "devices":            { ... },
//	  "settingAndPolicies": { "update": [...] }
//	}
//
// Create payloads are opaque decoded JSON objects; update records carry a
// full old snapshot and a sparse new value holding only the changed fields.
// Missing files and missing categories are empty, never errors.
//
// # Conflict rules
//
// Within a category, creates are unique by natural key (username for users,
// name elsewhere) and update/delete/retire/unlock records are unique by id.
// An update whose resulting name collides with another pending update or a
// pending create is rejected as a conflict. Identical deletes, retirements,
// and unlocks are absorbed idempotently.
//
// The ledger performs unprotected read-modify-write on the session file;
// concurrent writers for one session are not supported.
package staging
