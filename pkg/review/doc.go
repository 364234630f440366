// Package review validates and replays a session's staged changes against
// the system of record.
//
// A commit accepts at most one active category per document. The active
// category's operations run in the fixed order create, update, delete,
// retire, unlock inside one transaction; the first rejected step rolls the
// whole replay back and the aggregate outcome is reported as a single
// server-side failure. Mutator errors (as opposed to rejections) propagate
// to the caller without a rollback.
package review
