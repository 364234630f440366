// Package directory implements the entity mutators for users, roles,
// devices, and settings over the relational system of record.
//
// Each service applies a single create, update, delete, retire, or unlock.
// The persistImmediately flag selects between writing straight to the
// database (the review committer's replay path) and recording the intent in
// the session ledger (the interactive editing path). Services route their
// SQL through the transaction coordinator so that replayed mutations share
// one transaction.
package directory
