// Package status defines the operation outcome codes shared by the staging
// ledger, the entity services, and the review committer.
package status

import "net/http"

// Status represents the outcome of an administrative operation.
type Status string

const (
	Success          Status = "success"
	BadRequest       Status = "bad_request"
	Conflict         Status = "conflict"
	NotFound         Status = "not_found"
	Forbidden        Status = "forbidden"
	InvalidOperation Status = "invalid_operation"
	InternalError    Status = "internal_error"
)

// HTTPCode maps a status to the HTTP status code used by the API layer.
func (s Status) HTTPCode() int {
	switch s {
	case Success:
		return http.StatusOK
	case BadRequest:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case InvalidOperation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// OK reports whether the status is a success.
func (s Status) OK() bool {
	return s == Success
}

// Result is the common return shape for entity and staging operations.
type Result struct {
	Status  Status      `json:"status"`
	Message string      `json:"message,omitempty"`
	Entity  interface{} `json:"entity,omitempty"`
}

// OKResult returns a bare success result.
func OKResult() Result {
	return Result{Status: Success}
}

// Failure returns a result with the given status and message.
func Failure(s Status, message string) Result {
	return Result{Status: s, Message: message}
}
