package dispatch

import "github.com/dgdocker/sigma-mcp-server/pkg/sigma"

// Status discriminates the three outcomes of a dispatch.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPending Status = "pending"
	StatusFailure Status = "failure"
)

// Result is the normalized outcome of one tool invocation. Pending is not
// an error: it is the legitimate "export not ready yet" state of the
// two-phase export/download flow.
type Result struct {
	Status   Status
	Payload  any
	NextPage string
	QueryID  string
	Err      *sigma.Error
}

// Success wraps a payload, with the upstream's next-page cursor passed
// through untouched ("" when the response had none).
func Success(payload any, nextPage string) Result {
	return Result{Status: StatusSuccess, Payload: payload, NextPage: nextPage}
}

// Pending reports an export that the upstream has not finished producing.
func Pending(queryID string) Result {
	return Result{Status: StatusPending, QueryID: queryID}
}

// Failure wraps a structured error. The transport layer always receives a
// Result, never a raw fault.
func Failure(err *sigma.Error) Result {
	return Result{Status: StatusFailure, Err: err}
}
