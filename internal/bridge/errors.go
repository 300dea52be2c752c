package bridge

import (
	"errors"
	"fmt"
)

// ErrNotSupported is returned by solver features the remote service does
// not offer. It is wrapped with the operation name.
var ErrNotSupported = errors.New("not supported by the remote solver")

func notSupported(op string) error {
	return fmt.Errorf("%s: %w", op, ErrNotSupported)
}

// SolveError represents a failure of a bridge operation.
//
// SolveError includes a Code so callers can tell a missing solution from a
// bad call or a remote job that ended without a result.
type SolveError struct {
	// Code identifies the error category.
	Code SolveErrorCode

	// Message is a human-readable description.
	Message string

	// Object names the model object involved, if any.
	Object string

	// JobStatus is the raw status document of the remote job, when known.
	JobStatus []byte

	// Err is the underlying error.
	Err error
}

// SolveErrorCode categorizes bridge errors.
type SolveErrorCode string

const (
	// ErrCodeNoSolution indicates a query before any successful solve.
	ErrCodeNoSolution SolveErrorCode = "NO_SOLUTION"

	// ErrCodeUnknownObject indicates a query about an object absent from
	// the last solution.
	ErrCodeUnknownObject SolveErrorCode = "UNKNOWN_OBJECT"

	// ErrCodeBadCall indicates inconsistent arguments.
	ErrCodeBadCall SolveErrorCode = "BAD_CALL"

	// ErrCodeNoSolveState indicates the remote job ended without a solve
	// state, usually because it failed.
	ErrCodeNoSolveState SolveErrorCode = "NO_SOLVE_STATE"

	// ErrCodeMissingArtifact indicates the job completed without the
	// expected solution output.
	ErrCodeMissingArtifact SolveErrorCode = "MISSING_ARTIFACT"
)

// Error implements the error interface.
func (e *SolveError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Object != "" {
		msg += fmt.Sprintf(" (object=%s)", e.Object)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *SolveError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code SolveErrorCode) bool {
	var se *SolveError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsNoSolution returns true if err reports that no solution is available.
func IsNoSolution(err error) bool { return hasCode(err, ErrCodeNoSolution) }

// IsUnknownObject returns true if err reports an object missing from the
// solution.
func IsUnknownObject(err error) bool { return hasCode(err, ErrCodeUnknownObject) }

// IsBadCall returns true if err reports inconsistent arguments.
func IsBadCall(err error) bool { return hasCode(err, ErrCodeBadCall) }

// IsNoSolveState returns true if the remote job ended without a solve state.
func IsNoSolveState(err error) bool { return hasCode(err, ErrCodeNoSolveState) }

var errNoSolution = &SolveError{Code: ErrCodeNoSolution, Message: "no solution available"}

func unknownObject(what, name string) error {
	return &SolveError{Code: ErrCodeUnknownObject, Message: "unknown " + what + " in the solution", Object: name}
}

func badCall(format string, args ...any) error {
	return &SolveError{Code: ErrCodeBadCall, Message: fmt.Sprintf(format, args...)}
}
