package job

import (
	"errors"
	"fmt"
)

// SubmitError is returned when the service did not hand back a job id.
type SubmitError struct {
	DeploymentID string
	Message      string
	Err          error
}

func (e *SubmitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submit job for deployment %s: %s: %v", e.DeploymentID, e.Message, e.Err)
	}
	return fmt.Sprintf("submit job for deployment %s: %s", e.DeploymentID, e.Message)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// IsSubmitError reports whether err came from a failed submission.
func IsSubmitError(err error) bool {
	var se *SubmitError
	return errors.As(err, &se)
}
