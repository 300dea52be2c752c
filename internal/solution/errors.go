package solution

import (
	"errors"
	"fmt"
)

// MalformedError reports a solution artifact that does not follow its
// grammar. No partial result accompanies it.
type MalformedError struct {
	Detail string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed solution: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("malformed solution: %s", e.Detail)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is a MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}

func malformed(format string, args ...any) error {
	return &MalformedError{Detail: fmt.Sprintf(format, args...)}
}
