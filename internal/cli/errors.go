package cli

import (
	"errors"
	"fmt"

	genspec "github.com/mark3labs/spec2client/internal/spec"
)

// ErrUsage matches every error caused by bad input rather than a failing
// service: flags, configuration, and invalid specifications.
var ErrUsage = errors.New("cli usage error")

type usageError struct {
	msg string
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

func (e usageError) Error() string {
	return e.msg
}

func (e usageError) Is(target error) bool {
	return target == ErrUsage
}

// specUsageError turns a *spec.SpecError anywhere in err's chain into a
// usage error carrying its location and pointer. Other errors pass through.
func specUsageError(err error) error {
	var se *genspec.SpecError
	if !errors.As(err, &se) {
		return err
	}
	msg := fmt.Sprintf("spec: %s", se.Message)
	if se.Location != "" {
		msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
	}
	if se.JSONPointer != "" {
		msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
	}
	return newUsageError(msg)
}
