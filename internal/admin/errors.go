package admin

import (
	"errors"
	"fmt"
)

// InvalidPasswordStatus is the exit status the encryption tool uses to
// report a rejected password.
const InvalidPasswordStatus = 75

// ErrProcessNotFound is returned when no process matches the sampler pattern.
var ErrProcessNotFound = errors.New("process not found")

// ExitError reports a tool that exited with an unexpected non-zero status.
type ExitError struct {
	Path   string
	Status int
	Output string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Path, e.Status)
}
