package auditing

import (
	"errors"
	"fmt"
)

// ErrSolutionNotFound is returned when the requested solution name does not
// resolve to a top-level solution.
var ErrSolutionNotFound = errors.New("solution not found")

// SolutionNotFoundError names the solution that could not be resolved.
type SolutionNotFoundError struct {
	UniqueName string
}

func (e *SolutionNotFoundError) Error() string {
	return fmt.Sprintf("a solution with unique name %s does not exist", e.UniqueName)
}

func (e *SolutionNotFoundError) Unwrap() error {
	return ErrSolutionNotFound
}

// IsSolutionNotFound reports whether err was caused by an unknown solution name.
func IsSolutionNotFound(err error) bool {
	return errors.Is(err, ErrSolutionNotFound)
}
