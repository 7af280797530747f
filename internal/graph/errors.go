package graph

import (
	"strings"

	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
)

// ValidationError lists every problem found in a definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid graph: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return cerrors.ErrInvalidGraph
}
