package core

import (
	"fmt"

	"github.com/kilupskalvis/doclink/internal/query"
)

// ExecutorError is returned when one of the queries issued while resolving
// relationships fails. The whole fetch is aborted.
type ExecutorError struct {
	Query *query.Definition
	Err   error
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("fetch related %s: %v", e.Query.Doctype, e.Err)
}

func (e *ExecutorError) Unwrap() error {
	return e.Err
}
