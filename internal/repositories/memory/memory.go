// Package memory provides in-process repository implementations used for
// local runs without a Firestore backend and as fixtures in tests.
package memory

import "fmt"

// repoError implements repositories.RepositoryError for the in-memory backend.
type repoError struct {
	op       string
	msg      string
	notFound bool
	conflict bool
}

func (e *repoError) Error() string {
	return fmt.Sprintf("%s: %s", e.op, e.msg)
}

func (e *repoError) IsNotFound() bool    { return e != nil && e.notFound }
func (e *repoError) IsConflict() bool    { return e != nil && e.conflict }
func (e *repoError) IsUnavailable() bool { return false }

func notFoundError(op, msg string) error {
	return &repoError{op: op, msg: msg, notFound: true}
}

func conflictError(op, msg string) error {
	return &repoError{op: op, msg: msg, conflict: true}
}
