// Package testutil holds small assertion helpers shared across this
// module's test files, the same role the teacher's own testutil package
// plays for its server/cluster tests.
package testutil

import (
	"testing"

	"gotest.tools/v3/assert"
)

// NilOf returns the zero value of T, used by AssertNil to compare against.
func NilOf[T any]() T {
	var zero T
	return zero
}

// AssertNil fails the test unless value equals T's zero value. Useful where
// a typed nil (e.g. an Engine call's any-typed result on the error path)
// can't be compared against a bare nil literal without a type assertion.
func AssertNil[T any](t *testing.T, value T) {
	t.Helper()
	assert.Equal(t, value, NilOf[T]())
}
