// Package errors provides a minimal sentinel error type so packages can
// declare `const Err... = errors.Error("...")` instead of pulling in
// pkg/errors-style wrapping for conditions that are part of normal control
// flow (not enough space, empty tuple, and so on).
package errors

type Error string

func (e Error) Error() string { return string(e) }
