// Package defs holds the handful of types shared by every kernel package:
// the error-kind enumeration and the physical/virtual address aliases.
// Grounded on biscuit/src/defs, which plays the same role for the teacher
// kernel (a tiny, dependency-free package everything else imports).
package defs

// Err_t is a recoverable error kind returned by kernel operations. The zero
// value, ErrNone, means success -- callers test `err != defs.ErrNone` the
// same way biscuit callers test `err != 0`.
type Err_t int

const (
	ErrNone Err_t = iota
	ErrOutOfMemory
	ErrOutOfVectors
	ErrOverlap
	ErrNotFound
	ErrPermissionDenied
	ErrBusy
	ErrInvalidArgument
	ErrNotSupported
	ErrTimedOut
	ErrFatal
)

var errNames = [...]string{
	ErrNone:             "none",
	ErrOutOfMemory:       "out of memory",
	ErrOutOfVectors:      "out of vectors",
	ErrOverlap:           "overlap",
	ErrNotFound:          "not found",
	ErrPermissionDenied:  "permission denied",
	ErrBusy:              "busy",
	ErrInvalidArgument:   "invalid argument",
	ErrNotSupported:      "not supported",
	ErrTimedOut:          "timed out",
	ErrFatal:             "fatal",
}

// String implements fmt.Stringer so Err_t values format readably in logs.
func (e Err_t) String() string {
	if int(e) < 0 || int(e) >= len(errNames) {
		return "unknown error"
	}
	return errNames[e]
}

// Error implements the error interface so an Err_t can be returned anywhere
// a plain `error` is expected (e.g. wrapped by a VFS driver boundary).
func (e Err_t) Error() string {
	return e.String()
}

// Ok reports whether e represents success.
func (e Err_t) Ok() bool {
	return e == ErrNone
}
