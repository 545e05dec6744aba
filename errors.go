package nocloud

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// Engine errors
var (
	ErrTraversal         = errors.New("traversal failed")
	ErrConfigNotFound    = errors.New("no configuration found")
	ErrConfigParse       = errors.New("invalid configuration")
	ErrUnsupportedDriver = errors.New("unsupported driver")
	ErrAuthentication    = errors.New("authentication failed")
	ErrTransient         = errors.New("transient backend error")
	ErrFatalBackend      = errors.New("fatal backend error")
	ErrNotExist          = errors.New("object does not exist")
	ErrCancelled         = errors.New("operation cancelled")
	ErrIO                = errors.New("i/o error")
)

// PathError records an error and the operation and file path that caused it
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *PathError) Unwrap() error {
	return e.Err
}

// ErrorKind is the user-visible classification of a failure.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindTraversal         ErrorKind = "traversal"
	KindConfigNotFound    ErrorKind = "config-not-found"
	KindConfigParse       ErrorKind = "config-parse"
	KindUnsupportedDriver ErrorKind = "unsupported-driver"
	KindAuthentication    ErrorKind = "authentication"
	KindTransient         ErrorKind = "transient"
	KindFatalBackend      ErrorKind = "fatal-backend"
	KindNotExist          ErrorKind = "not-exist"
	KindCancelled         ErrorKind = "cancelled"
	KindIO                ErrorKind = "io"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrTraversal, KindTraversal},
	{ErrConfigNotFound, KindConfigNotFound},
	{ErrConfigParse, KindConfigParse},
	{ErrUnsupportedDriver, KindUnsupportedDriver},
	{ErrAuthentication, KindAuthentication},
	{ErrCancelled, KindCancelled},
	{ErrTransient, KindTransient},
	{ErrFatalBackend, KindFatalBackend},
	{ErrNotExist, KindNotExist},
	{ErrIO, KindIO},
}

// Kind classifies err. Unknown errors are reported as KindIO.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	if errors.Is(err, fs.ErrNotExist) {
		return KindNotExist
	}
	return KindIO
}

// IsTransient reports whether err may succeed when retried
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsConfigNotFound reports whether no configuration document governs a path
func IsConfigNotFound(err error) bool {
	return errors.Is(err, ErrConfigNotFound)
}

// IsAuthentication reports whether a decryption failed because of a wrong
// password or a tampered ciphertext
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}
