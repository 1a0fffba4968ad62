package errors

import (
	goerrors "errors"
	"fmt"
)

// New returns an error that formats as the given text.
func New(format string, a ...interface{}) error {
	if len(a) == 0 {
		return goerrors.New(format)
	}
	return fmt.Errorf(format, a...)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return goerrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return goerrors.As(err, target)
}

// contextError annotates an error with a description of what was being done
// when it occurred. The chain reads like a stack of verbs, e.g.
// "pull: snapshot targets: copy settings: permission denied".
type contextError struct {
	context string
	err     error
}

// WithContext wraps err with context. It returns nil if err is nil.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{context: context, err: err}
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextError) Unwrap() error {
	return err.err
}

// friendlyMessager is implemented by errors whose message is meant to be
// shown to users as-is, without the context chain.
type friendlyMessager interface {
	FriendlyMessage() string
}

// FriendlyError is an error with a message formatted for end users.
type FriendlyError struct {
	msg string
}

// NewFriendlyError creates an error whose message is shown to the user
// verbatim by the CLI.
func NewFriendlyError(format string, a ...interface{}) error {
	return FriendlyError{msg: fmt.Sprintf(format, a...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage implements friendlyMessager.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}

// GetPrintableMessage returns the message that should be shown to the user
// for err. If any error in the chain has a friendly message, the outermost one
// is used. Otherwise, the full context chain is returned.
func GetPrintableMessage(err error) string {
	for curr := err; curr != nil; curr = goerrors.Unwrap(curr) {
		if friendly, ok := curr.(friendlyMessager); ok {
			return friendly.FriendlyMessage()
		}
	}
	return err.Error()
}

// RootCause returns the innermost error in err's chain.
func RootCause(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
