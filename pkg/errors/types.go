package errors

import (
	"fmt"
)

// ErrNothingToPush is returned by push when no item differs from the
// repository copy. No commit is made.
var ErrNothingToPush = New("nothing to push: all items are identical to the repository")

// ConfigError represents a malformed or missing configuration.
type ConfigError struct {
	Path string
	Err  error
}

func (err ConfigError) Error() string {
	if err.Path == "" {
		return fmt.Sprintf("config: %s", err.Err)
	}
	return fmt.Sprintf("config %q: %s", err.Path, err.Err)
}

func (err ConfigError) Unwrap() error {
	return err.Err
}

// RepoError represents a failure reported by the git transport, such as an
// authentication failure or a rejected push. Err carries the diagnostic from
// the underlying implementation.
type RepoError struct {
	Op  string
	Err error
}

func (err RepoError) Error() string {
	return fmt.Sprintf("repository %s: %s", err.Op, err.Err)
}

func (err RepoError) Unwrap() error {
	return err.Err
}

// IOError represents a failure to read, write or copy a file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (err IOError) Error() string {
	return fmt.Sprintf("%s %q: %s", err.Op, err.Path, err.Err)
}

func (err IOError) Unwrap() error {
	return err.Err
}

// SnapshotNotFound is returned when restoring a backup snapshot that doesn't
// exist.
type SnapshotNotFound struct {
	ID string
}

func (err SnapshotNotFound) Error() string {
	return fmt.Sprintf("backup snapshot %q not found", err.ID)
}

// InvalidPath represents an ignore field path that couldn't be traversed
// because one of its segments isn't a JSON object. It is never fatal.
type InvalidPath struct {
	Path    string
	Segment string
}

func (err InvalidPath) Error() string {
	return fmt.Sprintf("ignore field %q: segment %q is not an object", err.Path, err.Segment)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}
