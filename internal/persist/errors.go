package persist

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingFilename is returned when a message carries no "filename"
	// user property. No file is written.
	ErrMissingFilename = errors.New("persist: message has no filename property")

	// ErrUnsafeFilename is returned when the filename would resolve outside
	// the target directory (absolute, empty, or climbing with "..").
	ErrUnsafeFilename = errors.New("persist: filename escapes target directory")
)

// PersistError reports a failed file write.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist: writing %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
