package persist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nerrad567/mqtt2file/internal/infrastructure/mqtt"
)

// FilenameProperty is the user property that names the output file.
const FilenameProperty = "filename"

// fileMode is the permission of newly created files, before umask.
const fileMode = 0o644

// Persist writes the payload of msg to dir/<filename> and returns the path.
//
// The file is created or truncated; when two messages carry the same
// filename the later write wins. A zero-length payload produces an empty
// file.
//
// Returns:
//   - string: Path written
//   - error: ErrMissingFilename, ErrUnsafeFilename, or *PersistError
func Persist(msg *mqtt.Message, dir string) (string, error) {
	name, ok := msg.Property(FilenameProperty)
	if !ok {
		return "", ErrMissingFilename
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeFilename, name)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, msg.Payload, fileMode); err != nil {
		return path, &PersistError{Path: path, Err: err}
	}

	return path, nil
}
