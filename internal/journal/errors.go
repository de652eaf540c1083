package journal

import "errors"

// ErrNotFound is returned when no journal entry matches a lookup.
var ErrNotFound = errors.New("journal: entry not found")
