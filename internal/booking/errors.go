package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSlotUnavailable means the requested interval is occupied, blocked or
// outside the schedule; the caller should re-fetch availability and retry.
var ErrSlotUnavailable = errors.New("slot unavailable")

// ValidationError carries every missing or malformed input field, not just
// the first one found.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return fmt.Sprintf("invalid booking input: %s", strings.Join(names, ", "))
}

// StorageError wraps a persistence failure. Fatal for the request; the
// handler logs the detail and surfaces only a generic message.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure: %v", e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
