package journal

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned by a load when neither the remote store nor
	// the local fallback could produce the collection.
	ErrUnavailable   = errors.New("journal data unavailable")
	ErrEntryNotFound = errors.New("entry not found")
	ErrInvalidMood   = errors.New("invalid mood")
	ErrInvalidDate   = errors.New("invalid date, expected YYYY-MM-DD")
	ErrEmptyContent  = errors.New("entry content is empty")
)

// PersistError reports a mutation that failed both remotely and locally.
type PersistError struct {
	Op     string
	Remote error
	Local  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s: remote: %v; local: %v", e.Op, e.Remote, e.Local)
}

func (e *PersistError) Unwrap() []error {
	return []error{e.Remote, e.Local}
}
