package documents

import (
	"fmt"

	"github.com/agriledger/agriledger/internal/shared"
)

// Status is the document lifecycle state. Transitions go through the typed
// functions below; nothing else writes the status column, so an illegal
// transition cannot be expressed.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusPosted   Status = "POSTED"
	StatusReversed Status = "REVERSED"
)

var (
	// ErrNotPostable rejects posting a document that is not DRAFT.
	ErrNotPostable = fmt.Errorf("documents: not in a postable state: %w", shared.ErrConflict)
	// ErrNotReversible rejects reversing a document that is not POSTED.
	ErrNotReversible = fmt.Errorf("documents: not in a reversible state: %w", shared.ErrConflict)
)

// Post transitions DRAFT -> POSTED.
func (s Status) Post() (Status, error) {
	if s != StatusDraft {
		return s, fmt.Errorf("%w: status %s", ErrNotPostable, s)
	}
	return StatusPosted, nil
}

// Reverse transitions POSTED -> REVERSED. The document keeps its posting
// group; reversal adds the offsetting group, it never deletes history.
func (s Status) Reverse() (Status, error) {
	if s != StatusPosted {
		return s, fmt.Errorf("%w: status %s", ErrNotReversible, s)
	}
	return StatusReversed, nil
}

// Mutable reports whether header and lines may still change.
func (s Status) Mutable() bool {
	return s == StatusDraft
}
