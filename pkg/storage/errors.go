package storage

import (
	"github.com/cockroachdb/errors"
)

// Errors returned by the quad store. Returned errors wrap one of these
// sentinels, so callers should test with errors.Is.
var (
	// ErrInvalidArgument is returned when a quad or store is constructed with
	// a zero SystemID, quad ID, Subject, Predicate or Object.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateQuadID is returned by Insert when the primary index
	// already holds the quad's ID.
	ErrDuplicateQuadID = errors.New("duplicate quad id")

	// Secondary index failures. A map insert in Go does not fail on its own,
	// so these surface when an index would grow past StoreConfig.MaxIndexKeys.
	ErrSubjectIndex   = errors.New("subject index update failed")
	ErrPredicateIndex = errors.New("predicate index update failed")
	ErrObjectIndex    = errors.New("object index update failed")
	ErrContextIndex   = errors.New("context index update failed")

	// ErrStoreFull is returned when the arena has used every slot a quad
	// position can address.
	ErrStoreFull = errors.New("store is full")

	ErrTransactionAlreadyActive = errors.New("transaction already active")
	ErrTransactionClosed        = errors.New("transaction already closed")

	// ErrNotImplemented is returned by every removal operation. Removal
	// semantics (including retraction of adjacency links) are undecided.
	ErrNotImplemented = errors.New("not implemented")
)

func notImplemented(op string) error {
	return errors.WithHint(
		errors.Wrapf(ErrNotImplemented, "%s", op),
		"quads are append-only; removal is not supported yet",
	)
}
