// Package storage provides the in-memory quad store.
//
// A quad is a Subject -Predicate-> Object fragment tagged with a Context. The
// store keeps every quad in an append-only arena, indexes it by ID and by each
// of its four values, and links it to the quads that chain through it
// (object of one quad is the subject of the next). Those links are stored on
// the quads themselves, so walking from a quad to its successors needs no
// index lookup.
//
// Example Usage:
//
//	store, err := storage.NewStore("system-1",
//		func(n int64) string { return strconv.FormatInt(n, 10) },
//		func() string { return "default" },
//	)
//	if err != nil {
//		return err
//	}
//
//	store.Add("alice", "knows", "bob")
//	store.Add("bob", "knows", "carol")
//
//	for v := range store.Traverse("alice", "knows", true) {
//		fmt.Println(v) // alice, bob, carol
//	}
//
// Thread Safety:
//
//	All Store methods are safe for concurrent use. The store keeps its own
//	copy of every quad and hands out copies, so changing a returned quad
//	never reaches the indices.
package storage

import (
	"cmp"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cockroachdb/errors"
)

// Value is the constraint shared by identifiers and SPOC values: it must
// support equality, ordering and hashing (usable as a map key).
type Value interface {
	comparable
	cmp.Ordered
}

// Quad is one Subject -Predicate-> Object [Context] fragment.
//
// A store copies a quad when it is inserted and again when it is read, so
// the stored SPOC fields and identifiers never change. The only stored state
// that grows afterwards is the object reference set, kept on the store's
// copy. Read it through Store.Successors or Store.ObjectReferenceIDs.
type Quad[ID Value, V Value] struct {
	ID            ID
	SystemID      ID
	TransactionID ID // zero when the quad was not added under a transaction

	Subject   V
	Predicate V
	Object    V
	Context   V

	// StorageOffset is reserved for an on-disk position. The in-memory
	// store never reads it.
	StorageOffset int64

	// Set only on the store's own copy.
	slot uint32          // arena position
	refs *roaring.Bitmap // arena slots of successor quads; guarded by Store.mu
}

// NewQuad builds a quad, validating that the identifiers and the Subject,
// Predicate and Object are set. A zero context is replaced by defaultContext.
//
// Returns ErrInvalidArgument when systemID, id, subject, predicate or object
// is the zero value of its type.
func NewQuad[ID Value, V Value](id, systemID, txID ID, subject, predicate, object, context, defaultContext V) (*Quad[ID, V], error) {
	var zeroID ID
	var zero V

	switch {
	case systemID == zeroID:
		return nil, errors.Wrap(ErrInvalidArgument, "system id must be set")
	case id == zeroID:
		return nil, errors.Wrap(ErrInvalidArgument, "quad id must be set")
	case subject == zero:
		return nil, errors.Wrap(ErrInvalidArgument, "subject must be set")
	case predicate == zero:
		return nil, errors.Wrap(ErrInvalidArgument, "predicate must be set")
	case object == zero:
		return nil, errors.Wrap(ErrInvalidArgument, "object must be set")
	}

	if context == zero {
		context = defaultContext
	}

	return &Quad[ID, V]{
		ID:            id,
		SystemID:      systemID,
		TransactionID: txID,
		Subject:       subject,
		Predicate:     predicate,
		Object:        object,
		Context:       context,
	}, nil
}

// copyQuad returns a copy of q without the store-private slot and
// reference set.
func copyQuad[ID Value, V Value](q *Quad[ID, V]) *Quad[ID, V] {
	if q == nil {
		return nil
	}
	return &Quad[ID, V]{
		ID:            q.ID,
		SystemID:      q.SystemID,
		TransactionID: q.TransactionID,
		Subject:       q.Subject,
		Predicate:     q.Predicate,
		Object:        q.Object,
		Context:       q.Context,
		StorageOffset: q.StorageOffset,
	}
}

// String renders the quad as "Id {ID}: {Subject} -{Predicate}-> {Object} [{Context}]".
// The format is stable and used in logs.
func (q *Quad[ID, V]) String() string {
	return fmt.Sprintf("Id %v: %v -%v-> %v [%v]", q.ID, q.Subject, q.Predicate, q.Object, q.Context)
}
