package storage

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cockroachdb/errors"
)

func newRefSet() *roaring.Bitmap {
	return roaring.New()
}

// linkLocked records the adjacency edges for a freshly indexed quad q and
// returns how many were added. Caller holds s.mu and q is already present
// in every index.
//
//   - every p with p.Object == q.Subject gains q as a successor
//   - q gains every s with s.Subject == q.Object as a successor
//
// Cycles are recorded like any other edge. A quad whose subject equals its
// object ends up referencing itself exactly once.
func (s *Store[ID, V]) linkLocked(q *Quad[ID, V]) int {
	linked := 0
	for _, p := range s.objects.keys[q.Subject] {
		if p.refs.CheckedAdd(q.slot) {
			linked++
		}
	}
	for _, next := range s.subjects.keys[q.Object] {
		if q.refs.CheckedAdd(next.slot) {
			linked++
		}
	}
	return linked
}

// Successors walks the object reference set of the quad stored under id and
// yields copies of the quads whose Subject equals that quad's Object, in
// insertion order.
// This is a single hop of index-free adjacency; no index is consulted.
//
// The reference set is read once when iteration starts. An unknown id
// yields nothing.
func (s *Store[ID, V]) Successors(id ID) iter.Seq[*Quad[ID, V]] {
	return func(yield func(*Quad[ID, V]) bool) {
		for _, next := range s.successorsOf(id) {
			if !yield(copyQuad(next)) {
				return
			}
		}
	}
}

// ObjectReferenceIDs returns the IDs of the quads in the object reference
// set of the quad stored under id, in insertion order.
func (s *Store[ID, V]) ObjectReferenceIDs(id ID) ([]ID, error) {
	s.mu.RLock()
	_, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrInvalidArgument, "unknown quad id %v", id)
	}

	next := s.successorsOf(id)
	ids := make([]ID, len(next))
	for i, q := range next {
		ids[i] = q.ID
	}
	return ids, nil
}

func (s *Store[ID, V]) successorsOf(id ID) []*Quad[ID, V] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.byID[id]
	if !ok {
		return nil
	}
	slots := q.refs.ToArray()
	next := make([]*Quad[ID, V], len(slots))
	for i, slot := range slots {
		next[i] = s.arena[slot]
	}
	return next
}
