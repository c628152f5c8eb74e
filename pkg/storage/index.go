package storage

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// secondaryIndex maps one SPOC field's value to the quads sharing it, in
// insertion order. Lists are append-only: a reader holding a prefix of a list
// never sees it change.
type secondaryIndex[ID Value, V Value] struct {
	name  string
	err   error
	field func(*Quad[ID, V]) V
	keys  map[V][]*Quad[ID, V]
}

func newSecondaryIndex[ID Value, V Value](name string, err error, field func(*Quad[ID, V]) V) *secondaryIndex[ID, V] {
	return &secondaryIndex[ID, V]{
		name:  name,
		err:   err,
		field: field,
		keys:  make(map[V][]*Quad[ID, V]),
	}
}

// check reports whether q can be added without exceeding maxKeys distinct
// keys. Appending to an existing list always succeeds.
func (ix *secondaryIndex[ID, V]) check(q *Quad[ID, V], maxKeys int) error {
	key := ix.field(q)
	if _, exists := ix.keys[key]; exists {
		return nil
	}
	if maxKeys > 0 && len(ix.keys) >= maxKeys {
		return errors.Wrapf(ix.err, "%s index is full (%d keys), cannot add %v", ix.name, maxKeys, key)
	}
	return nil
}

func (ix *secondaryIndex[ID, V]) add(q *Quad[ID, V]) {
	key := ix.field(q)
	ix.keys[key] = append(ix.keys[key], q)
}

// lookup returns the list for key, capped so later appends stay invisible
// to the caller.
func (ix *secondaryIndex[ID, V]) lookup(key V) []*Quad[ID, V] {
	list := ix.keys[key]
	return list[:len(list):len(list)]
}

func (ix *secondaryIndex[ID, V]) count() uint64 {
	return uint64(len(ix.keys))
}

// Insert adds a copy of q to the primary index and the four secondary
// indices without linking it to other quads. Use AddQuad to insert and link
// in one step. Later changes to q do not affect the store, and the same q
// may be inserted into several stores.
//
// All five index updates are checked before any is applied, and applied
// under the store's write lock, so a failed Insert leaves no trace and no
// reader ever sees q in some indices but not others.
//
// Returns:
//   - ErrInvalidArgument if q is nil, belongs to another system, or has a zero ID/Subject/Predicate/Object
//   - ErrDuplicateQuadID if q.ID is already stored
//   - ErrSubjectIndex, ErrPredicateIndex, ErrObjectIndex or ErrContextIndex if that index is full
//   - ErrStoreFull if the arena has no free slot
func (s *Store[ID, V]) Insert(q *Quad[ID, V]) error {
	if err := s.validate(q); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.insertLocked(q); err != nil {
		s.log.Warn("quad rejected", zapQuad(q), zap.Error(err))
		return err
	}
	return nil
}

func (s *Store[ID, V]) validate(q *Quad[ID, V]) error {
	if q == nil {
		return errors.Wrap(ErrInvalidArgument, "quad must not be nil")
	}

	var zeroID ID
	var zero V
	switch {
	case q.ID == zeroID:
		return errors.Wrap(ErrInvalidArgument, "quad id must be set")
	case q.SystemID != s.systemID:
		return errors.Wrapf(ErrInvalidArgument, "quad belongs to system %v, store is %v", q.SystemID, s.systemID)
	case q.Subject == zero:
		return errors.Wrap(ErrInvalidArgument, "subject must be set")
	case q.Predicate == zero:
		return errors.Wrap(ErrInvalidArgument, "predicate must be set")
	case q.Object == zero:
		return errors.Wrap(ErrInvalidArgument, "object must be set")
	case q.Context == zero:
		return errors.Wrap(ErrInvalidArgument, "context must be set")
	}
	return nil
}

// maxArenaLen is the number of slots a uint32 arena position can address.
var maxArenaLen int64 = 1 << 32

// insertLocked plans then commits the five index updates for a copy of q and
// returns the stored copy. Caller holds s.mu.
func (s *Store[ID, V]) insertLocked(q *Quad[ID, V]) (*Quad[ID, V], error) {
	if _, exists := s.byID[q.ID]; exists {
		return nil, errors.Wrapf(ErrDuplicateQuadID, "quad id %v", q.ID)
	}
	if int64(len(s.arena)) >= maxArenaLen {
		return nil, errors.Wrapf(ErrStoreFull, "arena holds %d quads", len(s.arena))
	}
	for _, ix := range s.indices {
		if err := ix.check(q, s.cfg.MaxIndexKeys); err != nil {
			return nil, err
		}
	}

	stored := copyQuad(q)
	stored.slot = uint32(len(s.arena))
	stored.refs = newRefSet()

	s.arena = append(s.arena, stored)
	s.byID[stored.ID] = stored
	for _, ix := range s.indices {
		ix.add(stored)
	}
	return stored, nil
}

// GetByID returns a copy of the quad stored under id.
func (s *Store[ID, V]) GetByID(id ID) (*Quad[ID, V], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return copyQuad(q), true
}

// CountQuads returns the number of entries in the primary index.
func (s *Store[ID, V]) CountQuads() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.byID))
}

// CountSubjects returns the number of distinct subjects.
func (s *Store[ID, V]) CountSubjects() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subjects.count()
}

// CountPredicates returns the number of distinct predicates.
func (s *Store[ID, V]) CountPredicates() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.predicates.count()
}

// CountObjects returns the number of distinct objects.
func (s *Store[ID, V]) CountObjects() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects.count()
}

// CountContexts returns the number of distinct contexts.
func (s *Store[ID, V]) CountContexts() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contexts.count()
}
