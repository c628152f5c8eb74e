package storage

import (
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Vanaheimr/Balder-sub010/pkg/config"
)

// Store is a thread-safe in-memory quad store.
//
// Layout:
//   - arena: every quad in insertion order; a quad's slot never changes
//   - byID: primary index, quad ID -> quad
//   - subjects, predicates, objects, contexts: value -> quads, insertion order
//
// Each quad also carries its object reference set (arena slots of the quads
// that follow it), maintained on insert by the adjacency linker.
//
// Performance Characteristics:
//   - Add: O(k) where k = quads chaining into or out of the new quad
//   - GetQuad: O(1)
//   - GetQuads with a bound field: O(m) where m = shortest matching index list
//   - GetQuads with nothing bound, SelectQuads: O(n)
//
// Thread Safety:
//
//	One RWMutex guards the arena, all five indices and every object
//	reference set. Insert and linking run under the write lock, so a quad is
//	either fully indexed and linked or absent. Sequences snapshot what they
//	walk under the read lock when iteration starts and yield without holding
//	it, so a consumer may call Add from inside a range loop.
type Store[ID Value, V Value] struct {
	mu sync.RWMutex

	systemID       ID
	defaultContext func() V
	ids            *Allocator[ID]
	txIDs          *Allocator[ID]

	cfg config.StoreConfig
	log *zap.Logger

	arena []*Quad[ID, V]
	byID  map[ID]*Quad[ID, V]

	subjects   *secondaryIndex[ID, V]
	predicates *secondaryIndex[ID, V]
	objects    *secondaryIndex[ID, V]
	contexts   *secondaryIndex[ID, V]
	indices    []*secondaryIndex[ID, V]
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	cfg config.StoreConfig
	log *zap.Logger
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *storeOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// WithConfig sets the store configuration. Only MaxIndexKeys and
// IndexAssistedQueries are read; the default context is always the
// function passed to NewStore.
func WithConfig(cfg config.StoreConfig) Option {
	return func(o *storeOptions) {
		o.cfg = cfg
	}
}

// NewStore creates an empty store.
//
// Parameters:
//   - systemID: identifies this store; copied into every quad it creates
//   - convert: turns the allocator's counter (1, 2, 3, ...) into an ID; must be pure
//   - defaultContext: supplies the context for quads added without one
//
// All three are fixed for the lifetime of the store.
//
// Returns ErrInvalidArgument if systemID is the zero value or a function is nil.
//
// Example:
//
//	store, err := storage.NewStore[uint64, string](1,
//		func(n int64) uint64 { return uint64(n) },
//		func() string { return "default" },
//		storage.WithLogger(logger),
//	)
func NewStore[ID Value, V Value](systemID ID, convert func(int64) ID, defaultContext func() V, opts ...Option) (*Store[ID, V], error) {
	var zeroID ID
	switch {
	case systemID == zeroID:
		return nil, errors.Wrap(ErrInvalidArgument, "system id must be set")
	case convert == nil:
		return nil, errors.Wrap(ErrInvalidArgument, "id conversion function must be set")
	case defaultContext == nil:
		return nil, errors.Wrap(ErrInvalidArgument, "default context supplier must be set")
	}

	o := storeOptions{
		cfg: config.DefaultConfig().Store,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store[ID, V]{
		systemID:       systemID,
		defaultContext: defaultContext,
		ids:            NewAllocator(convert),
		txIDs:          NewAllocator(convert),
		cfg:            o.cfg,
		log:            o.log.With(zap.Any("system", systemID)),
		byID:           make(map[ID]*Quad[ID, V]),
		subjects:       newSecondaryIndex("subject", ErrSubjectIndex, func(q *Quad[ID, V]) V { return q.Subject }),
		predicates:     newSecondaryIndex("predicate", ErrPredicateIndex, func(q *Quad[ID, V]) V { return q.Predicate }),
		objects:        newSecondaryIndex("object", ErrObjectIndex, func(q *Quad[ID, V]) V { return q.Object }),
		contexts:       newSecondaryIndex("context", ErrContextIndex, func(q *Quad[ID, V]) V { return q.Context }),
	}
	s.indices = []*secondaryIndex[ID, V]{s.subjects, s.predicates, s.objects, s.contexts}

	return s, nil
}

// SystemID returns the identifier of this store.
func (s *Store[ID, V]) SystemID() ID {
	return s.systemID
}

// AddOptions adjusts a single AddWith call. The zero value matches Add.
type AddOptions[ID Value, V Value] struct {
	// Context is used instead of the store default when set.
	Context V
	// NoConnect skips adjacency linking for the new quad.
	NoConnect bool
	// Tx stamps the new quad with the transaction's ID and records it there.
	Tx *Transaction[ID]
}

// Add creates a quad in the default context with a fresh ID, indexes it and
// links it to the quads that chain through it.
func (s *Store[ID, V]) Add(subject, predicate, object V) (*Quad[ID, V], error) {
	return s.AddWith(subject, predicate, object, AddOptions[ID, V]{})
}

// AddWith is Add with an explicit context, linking switch or transaction.
//
// Returns the stored quad, or:
//   - ErrInvalidArgument if subject, predicate or object is the zero value
//   - ErrInvalidArgument if opts.Tx was begun on another store
//   - ErrTransactionClosed if opts.Tx no longer accepts writes
//   - an index error if a secondary index is full
//
// Example:
//
//	q, err := store.AddWith("alice", "knows", "bob", storage.AddOptions[uint64, string]{
//		Context: "social",
//		Tx:      tx,
//	})
func (s *Store[ID, V]) AddWith(subject, predicate, object V, opts AddOptions[ID, V]) (*Quad[ID, V], error) {
	if opts.Tx == nil {
		var none ID
		return s.add(subject, predicate, object, opts, none)
	}

	if opts.Tx.owner != any(s) {
		return nil, errors.Wrapf(ErrInvalidArgument,
			"transaction %v of system %v does not belong to this store", opts.Tx.ID, opts.Tx.SystemID)
	}

	var q *Quad[ID, V]
	err := opts.Tx.write(func(txID ID) (ID, error) {
		var err error
		if q, err = s.add(subject, predicate, object, opts, txID); err != nil {
			var none ID
			return none, err
		}
		return q.ID, nil
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Store[ID, V]) add(subject, predicate, object V, opts AddOptions[ID, V], txID ID) (*Quad[ID, V], error) {
	var zero V
	context := opts.Context
	if context == zero {
		context = s.defaultContext()
	}

	q, err := NewQuad(s.ids.NextID(), s.systemID, txID, subject, predicate, object, context, context)
	if err != nil {
		return nil, err
	}
	return s.AddQuad(q, !opts.NoConnect)
}

// AddQuad inserts a copy of a prebuilt quad and, if connect is set, links
// it. It is the advanced form of Add for callers that construct quads with
// NewQuad. The returned quad is a copy of the stored one.
func (s *Store[ID, V]) AddQuad(q *Quad[ID, V], connect bool) (*Quad[ID, V], error) {
	if err := s.validate(q); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.insertLocked(q)
	if err != nil {
		s.log.Warn("quad rejected", zapQuad(q), zap.Error(err))
		return nil, err
	}

	linked := 0
	if connect {
		linked = s.linkLocked(stored)
	}
	if ce := s.log.Check(zap.DebugLevel, "quad added"); ce != nil {
		ce.Write(zapQuad(stored), zap.Int("links", linked))
	}
	return copyQuad(stored), nil
}

// GetQuad returns a copy of the quad stored under id.
func (s *Store[ID, V]) GetQuad(id ID) (*Quad[ID, V], bool) {
	return s.GetByID(id)
}

// NumberOfQuads returns the number of stored quads.
func (s *Store[ID, V]) NumberOfQuads() uint64 { return s.CountQuads() }

// NumberOfSubjects returns the number of distinct subjects.
func (s *Store[ID, V]) NumberOfSubjects() uint64 { return s.CountSubjects() }

// NumberOfPredicates returns the number of distinct predicates.
func (s *Store[ID, V]) NumberOfPredicates() uint64 { return s.CountPredicates() }

// NumberOfObjects returns the number of distinct objects.
func (s *Store[ID, V]) NumberOfObjects() uint64 { return s.CountObjects() }

// NumberOfContexts returns the number of distinct contexts.
func (s *Store[ID, V]) NumberOfContexts() uint64 { return s.CountContexts() }

// Stats is a consistent snapshot of the store's counters.
type Stats struct {
	Quads      uint64 `json:"quads" yaml:"quads"`
	Subjects   uint64 `json:"subjects" yaml:"subjects"`
	Predicates uint64 `json:"predicates" yaml:"predicates"`
	Objects    uint64 `json:"objects" yaml:"objects"`
	Contexts   uint64 `json:"contexts" yaml:"contexts"`
}

// Stats returns all five counters read under one lock.
func (s *Store[ID, V]) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Quads:      uint64(len(s.byID)),
		Subjects:   s.subjects.count(),
		Predicates: s.predicates.count(),
		Objects:    s.objects.count(),
		Contexts:   s.contexts.count(),
	}
}

// Remove is declared for API completeness. Always returns ErrNotImplemented.
func (s *Store[ID, V]) Remove(id ID) (*Quad[ID, V], error) {
	return nil, notImplemented("remove quad")
}

// RemoveMatching is declared for API completeness. Always returns ErrNotImplemented.
func (s *Store[ID, V]) RemoveMatching(p Pattern[V]) ([]*Quad[ID, V], error) {
	return nil, notImplemented("remove matching quads")
}

// RemoveSelected is declared for API completeness. Always returns ErrNotImplemented.
func (s *Store[ID, V]) RemoveSelected(sel Selector[V]) ([]*Quad[ID, V], error) {
	return nil, notImplemented("remove selected quads")
}

func zapQuad[ID Value, V Value](q *Quad[ID, V]) zap.Field {
	return zap.Stringer("quad", q)
}
