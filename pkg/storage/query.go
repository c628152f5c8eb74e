package storage

import "iter"

// Pattern selects quads by equality. A field left at its zero value is
// unbound and matches anything.
type Pattern[V Value] struct {
	Subject   V
	Predicate V
	Object    V
	Context   V
}

// Matches reports whether every bound field of p equals the quad's field.
func (p Pattern[V]) Matches(subject, predicate, object, context V) bool {
	var zero V
	return (p.Subject == zero || p.Subject == subject) &&
		(p.Predicate == zero || p.Predicate == predicate) &&
		(p.Object == zero || p.Object == object) &&
		(p.Context == zero || p.Context == context)
}

// Selector selects quads with one predicate function per field. A nil
// function matches anything.
type Selector[V Value] struct {
	Subject   func(V) bool
	Predicate func(V) bool
	Object    func(V) bool
	Context   func(V) bool
}

// Matches reports whether every non-nil function of sel accepts its field.
func (sel Selector[V]) Matches(subject, predicate, object, context V) bool {
	return (sel.Subject == nil || sel.Subject(subject)) &&
		(sel.Predicate == nil || sel.Predicate(predicate)) &&
		(sel.Object == nil || sel.Object(object)) &&
		(sel.Context == nil || sel.Context(context))
}

// GetQuads returns copies of the quads matching p, in insertion order.
//
// The sequence is lazy and restartable: every range over it takes a fresh
// snapshot of the store under the read lock and yields without holding it.
// Quads added after a pass started are not part of that pass.
//
// When IndexAssistedQueries is enabled and at least one field is bound, the
// pass walks the shortest secondary index list among the bound fields
// instead of every quad. Index lists are kept in insertion order, so the
// result is the same as a full scan.
//
// Example:
//
//	for q := range store.GetQuads(storage.Pattern[string]{Subject: "alice"}) {
//		fmt.Println(q)
//	}
func (s *Store[ID, V]) GetQuads(p Pattern[V]) iter.Seq[*Quad[ID, V]] {
	return func(yield func(*Quad[ID, V]) bool) {
		for q := range s.matching(p) {
			if !yield(copyQuad(q)) {
				return
			}
		}
	}
}

// matching yields the stored quads matching p. The quads are the store's own
// and must not escape the package.
func (s *Store[ID, V]) matching(p Pattern[V]) iter.Seq[*Quad[ID, V]] {
	return func(yield func(*Quad[ID, V]) bool) {
		for _, q := range s.candidates(p) {
			if !p.Matches(q.Subject, q.Predicate, q.Object, q.Context) {
				continue
			}
			if !yield(q) {
				return
			}
		}
	}
}

// SelectQuads returns copies of the quads accepted by sel, in insertion order. It
// always scans every quad; predicate functions cannot be routed through an
// index. Snapshot behavior matches GetQuads.
//
// Example:
//
//	recent := storage.Selector[string]{
//		Predicate: func(p string) bool { return strings.HasPrefix(p, "rdf:") },
//	}
//	for q := range store.SelectQuads(recent) {
//		fmt.Println(q)
//	}
func (s *Store[ID, V]) SelectQuads(sel Selector[V]) iter.Seq[*Quad[ID, V]] {
	return func(yield func(*Quad[ID, V]) bool) {
		for _, q := range s.snapshot() {
			if !sel.Matches(q.Subject, q.Predicate, q.Object, q.Context) {
				continue
			}
			if !yield(copyQuad(q)) {
				return
			}
		}
	}
}

// snapshot returns the arena prefix present right now. The arena is
// append-only, so the returned slice never changes under the caller.
func (s *Store[ID, V]) snapshot() []*Quad[ID, V] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.arena[:len(s.arena):len(s.arena)]
}

// candidates returns the quads a GetQuads pass must look at: the shortest
// index list among the bound fields, or the whole arena.
func (s *Store[ID, V]) candidates(p Pattern[V]) []*Quad[ID, V] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.arena[:len(s.arena):len(s.arena)]
	if !s.cfg.IndexAssistedQueries {
		return all
	}

	var zero V
	bound := [...]struct {
		ix  *secondaryIndex[ID, V]
		key V
	}{
		{s.subjects, p.Subject},
		{s.predicates, p.Predicate},
		{s.objects, p.Object},
		{s.contexts, p.Context},
	}

	best := all
	for _, b := range bound {
		if b.key == zero {
			continue
		}
		list := b.ix.lookup(b.key)
		if len(list) < len(best) {
			best = list
		}
		if len(best) == 0 {
			break
		}
	}
	return best
}
