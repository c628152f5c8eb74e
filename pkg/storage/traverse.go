package storage

import "iter"

// Traverse walks the values reachable from subject by repeatedly following
// quads with the given predicate, depth first.
//
// Algorithm:
//  1. If includeFirst is set, yield subject.
//  2. Push the Object of every (subject, predicate, *) quad onto a stack, in
//     GetQuads order.
//  3. Pop a value, push the Objects of its (value, predicate, *) quads, then
//     yield the value. Repeat until the stack is empty.
//
// Children are therefore visited in reverse discovery order. Given
// (A knows B), (A knows C), (B knows D) inserted in that order,
// Traverse(A, knows, true) yields A, C, B, D.
//
// No visited set is kept. A predicate chain that cycles (A knows B,
// B knows A) produces an endless sequence; stop it by breaking out of the
// range loop. A zero subject yields nothing. A zero predicate is unbound and
// follows every predicate.
func (s *Store[ID, V]) Traverse(subject, predicate V, includeFirst bool) iter.Seq[V] {
	return func(yield func(V) bool) {
		var zero V
		if subject == zero {
			return
		}
		if includeFirst && !yield(subject) {
			return
		}

		var stack []V
		for q := range s.matching(Pattern[V]{Subject: subject, Predicate: predicate}) {
			stack = append(stack, q.Object)
		}

		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			for q := range s.matching(Pattern[V]{Subject: current, Predicate: predicate}) {
				stack = append(stack, q.Object)
			}
			if !yield(current) {
				return
			}
		}
	}
}
