// Package hazard implements a generic hazard-pointer manager: the safe
// memory reclamation scheme the lock-free multiway search tree in package
// lfmst depends on. A Manager is parameterized at construction by thread
// count, hazard slots per thread, and a retire-queue prefill size.
//
// A thread publishes a pointer it is about to dereference into one of its
// hazard slots before reading through it, and clears the slot when done.
// Retiring a pointer appends it to the retiring thread's own queue rather
// than freeing it immediately; Acquire reuses a retired value only once no
// thread's hazard slots still reference it.
package hazard

import "github.com/rogpeppe/lfmst/gatomic"

// Manager pools and hazard-protects values of type *T. T embeds its own
// intrusive retire-queue link, accessed via the next/setNext accessors
// supplied at construction — Go has no portable way to require an embedded
// field through a type constraint, so the link is reached through
// caller-supplied functions instead, keeping Manager itself ignorant of T's
// layout.
type Manager[T any] struct {
	slots   int
	newT    func() *T
	next    func(*T) *T
	setNext func(*T, *T)

	hazards [][]*T // [tid][slot], each slot accessed only via gatomic
	queues  []retireQueue[T]

	acquired int64
	retired  int64
}

type retireQueue[T any] struct {
	head, tail *T
}

// New builds a Manager for threads threads, each with slots hazard-pointer
// slots. prefill freshly-constructed values (via newT) are pre-retired into
// each thread's queue so that Acquire's reuse path is non-allocating from
// the first call. next/setNext access the embedded retire-queue link on a
// *T; newT constructs a fresh, zero-valued T for when no reusable value is
// available.
func New[T any](threads, slots, prefill int, newT func() *T, next func(*T) *T, setNext func(*T, *T)) *Manager[T] {
	m := &Manager[T]{
		slots:   slots,
		newT:    newT,
		next:    next,
		setNext: setNext,
		hazards: make([][]*T, threads),
		queues:  make([]retireQueue[T], threads),
	}
	for tid := range m.hazards {
		m.hazards[tid] = make([]*T, slots)
		for i := 0; i < prefill; i++ {
			m.Retire(tid, newT())
		}
	}
	return m
}

// Publish stores ptr into the calling thread's hazard slot, protecting it
// from reclamation as of the next read of its source location.
func (m *Manager[T]) Publish(tid, slot int, ptr *T) {
	gatomic.StorePointer(&m.hazards[tid][slot], ptr)
}

// Release clears the calling thread's hazard slot.
func (m *Manager[T]) Release(tid, slot int) {
	gatomic.StorePointer(&m.hazards[tid][slot], (*T)(nil))
}

// Retire appends ptr to the calling thread's retire queue. ptr must no
// longer be reachable from the shared structure; Acquire will hand it back
// out once no thread's hazard slots reference it.
func (m *Manager[T]) Retire(tid int, ptr *T) {
	m.setNext(ptr, nil)
	q := &m.queues[tid]
	if q.head == nil {
		q.head, q.tail = ptr, ptr
	} else {
		m.setNext(q.tail, ptr)
		q.tail = ptr
	}
	gatomic.AddInt64(&m.retired, 1)
}

// Acquire returns a *T the calling thread may reinitialize and publish. It
// prefers an unreferenced value from the thread's own retire queue over
// allocating a fresh one.
func (m *Manager[T]) Acquire(tid int) *T {
	gatomic.AddInt64(&m.acquired, 1)
	q := &m.queues[tid]
	if q.head != nil {
		if !m.isReferenced(q.head) {
			n := q.head
			q.head = m.next(n)
			if q.head == nil {
				q.tail = nil
			}
			return n
		}
		pred := q.head
		for node := m.next(pred); node != nil; node = m.next(pred) {
			if !m.isReferenced(node) {
				rest := m.next(node)
				m.setNext(pred, rest)
				if rest == nil {
					q.tail = pred
				}
				return node
			}
			pred = node
		}
	}
	return m.newT()
}

// isReferenced reports whether any thread currently holds a hazard pointer
// to ptr. Reads are acquire-ordered (via gatomic.LoadPointer) so a
// publication by another thread that happened-before this scan is observed.
func (m *Manager[T]) isReferenced(ptr *T) bool {
	for tid := range m.hazards {
		row := m.hazards[tid]
		for slot := range row {
			if gatomic.LoadPointer(&row[slot]) == ptr {
				return true
			}
		}
	}
	return false
}

// Stats reports the lifetime count of Acquire and Retire calls, for tests
// and diagnostics; it is not part of the reclamation protocol itself.
func (m *Manager[T]) Stats() (acquired, retired int64) {
	return gatomic.LoadInt64(&m.acquired), gatomic.LoadInt64(&m.retired)
}
