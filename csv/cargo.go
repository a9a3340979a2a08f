package csv

import (
	"github.com/axonops/entrystore"
)

// cargo is a per-partition accumulate-and-drain queue. Pushes collect in
// pending; one consumer goroutine at a time takes whatever is queued,
// processes it as a single batch, and loops until the queue runs dry.
// Pushes are drained strictly in enqueue order.
type cargo struct {
	pending []waiter
	active  bool
}

// waiter is one pushed batch and the channel its pusher awaits.
type waiter struct {
	entries []entrystore.Entry
	done    chan error
}

// push enqueues entries on the named partition's queue, starting a
// consumer if none is running, and returns the channel that resolves
// when this batch has been written.
func (s *Store) push(name string, entries []entrystore.Entry, drain func([]entrystore.Entry) error) <-chan error {
	done := make(chan error, 1)
	s.qmu.Lock()
	q, ok := s.queues[name]
	if !ok {
		q = &cargo{}
		s.queues[name] = q
	}
	q.pending = append(q.pending, waiter{entries: entries, done: done})
	start := !q.active
	if start {
		q.active = true
	}
	s.qmu.Unlock()
	if start {
		go s.drainLoop(q, drain)
	}
	return done
}

// drainLoop consumes the queue until it is empty, writing everything
// currently queued as one batch per cycle.
func (s *Store) drainLoop(q *cargo, drain func([]entrystore.Entry) error) {
	for {
		s.qmu.Lock()
		if len(q.pending) == 0 {
			q.active = false
			s.qmu.Unlock()
			return
		}
		waiters := q.pending
		q.pending = nil
		s.qmu.Unlock()

		var batch []entrystore.Entry
		for _, w := range waiters {
			batch = append(batch, w.entries...)
		}
		err := drain(batch)
		for _, w := range waiters {
			w.done <- err
		}
	}
}
