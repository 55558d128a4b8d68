package service

import (
	"context"
	"sync"

	"telerelay/internal/models"
)

// ingestQueue is the unbounded FIFO between transport event callbacks
// and the pipeline consumer. Push never blocks; pop blocks until an
// envelope arrives or the context is cancelled. A single consumer
// drains it in strict arrival order.
type ingestQueue struct {
	mu     sync.Mutex
	items  []models.MessageEnvelope
	signal chan struct{}
}

func newIngestQueue() *ingestQueue {
	return &ingestQueue{
		signal: make(chan struct{}, 1),
	}
}

func (q *ingestQueue) push(env models.MessageEnvelope) {
	q.mu.Lock()
	q.items = append(q.items, env)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *ingestQueue) pop(ctx context.Context) (models.MessageEnvelope, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			env := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()

			// Coalesced pushes may have left only one pending signal;
			// re-arm it so the next pop does not block on a non-empty
			// queue.
			if remaining > 0 {
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			return env, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return models.MessageEnvelope{}, false
		case <-q.signal:
		}
	}
}

func (q *ingestQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
