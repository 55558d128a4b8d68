package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"telerelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePreservesArrivalOrder(t *testing.T) {
	q := newIngestQueue()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		q.push(models.MessageEnvelope{ID: fmt.Sprintf("env-%d", i)})
	}
	assert.Equal(t, 10, q.len())

	for i := 0; i < 10; i++ {
		env, ok := q.pop(ctx)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("env-%d", i), env.ID)
	}
	assert.Equal(t, 0, q.len())
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := newIngestQueue()

	popped := make(chan models.MessageEnvelope, 1)
	go func() {
		env, ok := q.pop(context.Background())
		if ok {
			popped <- env
		}
	}()

	select {
	case <-popped:
		t.Fatal("pop returned before push")
	case <-time.After(50 * time.Millisecond):
	}

	q.push(models.MessageEnvelope{ID: "late"})

	select {
	case env := <-popped:
		assert.Equal(t, "late", env.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("pop did not wake after push")
	}
}

func TestQueuePopCancelled(t *testing.T) {
	q := newIngestQueue()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.pop(ctx)
	assert.False(t, ok)
}

func TestQueueCoalescedSignals(t *testing.T) {
	q := newIngestQueue()
	ctx := context.Background()

	// Many pushes collapse into a single pending signal; every
	// envelope must still come out.
	for i := 0; i < 100; i++ {
		q.push(models.MessageEnvelope{ID: fmt.Sprintf("env-%d", i)})
	}

	count := 0
	for q.len() > 0 {
		_, ok := q.pop(ctx)
		require.True(t, ok)
		count++
	}
	assert.Equal(t, 100, count)
}
