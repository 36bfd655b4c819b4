package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueSubmitRunsInlineWhenStopped(t *testing.T) {
	var handled int32
	q := NewQueue("activity", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}, QueueConfig{})

	q.Submit(context.Background(), Job{Type: "assignment.filled"})
	assert.Equal(t, int32(1), atomic.LoadInt32(&handled))
	assert.Error(t, q.Enqueue(Job{Type: "assignment.filled"}))
}

func TestQueueProcessesAndRetries(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	q := NewQueue("activity", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 10 * time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "musician.invited"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}
