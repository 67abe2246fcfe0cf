package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQueueDoReturnsJobResult(t *testing.T) {
	q := NewQueue("test", QueueConfig{Workers: 2, Logger: zap.NewNop()})
	q.Start(context.Background())
	defer q.Stop()

	var ran bool
	err := q.Do(context.Background(), Job{Type: "ok", Run: func(ctx context.Context) error {
		ran = true
		return nil
	}})
	require.NoError(t, err)
	assert.True(t, ran)

	boom := errors.New("boom")
	err = q.Do(context.Background(), Job{Type: "fail", Run: func(ctx context.Context) error { return boom }})
	assert.ErrorIs(t, err, boom)
}

func TestQueueBoundsConcurrency(t *testing.T) {
	q := NewQueue("bounded", QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), Job{Type: "work", Run: func(ctx context.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			}})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestQueueNotStarted(t *testing.T) {
	q := NewQueue("idle", QueueConfig{})
	err := q.Do(context.Background(), Job{Run: func(ctx context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestQueueHonoursCallerContext(t *testing.T) {
	q := NewQueue("ctx", QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	release := make(chan struct{})
	busy := make(chan struct{})
	go func() {
		_ = q.Do(context.Background(), Job{Run: func(ctx context.Context) error {
			close(busy)
			<-release
			return nil
		}})
	}()
	<-busy

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Do(ctx, Job{Run: func(ctx context.Context) error { return nil }})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestQueueObserve(t *testing.T) {
	var observed atomic.Int32
	q := NewQueue("observed", QueueConfig{Observe: func(jobType string, wait, run time.Duration) {
		if jobType == "hash" {
			observed.Add(1)
		}
	}})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Do(context.Background(), Job{Type: "hash", Run: func(ctx context.Context) error { return nil }}))
	assert.Equal(t, int32(1), observed.Load())
}
