package background

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-recipe-query/internal/logger"
)

func TestPoolRunsJobs(t *testing.T) {
	p := NewPool(2, 4, WithLogger(logger.Discard()))
	p.Start()
	defer p.Stop()

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		ok := p.Enqueue(context.Background(), JobFunc{Label: "count", Fn: func(context.Context) error {
			count.Add(1)
			return nil
		}})
		require.True(t, ok)
	}

	p.Wait()
	assert.Equal(t, int32(10), count.Load())
}

func TestPoolDetachesCallerCancellation(t *testing.T) {
	p := NewPool(1, 1, WithLogger(logger.Discard()))
	p.Start()
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	ctx = logger.WithRequestID(ctx, "req-7")

	var gotErr error
	var gotID string
	release := make(chan struct{})
	p.Enqueue(ctx, JobFunc{Label: "detached", Fn: func(jobCtx context.Context) error {
		<-release
		gotErr = jobCtx.Err()
		gotID, _ = logger.RequestIDFromContext(jobCtx)
		return nil
	}})

	cancel()
	close(release)
	p.Wait()

	assert.NoError(t, gotErr)
	assert.Equal(t, "req-7", gotID)
}

func TestPoolReportsFailures(t *testing.T) {
	var mu sync.Mutex
	outcomes := map[string]error{}

	p := NewPool(1, 2, WithLogger(logger.Discard()), WithCompletionHook(func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		outcomes[name] = err
	}))
	p.Start()

	boom := errors.New("boom")
	p.Enqueue(context.Background(), JobFunc{Label: "fails", Fn: func(context.Context) error { return boom }})
	p.Enqueue(context.Background(), JobFunc{Label: "works", Fn: func(context.Context) error { return nil }})
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.ErrorIs(t, outcomes["fails"], boom)
	assert.Contains(t, outcomes, "works")
	assert.NoError(t, outcomes["works"])
}

func TestPoolRejectsAfterStop(t *testing.T) {
	p := NewPool(1, 1)
	p.Start()
	p.Stop()
	p.Stop()

	ok := p.Enqueue(context.Background(), JobFunc{Label: "late", Fn: func(context.Context) error { return nil }})
	assert.False(t, ok)
}
