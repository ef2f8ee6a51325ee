package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/scriptyard/scriptyard/internal/logger"

	"github.com/scriptyard/scriptyard/internal/models"
)

func TestEnqueueAndHandle(t *testing.T) {
	var mu sync.Mutex
	var handled []int64

	q := New(4, 2, func(_ context.Context, req RunRequest) {
		mu.Lock()
		handled = append(handled, req.ScriptID)
		mu.Unlock()
	}, logger.NewLogger(logger.WithQuiet()))
	defer q.Shutdown()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.Enqueue(RunRequest{ScriptID: i, TriggeredBy: models.TriggeredByManual}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 3
	}, time.Second, 10*time.Millisecond)
}

func TestEnqueueFullReturnsQueueFull(t *testing.T) {
	block := make(chan struct{})
	q := New(1, 1, func(_ context.Context, _ RunRequest) {
		<-block
	}, logger.NewLogger(logger.WithQuiet()))
	defer func() {
		close(block)
		q.Shutdown()
	}()

	// The single worker claims the first request and blocks on it,
	// leaving the capacity-1 channel as the only remaining slot.
	require.NoError(t, q.Enqueue(RunRequest{ScriptID: 1}))
	require.Eventually(t, func() bool {
		return q.Enqueue(RunRequest{ScriptID: 2}) == nil
	}, time.Second, 5*time.Millisecond)

	err := q.Enqueue(RunRequest{ScriptID: 3})
	require.ErrorIs(t, err, ErrQueueFull)
}
