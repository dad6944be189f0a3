package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatchQueue(t *testing.T) {
	q := NewBatchQueue[string](10, logrus.New())
	assert.NotNil(t, q)
	assert.Equal(t, 10, q.maxSize)
	assert.False(t, q.IsClosed())
}

func TestBatchQueue_Push(t *testing.T) {
	q := NewBatchQueue[string](2, logrus.New())

	// Test successful push
	err := q.Push([]string{"a"})
	assert.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	// Test queue full
	_ = q.Push([]string{"b"})
	err = q.Push([]string{"c"})
	assert.Equal(t, ErrQueueFull, err)

	// Test closed queue
	q.Close()
	err = q.Push([]string{"d"})
	assert.Equal(t, ErrQueueClosed, err)
}

func TestBatchQueue_DrainsAfterClose(t *testing.T) {
	q := NewBatchQueue[int](4, logrus.New())
	require.NoError(t, q.Push([]int{1, 2}))
	require.NoError(t, q.Push([]int{3}))
	require.NoError(t, q.Close())
	// closing twice is harmless
	require.NoError(t, q.Close())

	var got []int
	for batch := range q.Batches() {
		got = append(got, batch...)
	}
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestBatchQueue_PushWait(t *testing.T) {
	q := NewBatchQueue[int](1, logrus.New())

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for batch := range q.Batches() {
			mu.Lock()
			got = append(got, batch...)
			mu.Unlock()
		}
	}()

	for i := 0; i < 20; i++ {
		require.NoError(t, q.PushWait(context.Background(), []int{i}))
	}
	q.Close()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 20)
}

func TestBatchQueue_PushWaitCancelled(t *testing.T) {
	q := NewBatchQueue[int](1, logrus.New())
	require.NoError(t, q.Push([]int{1}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := q.PushWait(ctx, []int{2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChunk(t *testing.T) {
	batches := Chunk([]int{1, 2, 3, 4, 5}, 2)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, batches)
	assert.Empty(t, Chunk([]int{}, 3))
	assert.Len(t, Chunk([]int{1, 2}, 0), 2)
}
