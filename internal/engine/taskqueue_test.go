package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueueRunsInOrder(t *testing.T) {
	q := NewTaskQueue(16, nil)

	var got []int
	for i := 0; i < 5; i++ {
		n := i
		require.True(t, q.Post(func() { got = append(got, n) }))
	}
	require.True(t, q.Quit())

	q.Run()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.True(t, q.Closed())
}

func TestTaskQueuePostAfterQuit(t *testing.T) {
	q := NewTaskQueue(4, nil)
	require.True(t, q.Quit())
	q.Run()

	assert.False(t, q.Post(func() {}))
	assert.ErrorIs(t, q.TryPost(func() {}), ErrQueueClosed)
	assert.True(t, q.Quit(), "quit on a closed queue is already satisfied")
}

func TestTaskQueueFull(t *testing.T) {
	q := NewTaskQueue(1, nil)
	require.True(t, q.Post(func() {}))

	assert.ErrorIs(t, q.TryPost(func() {}), ErrQueueFull)
	assert.False(t, q.Quit(), "quit must be retried when the queue is full")
}

func TestTaskQueuePostSync(t *testing.T) {
	q := NewTaskQueue(8, nil)
	go q.Run()
	defer q.Quit()

	ran := false
	require.True(t, q.PostSync(func() { ran = true }))
	assert.True(t, ran)
}

func TestTaskQueueRecoversPanics(t *testing.T) {
	q := NewTaskQueue(8, nil)

	after := false
	q.Post(func() { panic("boom") })
	q.Post(func() { after = true })
	q.Quit()

	assert.NotPanics(t, q.Run)
	assert.True(t, after)
}

func TestTaskQueueSingleConsumer(t *testing.T) {
	q := NewTaskQueue(1024, nil)
	done := make(chan struct{})
	go func() {
		q.Run()
		close(done)
	}()

	var mu sync.Mutex
	active := 0
	overlap := false

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.PostSync(func() {
				mu.Lock()
				active++
				if active > 1 {
					overlap = true
				}
				mu.Unlock()
				time.Sleep(time.Microsecond)
				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	q.Quit()
	<-done

	assert.False(t, overlap)
}
