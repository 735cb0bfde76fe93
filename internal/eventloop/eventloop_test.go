package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRunsInOrder(t *testing.T) {
	l := New(16)
	l.Run()
	defer l.Stop()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { order = append(order, i) })
	}
	l.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for jobs to drain")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPostAndWait(t *testing.T) {
	l := New(1)
	l.Run()
	defer l.Stop()

	var ran int32
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := l.PostAndWait(ctx, func() { atomic.StoreInt32(&ran, 1) })
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestStopDrainsQueuedJobs(t *testing.T) {
	l := New(8)
	l.Run()

	var count int32
	for i := 0; i < 8; i++ {
		l.Post(func() { atomic.AddInt32(&count, 1) })
	}
	l.Stop()
	assert.Equal(t, int32(8), count)
}
