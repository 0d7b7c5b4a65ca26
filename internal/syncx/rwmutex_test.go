package syncx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRWMutex_ReadersShareTheLock(t *testing.T) {
	m := NewRWMutex()

	// Sequential acquisitions without releases would deadlock if readers
	// excluded each other.
	for i := 0; i < 10; i++ {
		m.RLock()
	}
	for i := 0; i < 10; i++ {
		m.RUnlock()
	}
}

func TestRWMutex_WriterExcludesReaders(t *testing.T) {
	m := NewRWMutex()
	m.Lock()
	defer m.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := m.RLockContext(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRWMutex_WriterMutualExclusion(t *testing.T) {
	m := NewRWMutex()

	const goroutines = 50
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock()
			counter++
			m.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines, counter)
}

func TestRWMutex_CancelledContextFailsFast(t *testing.T) {
	m := NewRWMutex()
	m.Lock()
	defer m.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.LockContext(ctx), context.Canceled)
	assert.ErrorIs(t, m.RLockContext(ctx), context.Canceled)
}

func TestRWMutex_WaitingWriterBlocksLaterReaders(t *testing.T) {
	m := NewRWMutex()
	m.RLock()

	writerStarted := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		close(writerStarted)
		m.Lock()
		m.Unlock()
		close(writerDone)
	}()

	<-writerStarted
	// Give the writer time to queue behind the held read lock.
	time.Sleep(100 * time.Millisecond)

	// A new reader must queue behind the waiting writer.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := m.RLockContext(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	m.RUnlock()

	select {
	case <-writerDone:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired the lock after readers released")
	}
}
