package overrides

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexLockerSerializesSameKey(t *testing.T) {
	locker := NewMutexLocker()
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "order:1001")
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
	assert.Empty(t, locker.locks, "released keys are forgotten")
}

func TestMutexLockerDistinctKeysDoNotBlock(t *testing.T) {
	locker := NewMutexLocker()
	unlockA, err := locker.Lock(context.Background(), "order:1")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "order:2")
	require.NoError(t, err)
	unlockB()
}

func TestMutexLockerHonoursContext(t *testing.T) {
	locker := NewMutexLocker()
	unlock, err := locker.Lock(context.Background(), "order:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "order:1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCanceled))

	unlock()
	unlock()
	again, err := locker.Lock(context.Background(), "order:1")
	require.NoError(t, err)
	again()
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "order:1001", LockKey("5001", "1001"))
	assert.Equal(t, "id:5001", LockKey("5001", ""))
}
