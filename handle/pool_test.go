package handle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/errors"
	"github.com/embedrt/gcbind/handle"
	"github.com/embedrt/gcbind/memory"
	"github.com/embedrt/gcbind/simrt"
)

func startPool(t *testing.T, workers int) (*simrt.Runtime, *handle.Pool) {
	t.Helper()
	rt := simrt.New()
	pool, err := handle.NewBuilder(rt).Workers(workers).StartPool()
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return rt, pool
}

func evalJob(src string) handle.BlockingFunc {
	return func(fr *memory.Frame) (any, error) {
		v, err := memory.Eval(fr, src)
		if err != nil {
			return nil, err
		}
		return v.Unbox()
	}
}

func TestPool_SpawnAcrossWorkers(t *testing.T) {
	_, pool := startPool(t, 2)
	assert.Equal(t, 2, pool.NWorkers())
	ctx := context.Background()

	first, err := pool.Spawn(evalJob("1 + 2"))
	require.NoError(t, err)
	second, err := pool.Spawn(evalJob("2 + 3"))
	require.NoError(t, err)

	out, err := first.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), out)

	out, err = second.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), out)
}

func TestPool_SpawnOn(t *testing.T) {
	_, pool := startPool(t, 2)
	ctx := context.Background()

	for idx := 0; idx < pool.NWorkers(); idx++ {
		join, err := pool.SpawnOn(idx, evalJob("10 + 1"))
		require.NoError(t, err)
		out, err := join.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(11), out)
	}

	_, err := pool.SpawnOn(99, evalJob("1"))
	require.Error(t, err)
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindInvalid, e.Kind)
}

func TestPool_ForeignExceptionPerJob(t *testing.T) {
	_, pool := startPool(t, 1)
	ctx := context.Background()

	join, err := pool.Spawn(evalJob(`error("job failed")`))
	require.NoError(t, err)
	_, err = join.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsForeignException(err))

	// A failed job does not poison the worker.
	join, err = pool.Spawn(evalJob("4 + 4"))
	require.NoError(t, err)
	out, err := join.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), out)
}

func TestPool_HostPanicContained(t *testing.T) {
	_, pool := startPool(t, 1)
	ctx := context.Background()

	join, err := pool.Spawn(func(fr *memory.Frame) (any, error) {
		panic("job blew up")
	})
	require.NoError(t, err)

	_, err = join.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsHostPanic(err))

	join, err = pool.Spawn(evalJob("1 + 1"))
	require.NoError(t, err)
	out, err := join.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out)
}

func TestPool_CollectWithIdleSibling(t *testing.T) {
	rt, pool := startPool(t, 2)

	// Worker 1 never receives work; it must still park at a safepoint so
	// worker 0's collection cycle can start.
	join, err := pool.SpawnOn(0, func(fr *memory.Frame) (any, error) {
		return nil, rt.Collect(gcbind.GCFull)
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = join.Wait(ctx)
	require.NoError(t, err, "collection stalled on an idle worker")
}

func TestPool_Close(t *testing.T) {
	_, pool := startPool(t, 2)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close(), "close is idempotent")

	_, err := pool.Spawn(evalJob("1"))
	assert.True(t, errors.IsChannelClosed(err))
}
