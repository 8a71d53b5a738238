package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/pushbridge/errs"
)

func TestPoolRunsQueuedTasksBeforeShutdownReturns(t *testing.T) {
	p, err := NewPool(2, 16)
	require.NoError(t, err)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	require.NoError(t, p.Shutdown(context.Background()))
	require.EqualValues(t, 10, ran.Load())
}

func TestPoolRejectsWhenSaturated(t *testing.T) {
	p, err := NewPool(1, 1)
	require.NoError(t, err)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error { return nil }))

	err = p.Submit(context.Background(), func(context.Context) error { return nil })
	require.Equal(t, errs.CodeUnavailable, errs.CodeOf(err))

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolRejectsAfterClose(t *testing.T) {
	p, err := NewPool(1, 1)
	require.NoError(t, err)
	p.Close()
	p.Close()
	err = p.Submit(context.Background(), func(context.Context) error { return nil })
	require.Equal(t, errs.CodeUnavailable, errs.CodeOf(err))
}

func TestPoolReportsErrorsAndPanics(t *testing.T) {
	var mu sync.Mutex
	var reported []error
	p, err := NewPool(1, 4, WithErrorHandler(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}))
	require.NoError(t, err)

	boom := errors.New("boom")
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error { return boom }))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error { panic("kaput") }))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error { return nil }))
	require.NoError(t, p.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 2)
	require.ErrorIs(t, reported[0], boom)
	require.Contains(t, reported[1].Error(), "kaput")
}

func TestPoolShutdownHonoursContext(t *testing.T) {
	p, err := NewPool(1, 1)
	require.NoError(t, err)
	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, p.Shutdown(ctx))
	close(release)
}

func TestPoolValidatesArguments(t *testing.T) {
	_, err := NewPool(0, 1)
	require.Equal(t, errs.CodeInvalid, errs.CodeOf(err))

	p, err := NewPool(1, 0)
	require.NoError(t, err)
	defer p.Close()
	require.Equal(t, errs.CodeInvalid, errs.CodeOf(p.Submit(context.Background(), nil)))
}
