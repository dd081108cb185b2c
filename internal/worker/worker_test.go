package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitAndPoll(t *testing.T) {
	p := New(2, nil)
	defer func() { _ = p.Close(context.Background()) }()

	release := make(chan struct{})
	f, ok := Submit(p, func(ctx context.Context) (int, error) {
		<-release
		return 42, nil
	})
	require.True(t, ok)
	_, _, done := f.Poll()
	assert.False(t, done)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err, done = f.Poll()
	assert.True(t, done)
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSaturationRejects(t *testing.T) {
	p := New(1, nil)
	defer func() { _ = p.Close(context.Background()) }()
	block := make(chan struct{})
	defer close(block)
	_, ok := Submit(p, func(ctx context.Context) (int, error) {
		<-block
		return 0, nil
	})
	require.True(t, ok)
	_, ok = Submit(p, func(ctx context.Context) (int, error) { return 1, nil })
	assert.False(t, ok, "second job must be rejected while the only slot is busy")
}

func TestCloseCancelsRunningJobs(t *testing.T) {
	p := New(1, nil)
	f, ok := Submit(p, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.True(t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
	_, err, done := f.Poll()
	assert.True(t, done)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, p.Go(func(context.Context) {}), "closed pool accepts nothing")
}

func TestPanicIsContained(t *testing.T) {
	p := New(1, nil)
	defer func() { _ = p.Close(context.Background()) }()
	f, ok := Submit(p, func(ctx context.Context) (int, error) { panic("boom") })
	require.True(t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.Error(t, err)
}

func TestSubmitRacingCloseFinishesAcceptedJobs(t *testing.T) {
	for round := 0; round < 50; round++ {
		p := New(64, nil)
		var accepted, finished atomic.Int64

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if p.Go(func(context.Context) { finished.Add(1) }) {
					accepted.Add(1)
				}
			}()
		}
		close(start)
		require.NoError(t, p.Close(context.Background()))
		doneAtClose := finished.Load()
		wg.Wait()

		// Anything accepted was admitted before Close and waited for.
		assert.Equal(t, accepted.Load(), doneAtClose)
		assert.False(t, p.Go(func(context.Context) {}))
	}
}
