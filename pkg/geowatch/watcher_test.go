package geowatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchDeliversAcceptedSamples(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fixes := []Sample{
		sampleAt(13.0827, 80.2707, base),                     // first: emit
		sampleAt(13.0827, 80.2707, base.Add(5*time.Second)),  // suppressed
		sampleAt(13.10, 80.30, base.Add(10*time.Second)),     // crossing: emit
		sampleAt(13.10, 80.30, base.Add(15*time.Second)),     // suppressed
		sampleAt(13.10, 80.30, base.Add(45*time.Second)),     // timer: emit
	}

	i := 0
	src := SourceFunc(func(ctx context.Context) (Sample, error) {
		if i >= len(fixes) {
			<-ctx.Done()
			return Sample{}, ctx.Err()
		}
		s := fixes[i]
		i++
		return s, nil
	})

	sub := Watch(context.Background(), src, NewPolicy(testFence, 30*time.Second))

	var got []Sample
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case s, ok := <-sub.Samples():
			if !ok {
				t.Fatal("samples channel closed early")
			}
			got = append(got, s)
		case <-timeout:
			t.Fatal("timed out waiting for samples")
		}
	}
	sub.Stop()

	require.Len(t, got, 3)
	assert.Equal(t, base, got[0].Timestamp)
	assert.Equal(t, base.Add(10*time.Second), got[1].Timestamp)
	assert.Equal(t, base.Add(45*time.Second), got[2].Timestamp)
}

func TestWatchSurfacesTerminalError(t *testing.T) {
	src := SourceFunc(func(ctx context.Context) (Sample, error) {
		return Sample{}, ErrPermissionDenied
	})

	sub := Watch(context.Background(), src, NewPolicy(testFence, 30*time.Second))
	defer sub.Stop()

	select {
	case err := <-sub.Err():
		assert.ErrorIs(t, err, ErrPermissionDenied)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error")
	}
}

func TestWatchStopReleasesSubscription(t *testing.T) {
	src := SourceFunc(func(ctx context.Context) (Sample, error) {
		<-ctx.Done()
		return Sample{}, ctx.Err()
	})

	sub := Watch(context.Background(), src, NewPolicy(testFence, 30*time.Second))
	done := make(chan struct{})
	go func() {
		sub.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	// Channel is closed after termination; no error is reported for cancellation.
	_, ok := <-sub.Samples()
	assert.False(t, ok)
	select {
	case err := <-sub.Err():
		t.Fatalf("unexpected error after cancel: %v", err)
	default:
	}
}

func TestWatchStopIsIdempotent(t *testing.T) {
	src := SourceFunc(func(ctx context.Context) (Sample, error) {
		<-ctx.Done()
		return Sample{}, ctx.Err()
	})

	sub := Watch(context.Background(), src, NewPolicy(testFence, 30*time.Second))
	sub.Stop()
	sub.Stop()
}
