package geowatch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Position source failures mirror the browser geolocation error taxonomy.
// None of them should be retried in a tight loop; the watcher stops and the
// caller must explicitly restart tracking.
var (
	ErrPermissionDenied    = errors.New("geowatch: position permission denied")
	ErrPositionUnavailable = errors.New("geowatch: position unavailable")
	ErrTimeout             = errors.New("geowatch: position request timed out")
)

// Source produces position fixes. Implementations block until a fix is
// available, the context is cancelled, or a terminal error occurs.
type Source interface {
	Next(ctx context.Context) (Sample, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (Sample, error)

func (f SourceFunc) Next(ctx context.Context) (Sample, error) {
	return f(ctx)
}

// Subscription is a running watch over a position source. Samples that pass
// the throttle policy are delivered on Samples; a terminal source error is
// delivered on Err. Stop releases the subscription and is safe to call
// multiple times.
type Subscription struct {
	samples chan Sample
	errc    chan error

	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Watch starts consuming the source, filtering fixes through the policy.
// The subscription terminates when ctx is cancelled, Stop is called, or the
// source returns an error.
func Watch(ctx context.Context, src Source, policy *Policy) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		samples: make(chan Sample, 8),
		errc:    make(chan error, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go sub.run(ctx, src, policy)
	return sub
}

// Samples returns the channel of emitted samples. It is closed when the
// subscription terminates.
func (s *Subscription) Samples() <-chan Sample {
	return s.samples
}

// Err returns the channel carrying the terminal error, if any.
func (s *Subscription) Err() <-chan error {
	return s.errc
}

// Stop cancels the watch and waits for the consumer goroutine to exit.
func (s *Subscription) Stop() {
	s.once.Do(s.cancel)
	<-s.done
}

func (s *Subscription) run(ctx context.Context, src Source, policy *Policy) {
	defer close(s.done)
	defer close(s.samples)

	for {
		sample, err := src.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				s.errc <- err
			}
			return
		}
		if sample.Timestamp.IsZero() {
			sample.Timestamp = time.Now().UTC()
		}
		if !policy.ShouldEmit(sample) {
			continue
		}

		select {
		case s.samples <- sample:
		case <-ctx.Done():
			return
		}
	}
}
