// Package geowatch implements the device-side half of presence tracking:
// a sampling policy that decides which GPS fixes are worth sending to the
// server, and a cancellable watch subscription over a position source.
//
// The locally-computed inside/outside verdict is only a throttle heuristic.
// The server re-derives its own verdict on every accepted sample and is the
// sole authority for what gets persisted.
package geowatch

import (
	"time"

	"github.com/campushq/library-api/pkg/geo"
)

// DefaultMinInterval is the minimum spacing between emitted heartbeat samples.
const DefaultMinInterval = 30 * time.Second

// Fence is the client's (possibly stale) snapshot of the campus geofence.
type Fence struct {
	CenterLat    float64
	CenterLon    float64
	RadiusMeters float64
}

// Contains reports whether the point falls within the fence. A point exactly
// on the boundary counts as inside.
func (f Fence) Contains(lat, lon float64) bool {
	return geo.DistanceMeters(lat, lon, f.CenterLat, f.CenterLon) <= f.RadiusMeters
}

// Sample is a single GPS fix from the device.
type Sample struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Timestamp time.Time
}

// Policy throttles outgoing samples. A sample is emitted when the minimum
// interval has elapsed since the last emission, or immediately when the local
// inside/outside verdict flips so a boundary crossing is never delayed.
type Policy struct {
	fence       Fence
	minInterval time.Duration

	lastEmit    time.Time
	lastVerdict bool
	primed      bool
}

// NewPolicy builds a sampling policy for the given fence snapshot.
// A non-positive interval falls back to DefaultMinInterval.
func NewPolicy(fence Fence, minInterval time.Duration) *Policy {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Policy{fence: fence, minInterval: minInterval}
}

// ShouldEmit decides whether the sample is worth sending and records the
// emission when it is. The very first sample is always emitted.
func (p *Policy) ShouldEmit(s Sample) bool {
	verdict := p.fence.Contains(s.Latitude, s.Longitude)

	if !p.primed {
		p.primed = true
		p.lastEmit = s.Timestamp
		p.lastVerdict = verdict
		return true
	}

	if verdict != p.lastVerdict {
		p.lastEmit = s.Timestamp
		p.lastVerdict = verdict
		return true
	}

	if s.Timestamp.Sub(p.lastEmit) >= p.minInterval {
		p.lastEmit = s.Timestamp
		return true
	}

	return false
}

// UpdateFence replaces the fence snapshot, e.g. after the device re-fetches
// geofence configuration from the server.
func (p *Policy) UpdateFence(fence Fence) {
	p.fence = fence
}
