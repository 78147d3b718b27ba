package geowatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testFence = Fence{CenterLat: 13.0827, CenterLon: 80.2707, RadiusMeters: 100}

func sampleAt(lat, lon float64, at time.Time) Sample {
	return Sample{Latitude: lat, Longitude: lon, Timestamp: at}
}

func TestPolicyFirstSampleAlwaysEmits(t *testing.T) {
	p := NewPolicy(testFence, 30*time.Second)
	assert.True(t, p.ShouldEmit(sampleAt(13.0827, 80.2707, time.Now())))
}

func TestPolicySuppressesWithinInterval(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := NewPolicy(testFence, 30*time.Second)

	assert.True(t, p.ShouldEmit(sampleAt(13.0827, 80.2707, base)))
	// Same verdict, only 10 seconds later.
	assert.False(t, p.ShouldEmit(sampleAt(13.08271, 80.27071, base.Add(10*time.Second))))
	assert.False(t, p.ShouldEmit(sampleAt(13.08272, 80.27069, base.Add(20*time.Second))))
}

func TestPolicyEmitsAfterInterval(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := NewPolicy(testFence, 30*time.Second)

	assert.True(t, p.ShouldEmit(sampleAt(13.0827, 80.2707, base)))
	assert.True(t, p.ShouldEmit(sampleAt(13.0827, 80.2707, base.Add(30*time.Second))))
	assert.True(t, p.ShouldEmit(sampleAt(13.0827, 80.2707, base.Add(65*time.Second))))
}

func TestPolicyVerdictFlipBypassesTimer(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := NewPolicy(testFence, 30*time.Second)

	// Inside the fence.
	assert.True(t, p.ShouldEmit(sampleAt(13.0827, 80.2707, base)))
	// 2 seconds later, well outside: must emit immediately.
	assert.True(t, p.ShouldEmit(sampleAt(13.10, 80.30, base.Add(2*time.Second))))
	// Back inside 3 seconds after that: crossing again, emit immediately.
	assert.True(t, p.ShouldEmit(sampleAt(13.0827, 80.2707, base.Add(5*time.Second))))
	// Still inside shortly after: suppressed.
	assert.False(t, p.ShouldEmit(sampleAt(13.0827, 80.2707, base.Add(8*time.Second))))
}

func TestPolicyVerdictFlipResetsTimer(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := NewPolicy(testFence, 30*time.Second)

	assert.True(t, p.ShouldEmit(sampleAt(13.0827, 80.2707, base)))
	assert.True(t, p.ShouldEmit(sampleAt(13.10, 80.30, base.Add(25*time.Second))))
	// 10 seconds after the crossing the timer has restarted, so suppress.
	assert.False(t, p.ShouldEmit(sampleAt(13.10, 80.30, base.Add(35*time.Second))))
	assert.True(t, p.ShouldEmit(sampleAt(13.10, 80.30, base.Add(55*time.Second))))
}

func TestPolicyBoundaryCountsInside(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	// A fence whose radius exactly matches the sample distance.
	fence := Fence{CenterLat: 0, CenterLon: 0, RadiusMeters: 111195}
	p := NewPolicy(fence, 30*time.Second)

	assert.True(t, p.ShouldEmit(sampleAt(1, 0, base)))
	assert.True(t, p.lastVerdict, "a point exactly on the boundary is inside")
}

func TestPolicyDefaultInterval(t *testing.T) {
	p := NewPolicy(testFence, 0)
	assert.Equal(t, DefaultMinInterval, p.minInterval)
}

func TestPolicyUpdateFence(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := NewPolicy(testFence, 30*time.Second)

	assert.True(t, p.ShouldEmit(sampleAt(13.0827, 80.2707, base)))
	// Shrinking the fence turns the same position into an outside verdict.
	p.UpdateFence(Fence{CenterLat: 13.0827, CenterLon: 80.2707, RadiusMeters: 0})
	assert.True(t, p.ShouldEmit(sampleAt(13.0830, 80.2707, base.Add(time.Second))))
}
