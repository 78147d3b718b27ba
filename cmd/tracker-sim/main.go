// tracker-sim simulates a student device wandering around the library
// geofence, throttling fixes with the client-side sampling policy and
// posting the survivors to the tracking API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/library-api/pkg/geowatch"
)

type locationPayload struct {
	RegisterNumber string    `json:"register_number"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	RecordedAt     time.Time `json:"recorded_at"`
	DeviceInfo     string    `json:"device_info"`
}

func main() {
	var (
		apiURL    = flag.String("api", "http://localhost:8080/api/v1", "API base URL")
		token     = flag.String("token", "", "bearer token for the simulated student")
		register  = flag.String("register", "", "register number to report (staff tokens only)")
		centerLat = flag.Float64("lat", 13.0827, "fence center latitude")
		centerLon = flag.Float64("lon", 80.2707, "fence center longitude")
		radius    = flag.Float64("radius", 100, "fence radius in meters")
		sampleGap = flag.Duration("sample", 2*time.Second, "interval between raw GPS fixes")
		emitGap   = flag.Duration("emit", 30*time.Second, "minimum interval between posted heartbeats")
		wander    = flag.Float64("wander", 150, "maximum wander distance from center in meters")
	)
	flag.Parse()

	logr, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logr.Sync() //nolint:errcheck
	sugar := logr.Sugar()

	if *token == "" {
		sugar.Fatal("a bearer token is required (-token)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fence := geowatch.Fence{CenterLat: *centerLat, CenterLon: *centerLon, RadiusMeters: *radius}
	policy := geowatch.NewPolicy(fence, *emitGap)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	walk := &randomWalk{fence: fence, maxMeters: *wander, rng: rng}

	source := geowatch.SourceFunc(func(ctx context.Context) (geowatch.Sample, error) {
		select {
		case <-ctx.Done():
			return geowatch.Sample{}, ctx.Err()
		case <-time.After(*sampleGap):
		}
		return walk.next(), nil
	})

	sub := geowatch.Watch(ctx, source, policy)
	defer sub.Stop()

	client := &http.Client{Timeout: 10 * time.Second}
	endpoint := *apiURL + "/tracking/location"

	sugar.Infow("simulator started", "endpoint", endpoint, "fence_radius_m", *radius)

	for {
		select {
		case <-ctx.Done():
			sugar.Info("simulator stopping")
			return
		case err := <-sub.Err():
			sugar.Fatalw("position source failed", "error", err)
		case sample, ok := <-sub.Samples():
			if !ok {
				return
			}
			if err := postSample(ctx, client, endpoint, *token, *register, sample); err != nil {
				sugar.Warnw("post failed", "error", err)
				continue
			}
			sugar.Infow("sample posted",
				"lat", fmt.Sprintf("%.5f", sample.Latitude),
				"lon", fmt.Sprintf("%.5f", sample.Longitude),
				"inside", fence.Contains(sample.Latitude, sample.Longitude))
		}
	}
}

func postSample(ctx context.Context, client *http.Client, endpoint, token, register string, s geowatch.Sample) error {
	body, err := json.Marshal(locationPayload{
		RegisterNumber: register,
		Latitude:       s.Latitude,
		Longitude:      s.Longitude,
		AccuracyMeters: s.Accuracy,
		RecordedAt:     s.Timestamp,
		DeviceInfo:     "tracker-sim",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

// randomWalk drifts a point around the fence center, occasionally crossing
// the boundary so the server sees entry and exit transitions.
type randomWalk struct {
	fence     geowatch.Fence
	maxMeters float64
	rng       *rand.Rand

	offsetN float64
	offsetE float64
}

func (w *randomWalk) next() geowatch.Sample {
	w.offsetN += w.rng.NormFloat64() * 15
	w.offsetE += w.rng.NormFloat64() * 15

	if dist := math.Hypot(w.offsetN, w.offsetE); dist > w.maxMeters {
		scale := w.maxMeters / dist
		w.offsetN *= scale
		w.offsetE *= scale
	}

	// One degree of latitude is roughly 111320 m.
	lat := w.fence.CenterLat + w.offsetN/111320
	lon := w.fence.CenterLon + w.offsetE/(111320*math.Cos(w.fence.CenterLat*math.Pi/180))

	return geowatch.Sample{
		Latitude:  lat,
		Longitude: lon,
		Accuracy:  5 + w.rng.Float64()*20,
		Timestamp: time.Now().UTC(),
	}
}
