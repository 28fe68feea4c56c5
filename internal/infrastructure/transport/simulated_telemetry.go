package transport

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"
)

// SimulatedTelemetry produces jittered metrics around configured targets,
// standing in for the RTCP/encoder stats a real transport reports.
type SimulatedTelemetry struct {
	mu       sync.Mutex
	rng      *rand.Rand
	targets  map[domain.DestinationID]TelemetryTargets
	defaults TelemetryTargets
}

// TelemetryTargets are the nominal values the simulation jitters around.
type TelemetryTargets struct {
	Bitrate    int
	FPS        float64
	RTT        time.Duration
	PacketLoss float64
	CPUUsage   float64
}

// DefaultTelemetryTargets returns a healthy baseline.
func DefaultTelemetryTargets() TelemetryTargets {
	return TelemetryTargets{
		Bitrate:    4000,
		FPS:        30,
		RTT:        80 * time.Millisecond,
		PacketLoss: 0.005,
		CPUUsage:   0.45,
	}
}

func NewSimulatedTelemetry(seed int64) *SimulatedTelemetry {
	return &SimulatedTelemetry{
		rng:      rand.New(rand.NewSource(seed)),
		targets:  make(map[domain.DestinationID]TelemetryTargets),
		defaults: DefaultTelemetryTargets(),
	}
}

var _ ports.TelemetrySource = (*SimulatedTelemetry)(nil)

// SetTargets overrides the baseline for one destination, e.g. to simulate a
// degraded link.
func (s *SimulatedTelemetry) SetTargets(id domain.DestinationID, t TelemetryTargets) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[id] = t
}

func (s *SimulatedTelemetry) Sample(ctx context.Context, id domain.DestinationID) (domain.DestinationTelemetry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[id]
	if !ok {
		t = s.defaults
	}

	jitter := func(v, spread float64) float64 {
		return v * (1 + (s.rng.Float64()*2-1)*spread)
	}

	total := int64(t.FPS * 10)
	dropped := int64(jitter(float64(total)*0.01, 0.5))

	return domain.DestinationTelemetry{
		Bitrate:       int(jitter(float64(t.Bitrate), 0.05)),
		TargetBitrate: t.Bitrate,
		FPS:           jitter(t.FPS, 0.03),
		TargetFPS:     t.FPS,
		DroppedFrames: dropped,
		TotalFrames:   total,
		RTT:           time.Duration(jitter(float64(t.RTT), 0.1)),
		PacketLoss:    jitter(t.PacketLoss, 0.3),
		Jitter:        time.Duration(jitter(float64(20*time.Millisecond), 0.3)),
		Bandwidth:     int(jitter(float64(t.Bitrate)*1.5, 0.05)),
		CPUUsage:      jitter(t.CPUUsage, 0.1),
		MemoryUsage:   jitter(0.5, 0.1),
		EncoderLoad:   jitter(0.6, 0.1),
		Timestamp:     time.Now(),
	}, nil
}
