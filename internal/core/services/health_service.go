package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"

	"go.uber.org/zap"
)

// HealthThresholds are the per-metric warning thresholds. Critical escalation
// points are fixed by the evaluator.
type HealthThresholds struct {
	BitrateRatio    float64       // actual/target below this warns
	FPSRatio        float64       // actual/target below this warns
	DroppedFrames   float64       // dropped/total above this warns
	RTT             time.Duration // above this warns
	PacketLoss      float64       // above this warns
	CPUUsage        float64       // above this warns
	MemoryUsage     float64       // above this warns
	EncoderLoad     float64       // above this warns
}

// DefaultHealthThresholds returns the monitor defaults.
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		BitrateRatio:  0.8,
		FPSRatio:      0.9,
		DroppedFrames: 0.05,
		RTT:           500 * time.Millisecond,
		PacketLoss:    0.02,
		CPUUsage:      0.8,
		MemoryUsage:   0.85,
		EncoderLoad:   0.9,
	}
}

// HealthConfig tunes the monitor.
type HealthConfig struct {
	Thresholds      HealthThresholds
	Interval        time.Duration
	AutoAdjust      bool // emit adjust-bitrate recommendations
	AutoReconnect   bool // emit reconnect recommendations
}

// DefaultHealthConfig returns the monitor defaults.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Thresholds:    DefaultHealthThresholds(),
		Interval:      2 * time.Second,
		AutoAdjust:    true,
		AutoReconnect: true,
	}
}

// HealthService tracks one telemetry record per destination and re-derives
// its warning list every cycle. It only recommends action; execution of a
// recommendation is an external decision.
type HealthService struct {
	config    HealthConfig
	telemetry ports.TelemetrySource
	logger    *zap.SugaredLogger

	mu      sync.RWMutex
	records map[domain.DestinationID]*domain.StreamHealth

	cancel context.CancelFunc

	onHealthChange   func(health domain.StreamHealth)
	onRecommendation func(rec domain.Recommendation)

	now func() time.Time
}

func NewHealthService(config HealthConfig, telemetry ports.TelemetrySource, logger *zap.SugaredLogger) *HealthService {
	return &HealthService{
		config:    config,
		telemetry: telemetry,
		logger:    logger,
		records:   make(map[domain.DestinationID]*domain.StreamHealth),
		now:       time.Now,
	}
}

// OnHealthChange registers the per-destination health callback.
func (s *HealthService) OnHealthChange(fn func(health domain.StreamHealth)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onHealthChange = fn
}

// OnRecommendation registers the advisory remediation callback.
func (s *HealthService) OnRecommendation(fn func(rec domain.Recommendation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRecommendation = fn
}

// Track starts tracking a destination. Its record is evaluated on the next
// monitoring tick.
func (s *HealthService) Track(id domain.DestinationID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[id]; !exists {
		s.records[id] = &domain.StreamHealth{DestinationID: id, IsHealthy: true}
	}
}

// Untrack stops tracking a destination and drops its record.
func (s *HealthService) Untrack(id domain.DestinationID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// StartMonitoring begins the global evaluation loop. All tracked destinations
// are evaluated in the same tick.
func (s *HealthService) StartMonitoring(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.monitorLoop(loopCtx)
}

// StopMonitoring halts the evaluation loop.
func (s *HealthService) StopMonitoring() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Health returns a snapshot of one destination's record.
func (s *HealthService) Health(id domain.DestinationID) (domain.StreamHealth, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return domain.StreamHealth{}, false
	}
	return copyHealth(rec), true
}

// Snapshot returns copies of every tracked record.
func (s *HealthService) Snapshot() []domain.StreamHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StreamHealth, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, copyHealth(rec))
	}
	return out
}

// AggregateStatus derives the 5-point scale from the proportion of
// destinations with critical or warning-level issues.
func (s *HealthService) AggregateStatus() domain.AggregateStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.records)
	if total == 0 {
		return domain.AggregateExcellent
	}

	var critical, warning int
	for _, rec := range s.records {
		hasCritical, hasWarning := false, false
		for _, w := range rec.Warnings {
			switch w.Severity {
			case domain.SeverityCritical:
				hasCritical = true
			case domain.SeverityWarning:
				hasWarning = true
			}
		}
		if hasCritical {
			critical++
		} else if hasWarning {
			warning++
		}
	}

	switch {
	case float64(critical)/float64(total) >= 0.5:
		return domain.AggregateCritical
	case critical > 0:
		return domain.AggregatePoor
	case float64(warning)/float64(total) >= 0.5:
		return domain.AggregateFair
	case warning > 0:
		return domain.AggregateGood
	default:
		return domain.AggregateExcellent
	}
}

func (s *HealthService) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evaluateAll(ctx)
		}
	}
}

// evaluateAll refreshes telemetry and re-derives warnings for every tracked
// destination in one tick.
func (s *HealthService) evaluateAll(ctx context.Context) {
	s.mu.RLock()
	ids := make([]domain.DestinationID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.evaluateOne(ctx, id)
	}
}

func (s *HealthService) evaluateOne(ctx context.Context, id domain.DestinationID) {
	tel, err := s.telemetry.Sample(ctx, id)
	if err != nil {
		s.logger.Warnw("telemetry sample failed", "destination_id", id, "error", err)
		return
	}

	now := s.now()
	warnings, recs := s.evaluate(id, tel, now)

	healthy := true
	for _, w := range warnings {
		if w.Severity == domain.SeverityCritical {
			healthy = false
			break
		}
	}

	s.mu.Lock()
	rec, exists := s.records[id]
	if !exists {
		// Untracked between the snapshot and now; drop the result.
		s.mu.Unlock()
		return
	}
	rec.Telemetry = tel
	rec.Warnings = warnings
	rec.IsHealthy = healthy
	rec.EvaluatedAt = now
	snapshot := copyHealth(rec)
	onHealth := s.onHealthChange
	onRec := s.onRecommendation
	s.mu.Unlock()

	if onHealth != nil {
		onHealth(snapshot)
	}
	if onRec != nil {
		for _, r := range recs {
			onRec(r)
		}
	}
}

// evaluate compares one telemetry record to the thresholds and builds the
// warning list from scratch.
func (s *HealthService) evaluate(id domain.DestinationID, tel domain.DestinationTelemetry, now time.Time) ([]domain.HealthWarning, []domain.Recommendation) {
	t := s.config.Thresholds
	var warnings []domain.HealthWarning
	var recs []domain.Recommendation

	warn := func(severity domain.WarningSeverity, category domain.WarningCategory, format string, args ...any) {
		warnings = append(warnings, domain.HealthWarning{
			Severity:  severity,
			Category:  category,
			Message:   fmt.Sprintf(format, args...),
			Timestamp: now,
		})
	}
	recommend := func(action domain.RemediationAction, reason string) {
		recs = append(recs, domain.Recommendation{
			DestinationID: id,
			Action:        action,
			Reason:        reason,
			Timestamp:     now,
		})
	}

	if tel.TargetBitrate > 0 {
		ratio := float64(tel.Bitrate) / float64(tel.TargetBitrate)
		if ratio < t.BitrateRatio {
			severity := domain.SeverityWarning
			if ratio < 0.5 {
				severity = domain.SeverityCritical
			}
			warn(severity, domain.CategoryBitrate, "bitrate at %.0f%% of target (%d/%d kbps)", ratio*100, tel.Bitrate, tel.TargetBitrate)
			if ratio < 0.6 && s.config.AutoAdjust {
				recommend(domain.ActionAdjustBitrate, "bitrate below 60% of target")
			}
		}
	}

	if tel.TargetFPS > 0 {
		ratio := tel.FPS / tel.TargetFPS
		if ratio < t.FPSRatio {
			severity := domain.SeverityWarning
			if ratio < 0.7 {
				severity = domain.SeverityCritical
			}
			warn(severity, domain.CategoryFPS, "fps at %.0f%% of target (%.1f/%.1f)", ratio*100, tel.FPS, tel.TargetFPS)
		}
	}

	if dropped := tel.DroppedFrameRatio(); dropped > t.DroppedFrames {
		severity := domain.SeverityWarning
		if dropped > 0.10 {
			severity = domain.SeverityCritical
		}
		warn(severity, domain.CategoryFrames, "dropping %.1f%% of frames", dropped*100)
	}

	if tel.RTT > t.RTT {
		severity := domain.SeverityWarning
		if tel.RTT > time.Second {
			severity = domain.SeverityCritical
		}
		warn(severity, domain.CategoryRTT, "round-trip time %dms", tel.RTT/time.Millisecond)
	}

	if tel.PacketLoss > t.PacketLoss {
		severity := domain.SeverityWarning
		if tel.PacketLoss > 0.05 {
			severity = domain.SeverityCritical
		}
		warn(severity, domain.CategoryPacketLoss, "packet loss %.1f%%", tel.PacketLoss*100)
		if tel.PacketLoss > 0.10 && s.config.AutoReconnect {
			recommend(domain.ActionReconnect, "packet loss above 10%")
		}
	}

	if tel.CPUUsage > t.CPUUsage {
		severity := domain.SeverityWarning
		if tel.CPUUsage > 0.95 {
			severity = domain.SeverityCritical
			recommend(domain.ActionReduceQuality, "cpu usage above 95%")
		}
		warn(severity, domain.CategoryCPU, "cpu usage %.0f%%", tel.CPUUsage*100)
	}

	if tel.MemoryUsage > t.MemoryUsage {
		severity := domain.SeverityWarning
		if tel.MemoryUsage > 0.95 {
			severity = domain.SeverityCritical
		}
		warn(severity, domain.CategoryMemory, "memory usage %.0f%%", tel.MemoryUsage*100)
	}

	if tel.EncoderLoad > t.EncoderLoad {
		severity := domain.SeverityWarning
		if tel.EncoderLoad > 0.95 {
			severity = domain.SeverityCritical
		}
		warn(severity, domain.CategoryEncoder, "encoder load %.0f%%", tel.EncoderLoad*100)
	}

	return warnings, recs
}

func copyHealth(rec *domain.StreamHealth) domain.StreamHealth {
	out := *rec
	out.Warnings = make([]domain.HealthWarning, len(rec.Warnings))
	copy(out.Warnings, rec.Warnings)
	return out
}
