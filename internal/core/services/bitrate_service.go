package services

import (
	"context"
	"math"
	"sync"
	"time"

	"omnicast/internal/core/domain"

	"go.uber.org/zap"
)

const (
	// bitrateSnapEpsilon snaps the ramp to the target when within this range.
	bitrateSnapEpsilon = 50 // kbps

	// rttDeratePoint is where round-trip time starts penalizing the estimate.
	rttDeratePoint = 200 * time.Millisecond

	// minSamplesForAdaptation gates adaptation until enough history exists.
	minSamplesForAdaptation = 3

	// trendWindow is the sample count used for next-bitrate prediction.
	trendWindow = 5
)

// BitrateConfig tunes the adaptation engine.
type BitrateConfig struct {
	MinBitrate      int // kbps
	MaxBitrate      int // kbps
	InitialBitrate  int // kbps
	StabilityWindow int // rolling sample count
	Level           domain.AdaptationLevel
	RampUpSpeed     float64 // fraction of the gap closed per tick
	RampDownSpeed   float64 // typically faster, to shed load under congestion
	LossThreshold   float64 // packet loss ratio above which derating starts
	AdaptInterval   time.Duration
}

// DefaultBitrateConfig returns the engine defaults.
func DefaultBitrateConfig() BitrateConfig {
	return BitrateConfig{
		MinBitrate:      500,
		MaxBitrate:      8000,
		InitialBitrate:  2500,
		StabilityWindow: 10,
		Level:           domain.AdaptationBalanced,
		RampUpSpeed:     0.25,
		RampDownSpeed:   0.6,
		LossThreshold:   0.02,
		AdaptInterval:   2 * time.Second,
	}
}

// defaultProfiles is the fixed, ordered quality catalog, highest first.
var defaultProfiles = []domain.BitrateProfile{
	{Name: "1080p60", Bitrate: 6000, Width: 1920, Height: 1080, FPS: 60, MinBandwidth: 6000},
	{Name: "1080p30", Bitrate: 4500, Width: 1920, Height: 1080, FPS: 30, MinBandwidth: 4500},
	{Name: "720p60", Bitrate: 3500, Width: 1280, Height: 720, FPS: 60, MinBandwidth: 3500},
	{Name: "720p30", Bitrate: 2500, Width: 1280, Height: 720, FPS: 30, MinBandwidth: 2500},
	{Name: "480p30", Bitrate: 1200, Width: 854, Height: 480, FPS: 30, MinBandwidth: 1200},
	{Name: "360p30", Bitrate: 600, Width: 640, Height: 360, FPS: 30, MinBandwidth: 600},
}

// BitrateService continuously re-targets the encoder bitrate to the observed
// network. It has no knowledge of destinations.
type BitrateService struct {
	config   BitrateConfig
	profiles []domain.BitrateProfile
	logger   *zap.SugaredLogger

	mu             sync.RWMutex
	currentBitrate int
	targetBitrate  int
	currentProfile domain.BitrateProfile
	history        []domain.NetworkConditions
	enabled        bool
	overridden     bool

	cancel context.CancelFunc

	onBitrateChange func(bitrate int, profile domain.BitrateProfile)
	onQualityChange func(profile domain.BitrateProfile)
}

func NewBitrateService(config BitrateConfig, logger *zap.SugaredLogger) *BitrateService {
	s := &BitrateService{
		config:         config,
		profiles:       defaultProfiles,
		logger:         logger,
		currentBitrate: config.InitialBitrate,
		targetBitrate:  config.InitialBitrate,
		enabled:        true,
	}
	s.currentProfile = s.selectProfile(config.InitialBitrate)
	return s
}

// OnBitrateChange registers the bitrate-change callback, fired every tick.
func (s *BitrateService) OnBitrateChange(fn func(bitrate int, profile domain.BitrateProfile)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBitrateChange = fn
}

// OnQualityChange registers the quality-change callback, fired only when the
// selected profile actually changes.
func (s *BitrateService) OnQualityChange(fn func(profile domain.BitrateProfile)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onQualityChange = fn
}

// Start begins the adaptation loop. Ticks are strictly sequential; the loop
// never overlaps itself.
func (s *BitrateService) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.enabled = true
	s.mu.Unlock()

	go s.adaptLoop(loopCtx)
}

// Stop halts the adaptation loop.
func (s *BitrateService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// EnableAdaptation re-enables automatic adaptation after a manual override.
func (s *BitrateService) EnableAdaptation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
	s.overridden = false
}

// DisableAdaptation suspends automatic adaptation without dropping history.
func (s *BitrateService) DisableAdaptation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
}

// SetManualOverride pins the bitrate and its implied profile, disabling
// automatic adaptation until EnableAdaptation is called.
func (s *BitrateService) SetManualOverride(bitrate int) {
	bitrate = clampInt(bitrate, s.config.MinBitrate, s.config.MaxBitrate)

	s.mu.Lock()
	s.overridden = true
	s.enabled = false
	s.currentBitrate = bitrate
	s.targetBitrate = bitrate
	prev := s.currentProfile
	s.currentProfile = s.selectProfile(bitrate)
	profile := s.currentProfile
	onBitrate := s.onBitrateChange
	onQuality := s.onQualityChange
	s.mu.Unlock()

	s.logger.Infow("manual bitrate override", "bitrate", bitrate, "profile", profile.Name)

	if onQuality != nil && profile.Name != prev.Name {
		onQuality(profile)
	}
	if onBitrate != nil {
		onBitrate(bitrate, profile)
	}
}

// AddSample appends a network sample to the bounded rolling history.
func (s *BitrateService) AddSample(cond domain.NetworkConditions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, cond)
	if len(s.history) > s.config.StabilityWindow {
		s.history = s.history[len(s.history)-s.config.StabilityWindow:]
	}
}

// CurrentBitrate returns the current encoder bitrate in kbps.
func (s *BitrateService) CurrentBitrate() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentBitrate
}

// TargetBitrate returns the bitrate the ramp is converging toward.
func (s *BitrateService) TargetBitrate() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.targetBitrate
}

// CurrentProfile returns the active quality profile.
func (s *BitrateService) CurrentProfile() domain.BitrateProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentProfile
}

// AdaptNow forces a single adaptation tick outside the timer schedule.
func (s *BitrateService) AdaptNow() {
	s.adaptOnce()
}

// StepDown pins the bitrate one profile below the current one. Used by
// remediation under encoder pressure; adaptation stays disabled until
// EnableAdaptation is called.
func (s *BitrateService) StepDown() domain.BitrateProfile {
	s.mu.RLock()
	current := s.currentProfile
	s.mu.RUnlock()

	for i, p := range s.profiles {
		if p.Name == current.Name && i < len(s.profiles)-1 {
			lower := s.profiles[i+1]
			s.SetManualOverride(lower.Bitrate)
			return lower
		}
	}
	return current
}

func (s *BitrateService) adaptLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.AdaptInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.adaptOnce()
		}
	}
}

// adaptOnce performs a single adaptation tick.
func (s *BitrateService) adaptOnce() {
	s.mu.Lock()

	if !s.enabled || s.overridden || len(s.history) < minSamplesForAdaptation {
		s.mu.Unlock()
		return
	}

	avg := averageConditions(s.history)
	optimal := s.computeOptimalBitrate(avg)

	if optimal != s.targetBitrate {
		s.targetBitrate = optimal
	}

	// One transition step toward the target, asymmetric up vs. down.
	diff := s.targetBitrate - s.currentBitrate
	if diff != 0 {
		speed := s.config.RampUpSpeed
		if diff < 0 {
			speed = s.config.RampDownSpeed
		}
		s.currentBitrate += int(float64(diff) * speed)
		if abs(s.targetBitrate-s.currentBitrate) <= bitrateSnapEpsilon {
			s.currentBitrate = s.targetBitrate
		}
	}
	s.currentBitrate = clampInt(s.currentBitrate, s.config.MinBitrate, s.config.MaxBitrate)

	prev := s.currentProfile
	s.currentProfile = s.selectProfile(s.currentBitrate)

	bitrate := s.currentBitrate
	profile := s.currentProfile
	onBitrate := s.onBitrateChange
	onQuality := s.onQualityChange
	s.mu.Unlock()

	if profile.Name != prev.Name {
		s.logger.Infow("quality profile changed",
			"from", prev.Name,
			"to", profile.Name,
			"bitrate", bitrate,
		)
		if onQuality != nil {
			onQuality(profile)
		}
	}
	if onBitrate != nil {
		onBitrate(bitrate, profile)
	}
}

// computeOptimalBitrate derives the optimal encoder bitrate from one
// representative sample. Caller holds the lock.
func (s *BitrateService) computeOptimalBitrate(cond domain.NetworkConditions) int {
	margin := 0.8
	switch s.config.Level {
	case domain.AdaptationConservative:
		margin = 0.7
	case domain.AdaptationAggressive:
		margin = 0.9
	}

	estimate := float64(cond.Bandwidth) * margin
	lossFree := estimate

	// Linear derating above the loss threshold.
	if cond.PacketLoss > s.config.LossThreshold {
		factor := 1.0 - (cond.PacketLoss-s.config.LossThreshold)*5.0
		if factor < 0 {
			factor = 0
		}
		estimate *= factor
	}

	// Excess round-trip time derates further, floored at half the loss-free
	// estimate.
	if cond.RTT > rttDeratePoint {
		excessMs := float64((cond.RTT - rttDeratePoint) / time.Millisecond)
		factor := 1.0 - excessMs/1000.0
		if factor < 0.5 {
			factor = 0.5
		}
		estimate *= factor
		if floor := lossFree * 0.5; estimate < floor {
			estimate = floor
		}
	}

	return clampInt(int(estimate), s.config.MinBitrate, s.config.MaxBitrate)
}

// selectProfile picks the highest-bitrate profile whose floor is at or below
// the given bitrate. Caller holds the lock (or the service is still being
// constructed).
func (s *BitrateService) selectProfile(bitrate int) domain.BitrateProfile {
	for _, p := range s.profiles {
		if p.MinBandwidth <= bitrate {
			return p
		}
	}
	return s.profiles[len(s.profiles)-1]
}

// StabilityScore is the inverse of bandwidth volatility across the history,
// 0 (chaotic) to 100 (steady).
func (s *BitrateService) StabilityScore() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.history) < 2 {
		return 100
	}

	var sum float64
	for _, c := range s.history {
		sum += float64(c.Bandwidth)
	}
	mean := sum / float64(len(s.history))
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, c := range s.history {
		d := float64(c.Bandwidth) - mean
		variance += d * d
	}
	variance /= float64(len(s.history))
	cv := math.Sqrt(variance) / mean

	score := 100 * (1 - cv*2)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// PredictNextBitrate extrapolates the next bitrate from the linear trend of
// the most recent samples.
func (s *BitrateService) PredictNextBitrate() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.history)
	if n < 2 {
		return s.currentBitrate
	}
	window := s.history
	if n > trendWindow {
		window = s.history[n-trendWindow:]
	}

	// Least-squares slope of bandwidth over sample index.
	m := float64(len(window))
	var sumX, sumY, sumXY, sumXX float64
	for i, c := range window {
		x := float64(i)
		y := float64(c.Bandwidth)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := m*sumXX - sumX*sumX
	if denom == 0 {
		return s.currentBitrate
	}
	slope := (m*sumXY - sumX*sumY) / denom

	predicted := float64(s.currentBitrate) + slope
	return clampInt(int(predicted), s.config.MinBitrate, s.config.MaxBitrate)
}

func averageConditions(samples []domain.NetworkConditions) domain.NetworkConditions {
	if len(samples) == 0 {
		return domain.NetworkConditions{}
	}

	var bandwidth int
	var rtt, jitter time.Duration
	var loss float64
	for _, c := range samples {
		bandwidth += c.Bandwidth
		rtt += c.RTT
		jitter += c.Jitter
		loss += c.PacketLoss
	}
	n := len(samples)
	return domain.NetworkConditions{
		Bandwidth:  bandwidth / n,
		RTT:        rtt / time.Duration(n),
		Jitter:     jitter / time.Duration(n),
		PacketLoss: loss / float64(n),
		Timestamp:  samples[n-1].Timestamp,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
