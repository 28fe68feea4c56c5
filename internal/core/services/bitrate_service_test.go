package services

import (
	"testing"
	"time"

	"omnicast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newBitrate(cfg BitrateConfig) *BitrateService {
	return NewBitrateService(cfg, zap.NewNop().Sugar())
}

func steadySamples(svc *BitrateService, bandwidth, count int) {
	for i := 0; i < count; i++ {
		svc.AddSample(domain.NetworkConditions{
			Bandwidth: bandwidth,
			RTT:       50 * time.Millisecond,
			Timestamp: time.Now(),
		})
	}
}

func TestBitrateInitialState(t *testing.T) {
	svc := newBitrate(DefaultBitrateConfig())

	assert.Equal(t, 2500, svc.CurrentBitrate())
	assert.Equal(t, 2500, svc.TargetBitrate())
	assert.Equal(t, "720p30", svc.CurrentProfile().Name)
}

func TestBitrateAdaptationRequiresMinimumSamples(t *testing.T) {
	svc := newBitrate(DefaultBitrateConfig())

	steadySamples(svc, 8000, minSamplesForAdaptation-1)
	svc.AdaptNow()

	assert.Equal(t, 2500, svc.CurrentBitrate())
}

func TestBitrateConvergesToTargetWithinEpsilon(t *testing.T) {
	svc := newBitrate(DefaultBitrateConfig())

	// Balanced margin: 5000 kbps available -> 4000 kbps target.
	steadySamples(svc, 5000, 5)

	for i := 0; i < 50; i++ {
		svc.AdaptNow()
	}

	assert.Equal(t, 4000, svc.TargetBitrate())
	assert.Equal(t, 4000, svc.CurrentBitrate())
	assert.Equal(t, "720p60", svc.CurrentProfile().Name)

	// Stable input keeps the output pinned.
	svc.AdaptNow()
	assert.Equal(t, 4000, svc.CurrentBitrate())
}

func TestBitrateRampIsGradual(t *testing.T) {
	svc := newBitrate(DefaultBitrateConfig())

	steadySamples(svc, 5000, 5)
	svc.AdaptNow()

	// One tick closes a quarter of the 1500 kbps gap.
	assert.Equal(t, 2875, svc.CurrentBitrate())
}

func TestBitrateMarginPerLevel(t *testing.T) {
	tests := []struct {
		level  domain.AdaptationLevel
		target int
	}{
		{domain.AdaptationConservative, 3500},
		{domain.AdaptationBalanced, 4000},
		{domain.AdaptationAggressive, 4500},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			cfg := DefaultBitrateConfig()
			cfg.Level = tt.level
			svc := newBitrate(cfg)

			steadySamples(svc, 5000, 5)
			svc.AdaptNow()

			assert.Equal(t, tt.target, svc.TargetBitrate())
		})
	}
}

func TestBitrateLossDeratesTarget(t *testing.T) {
	svc := newBitrate(DefaultBitrateConfig())

	for i := 0; i < 5; i++ {
		svc.AddSample(domain.NetworkConditions{
			Bandwidth:  5000,
			RTT:        50 * time.Millisecond,
			PacketLoss: 0.05,
			Timestamp:  time.Now(),
		})
	}
	svc.AdaptNow()

	// 4000 * (1 - (0.05-0.02)*5) = 3400.
	assert.Equal(t, 3400, svc.TargetBitrate())
}

func TestBitrateHigherLossMeansLowerTarget(t *testing.T) {
	targetAtLoss := func(loss float64) int {
		svc := newBitrate(DefaultBitrateConfig())
		for i := 0; i < 5; i++ {
			svc.AddSample(domain.NetworkConditions{
				Bandwidth:  5000,
				RTT:        50 * time.Millisecond,
				PacketLoss: loss,
				Timestamp:  time.Now(),
			})
		}
		svc.AdaptNow()
		return svc.TargetBitrate()
	}

	prev := targetAtLoss(0)
	for _, loss := range []float64{0.03, 0.06, 0.10, 0.15} {
		cur := targetAtLoss(loss)
		assert.LessOrEqual(t, cur, prev, "loss %.2f should not raise the target", loss)
		prev = cur
	}
}

func TestBitrateRTTDerating(t *testing.T) {
	svc := newBitrate(DefaultBitrateConfig())

	for i := 0; i < 5; i++ {
		svc.AddSample(domain.NetworkConditions{
			Bandwidth: 5000,
			RTT:       400 * time.Millisecond,
			Timestamp: time.Now(),
		})
	}
	svc.AdaptNow()

	// 200ms excess RTT derates by 20%: 4000 * 0.8 = 3200.
	assert.Equal(t, 3200, svc.TargetBitrate())
}

func TestBitrateExtremeRTTFloorsAtHalfEstimate(t *testing.T) {
	svc := newBitrate(DefaultBitrateConfig())

	for i := 0; i < 5; i++ {
		svc.AddSample(domain.NetworkConditions{
			Bandwidth: 5000,
			RTT:       2 * time.Second,
			Timestamp: time.Now(),
		})
	}
	svc.AdaptNow()

	assert.Equal(t, 2000, svc.TargetBitrate())
}

func TestBitrateClampedToConfiguredRange(t *testing.T) {
	svc := newBitrate(DefaultBitrateConfig())

	steadySamples(svc, 100, 5)
	for i := 0; i < 50; i++ {
		svc.AdaptNow()
	}
	assert.Equal(t, 500, svc.CurrentBitrate())

	svc2 := newBitrate(DefaultBitrateConfig())
	steadySamples(svc2, 50000, 5)
	for i := 0; i < 50; i++ {
		svc2.AdaptNow()
	}
	assert.Equal(t, 8000, svc2.CurrentBitrate())
	assert.Equal(t, "1080p60", svc2.CurrentProfile().Name)
}

func TestManualOverridePinsBitrate(t *testing.T) {
	svc := newBitrate(DefaultBitrateConfig())

	svc.SetManualOverride(1200)
	assert.Equal(t, 1200, svc.CurrentBitrate())
	assert.Equal(t, "480p30", svc.CurrentProfile().Name)

	// Adaptation must not move an overridden bitrate.
	steadySamples(svc, 8000, 5)
	svc.AdaptNow()
	assert.Equal(t, 1200, svc.CurrentBitrate())

	// Re-enabling adaptation resumes ramping.
	svc.EnableAdaptation()
	svc.AdaptNow()
	assert.Greater(t, svc.CurrentBitrate(), 1200)
}

func TestManualOverrideClamped(t *testing.T) {
	svc := newBitrate(DefaultBitrateConfig())

	svc.SetManualOverride(100)
	assert.Equal(t, 500, svc.CurrentBitrate())

	svc.SetManualOverride(99999)
	assert.Equal(t, 8000, svc.CurrentBitrate())
}

func TestStepDownMovesOneProfileLower(t *testing.T) {
	svc := newBitrate(DefaultBitrateConfig())
	require.Equal(t, "720p30", svc.CurrentProfile().Name)

	lower := svc.StepDown()
	assert.Equal(t, "480p30", lower.Name)
	assert.Equal(t, 1200, svc.CurrentBitrate())

	// Stepping down from the floor stays at the floor.
	svc.SetManualOverride(600)
	require.Equal(t, "360p30", svc.CurrentProfile().Name)
	assert.Equal(t, "360p30", svc.StepDown().Name)
}

func TestQualityChangeCallbackFiresOnProfileBoundary(t *testing.T) {
	svc := newBitrate(DefaultBitrateConfig())

	var changes []string
	svc.OnQualityChange(func(p domain.BitrateProfile) {
		changes = append(changes, p.Name)
	})

	svc.SetManualOverride(6000)
	svc.SetManualOverride(6100) // same profile, no event

	require.Len(t, changes, 1)
	assert.Equal(t, "1080p60", changes[0])
}

func TestStabilityScore(t *testing.T) {
	svc := newBitrate(DefaultBitrateConfig())
	assert.Equal(t, 100.0, svc.StabilityScore())

	steadySamples(svc, 4000, 10)
	assert.Equal(t, 100.0, svc.StabilityScore())

	// A 5% wobble still scores high.
	svc2 := newBitrate(DefaultBitrateConfig())
	for i := 0; i < 10; i++ {
		b := 4000 + 200*(i%2*2-1)
		svc2.AddSample(domain.NetworkConditions{Bandwidth: b, Timestamp: time.Now()})
	}
	assert.Greater(t, svc2.StabilityScore(), 80.0)

	// Chaotic bandwidth scores low.
	svc3 := newBitrate(DefaultBitrateConfig())
	for _, b := range []int{8000, 500, 7000, 600, 8000, 400, 6000, 900} {
		svc3.AddSample(domain.NetworkConditions{Bandwidth: b, Timestamp: time.Now()})
	}
	assert.Less(t, svc3.StabilityScore(), 50.0)
}

func TestPredictNextBitrateFollowsTrend(t *testing.T) {
	svc := newBitrate(DefaultBitrateConfig())

	for _, b := range []int{5000, 4800, 4600, 4400, 4200} {
		svc.AddSample(domain.NetworkConditions{Bandwidth: b, Timestamp: time.Now()})
	}

	// Bandwidth drops 200 kbps per sample; the prediction leads the current
	// bitrate downward by one slope step.
	assert.Equal(t, svc.CurrentBitrate()-200, svc.PredictNextBitrate())

	// Flat history predicts no movement.
	svc2 := newBitrate(DefaultBitrateConfig())
	steadySamples(svc2, 4000, 5)
	assert.Equal(t, svc2.CurrentBitrate(), svc2.PredictNextBitrate())
}
