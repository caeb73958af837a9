package framebridge

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum allowed FPS standard deviation as a fraction of mean FPS.
	// Example: 30 FPS mean → stable if stddev < 4.5 FPS
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a fraction of expected interval.
	// Example: 30 FPS (33ms interval) → stable if jitter < 6.6ms
	jitterStabilityThreshold = 0.20
)

// Stats is a snapshot of frame delivery.
type Stats struct {
	FramesDelivered uint64
	FramesReplaced  uint64
	FramesCopied    uint64

	LastFrameAt time.Time
	LastTraceID string

	// Over the most recent arrivals only.
	FPSMean      float64
	FPSStdDev    float64
	FPSMin       float64
	FPSMax       float64
	JitterMean   float64 // seconds
	JitterStdDev float64 // seconds
	JitterMax    float64 // seconds
	IsStable     bool
}

// LastFrameAge returns how long ago the last frame arrived, 0 if none has.
func (s Stats) LastFrameAge() time.Duration {
	if s.LastFrameAt.IsZero() {
		return 0
	}
	return time.Since(s.LastFrameAt)
}

// Stats returns the current delivery statistics.
func (b *Bridge) Stats() Stats {
	b.statsMu.Lock()
	arrivals := make([]time.Time, len(b.arrivals))
	copy(arrivals, b.arrivals)
	traceID := b.lastTraceID
	b.statsMu.Unlock()

	s := CalculateFPSStats(arrivals)
	s.FramesDelivered = b.delivered.Load()
	s.FramesReplaced = b.replaced.Load()
	s.FramesCopied = b.copied.Load()
	s.LastTraceID = traceID
	if n := len(arrivals); n > 0 {
		s.LastFrameAt = arrivals[n-1]
	}
	return s
}

// CalculateFPSStats calculates FPS statistics from frame arrival times
//
// This function:
//  1. Calculates mean FPS over the span of the arrivals
//  2. Calculates instantaneous FPS for each frame interval
//  3. Finds min/max instantaneous FPS
//  4. Calculates standard deviation of instantaneous FPS
//  5. Calculates jitter statistics (inter-frame interval variance)
//  6. Determines stability (stddev < 15% of mean AND jitter < 20%)
//
// Fewer than two arrivals yield zero rates and IsStable=false.
func CalculateFPSStats(frameTimes []time.Time) Stats {
	n := len(frameTimes)
	if n < 2 {
		return Stats{}
	}

	span := frameTimes[n-1].Sub(frameTimes[0]).Seconds()
	if span <= 0 {
		return Stats{}
	}

	// n arrivals delimit n-1 intervals
	fpsMean := float64(n-1) / span

	instantaneousFPS := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		if interval > 0 {
			instantaneousFPS = append(instantaneousFPS, 1.0/interval)
		}
	}
	if len(instantaneousFPS) == 0 {
		return Stats{FPSMean: fpsMean}
	}

	fpsMin := instantaneousFPS[0]
	fpsMax := instantaneousFPS[0]
	var sumSquares float64
	for _, fps := range instantaneousFPS {
		fpsMin = math.Min(fpsMin, fps)
		fpsMax = math.Max(fpsMax, fps)
		diff := fps - fpsMean
		sumSquares += diff * diff
	}
	fpsStdDev := math.Sqrt(sumSquares / float64(len(instantaneousFPS)))

	expectedInterval := 1.0 / fpsMean

	jitters := make([]float64, 0, n-1)
	var jitterSum, jitterMax float64
	for i := 1; i < n; i++ {
		actual := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		j := math.Abs(actual - expectedInterval)
		jitters = append(jitters, j)
		jitterSum += j
		jitterMax = math.Max(jitterMax, j)
	}
	jitterMean := jitterSum / float64(len(jitters))

	var jitterSumSquares float64
	for _, j := range jitters {
		diff := j - jitterMean
		jitterSumSquares += diff * diff
	}
	jitterStdDev := math.Sqrt(jitterSumSquares / float64(len(jitters)))

	fpsStable := fpsStdDev < (fpsMean * fpsStabilityThreshold)
	jitterStable := jitterMean < (expectedInterval * jitterStabilityThreshold)

	return Stats{
		FPSMean:      fpsMean,
		FPSStdDev:    fpsStdDev,
		FPSMin:       fpsMin,
		FPSMax:       fpsMax,
		JitterMean:   jitterMean,
		JitterStdDev: jitterStdDev,
		JitterMax:    jitterMax,
		IsStable:     fpsStable && jitterStable,
	}
}
