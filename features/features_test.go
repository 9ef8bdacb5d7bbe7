package features

import (
	"io"
	"math"
	"testing"

	"github.com/epic1st/mexcscanner/collector"
	"github.com/epic1st/mexcscanner/logging"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// Seeded scenario 5: feed two ticks for ABC, (c=100, qv=10) at t=0 then
// (c=110, qv=20) at t=1. Expected: vsr ~= 2.0, pm ~= 0.03125, ready == false.
func TestEngineUpdateScenario5(t *testing.T) {
	src := collector.New("ws://unused.invalid", logging.NewLogger(logging.FATAL, io.Discard))
	eng := NewEngine()

	tick1 := collector.Tick{Symbol: "ABC", Kline: map[string]any{"c": 100.0, "quoteVol": 10.0}, Ts: 0}
	eng.Update(tick1, src)

	tick2 := collector.Tick{Symbol: "ABC", Kline: map[string]any{"c": 110.0, "quoteVol": 20.0}, Ts: 1}
	fv := eng.Update(tick2, src)

	if !approxEqual(fv.VSR, 2.0, 1e-9) {
		t.Errorf("VSR = %v, want ~2.0", fv.VSR)
	}
	if !approxEqual(fv.PM, 0.03125, 1e-6) {
		t.Errorf("PM = %v, want ~0.03125", fv.PM)
	}
	if fv.Ready {
		t.Errorf("Ready = true, want false (windows have not spanned their horizons)")
	}
}

func TestEngineReadyOnceAllWindowsSpanHorizon(t *testing.T) {
	src := collector.New("ws://unused.invalid", logging.NewLogger(logging.FATAL, io.Discard))
	eng := NewEngine()

	var fv FeatureVector
	for ts := 0.0; ts <= vol6hHorizon; ts++ {
		tick := collector.Tick{Symbol: "XYZ", Kline: map[string]any{"c": 100.0, "quoteVol": 50.0}, Ts: ts}
		fv = eng.Update(tick, src)
	}

	if !fv.Ready {
		t.Fatalf("Ready = false after accumulating a full 6h of samples, want true")
	}
}

func TestEngineListingAgeGrowsFromFirstSeen(t *testing.T) {
	src := collector.New("ws://unused.invalid", logging.NewLogger(logging.FATAL, io.Discard))
	eng := NewEngine()

	eng.Update(collector.Tick{Symbol: "AGE", Kline: map[string]any{"c": 1.0, "quoteVol": 1.0}, Ts: 100}, src)
	fv := eng.Update(collector.Tick{Symbol: "AGE", Kline: map[string]any{"c": 1.0, "quoteVol": 1.0}, Ts: 150}, src)

	if fv.ListingAgeSec != 50 {
		t.Errorf("ListingAgeSec = %v, want 50", fv.ListingAgeSec)
	}
}

func TestEngineZeroMedianYieldsZeroVSR(t *testing.T) {
	src := collector.New("ws://unused.invalid", logging.NewLogger(logging.FATAL, io.Discard))
	eng := NewEngine()

	fv := eng.Update(collector.Tick{Symbol: "NEW", Kline: map[string]any{"c": 1.0, "quoteVol": 0.0}, Ts: 0}, src)
	if fv.VSR != 0 {
		t.Errorf("VSR = %v, want 0 when the 6h median volume is 0", fv.VSR)
	}
	if fv.PM != 0 {
		t.Errorf("PM = %v, want 0 when VWAP is undefined", fv.PM)
	}
}

func TestIsCandidateAllThresholdsMustHold(t *testing.T) {
	th := Thresholds{VSR: 2, PM: 0.02, OBI: -1, Spread: 0.02, ListingAgeMin: 0}

	passing := FeatureVector{VSR: 2.5, PM: 0.03, OBI: -0.5, Spread: 0.01, ListingAgeSec: 10}
	if !IsCandidate(passing, th) {
		t.Errorf("IsCandidate() = false for a vector that exceeds every threshold")
	}

	failing := passing
	failing.Spread = 0.05
	if IsCandidate(failing, th) {
		t.Errorf("IsCandidate() = true despite spread exceeding its threshold")
	}
}

func TestNewThresholdsDefaultsSpreadToInfinity(t *testing.T) {
	th := NewThresholds()
	if !math.IsInf(th.Spread, 1) {
		t.Errorf("NewThresholds().Spread = %v, want +Inf", th.Spread)
	}
}
