package model

import (
	"math"
	"testing"

	"github.com/epic1st/mexcscanner/features"
)

func TestNewLogisticScorerDefaultsZeroThresholdsToOne(t *testing.T) {
	s := NewLogisticScorer(Weights{Coefficients: map[string]float64{}}, features.Thresholds{})
	if s.ThresholdVSR != 1 || s.ThresholdPM != 1 || s.ThresholdOBI != 1 {
		t.Errorf("thresholds = (%v, %v, %v), want all 1 when unset", s.ThresholdVSR, s.ThresholdPM, s.ThresholdOBI)
	}
}

func TestNewLogisticScorerKeepsNonZeroThresholds(t *testing.T) {
	th := features.Thresholds{VSR: 2, PM: 0.02, OBI: -1}
	s := NewLogisticScorer(Weights{Coefficients: map[string]float64{}}, th)
	if s.ThresholdVSR != 2 || s.ThresholdPM != 0.02 || s.ThresholdOBI != -1 {
		t.Errorf("thresholds = (%v, %v, %v), want (2, 0.02, -1)", s.ThresholdVSR, s.ThresholdPM, s.ThresholdOBI)
	}
}

func TestPredictZeroInterceptAndCoefficientsYieldsHalf(t *testing.T) {
	s := NewLogisticScorer(Weights{Coefficients: map[string]float64{}}, features.Thresholds{VSR: 2, PM: 0.02, OBI: -1})
	p := s.Predict(features.FeatureVector{VSR: 100, PM: 100, OBI: 100})
	if math.Abs(p-0.5) > 1e-9 {
		t.Errorf("Predict() = %v, want 0.5 when every coefficient is 0", p)
	}
}

func TestPredictRespondsToNormalizedVSR(t *testing.T) {
	th := features.Thresholds{VSR: 2, PM: 0.02, OBI: -1}
	s := NewLogisticScorer(Weights{Intercept: -1, Coefficients: map[string]float64{"vsr": 0.1}}, th)

	low := s.Predict(features.FeatureVector{VSR: 0})
	high := s.Predict(features.FeatureVector{VSR: 300})
	if !(high > low) {
		t.Errorf("Predict(vsr=300) = %v, want > Predict(vsr=0) = %v", high, low)
	}
}

func TestLoadLogisticScorerMissingFileReturnsError(t *testing.T) {
	if _, err := LoadLogisticScorer("/nonexistent/model.json", features.Thresholds{}); err == nil {
		t.Error("LoadLogisticScorer() error = nil, want error for a missing file")
	}
}
