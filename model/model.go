// Package model defines the scoring boundary between the feature engine
// and the (externally owned) trained classifier. The scanner core never
// trains or persists a model; it only calls Scorer.Predict on a
// FeatureVector that has already passed the candidate filter.
package model

import (
	"encoding/json"
	"math"
	"os"

	"github.com/epic1st/mexcscanner/features"
)

// Scorer maps a feature vector to a probability in [0, 1]. It is a pure
// function: no I/O, no mutation, safe for concurrent use.
type Scorer interface {
	Predict(fv features.FeatureVector) float64
}

// LogisticScorer is a stand-in implementation of Scorer: a 3-term
// logistic regression over VSR, PM, and OBI, each normalized by its
// corresponding CandidateFilter threshold before weighting. This mirrors
// the original reference model's predict_proba exactly (it does not use
// a naive dot product over the full feature vector — only vsr/pm/obi
// participate, each divided by its threshold first). It is explicitly a
// placeholder for whatever trained model operators plug in; this package
// exists so the end-to-end pipeline is runnable without one.
type LogisticScorer struct {
	Intercept    float64
	CoefVSR      float64
	CoefPM       float64
	CoefOBI      float64
	ThresholdVSR float64
	ThresholdPM  float64
	ThresholdOBI float64
}

// Weights is the on-disk shape for a LogisticScorer, mirroring the
// original model.json layout (intercept + a coefficients map).
type Weights struct {
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
}

// LoadLogisticScorer reads weights from path (a model.json-shaped file)
// and pairs them with the thresholds used to normalize vsr/pm/obi before
// scoring. A missing model file is a fatal configuration error per the
// error taxonomy, not a recoverable one.
func LoadLogisticScorer(path string, th features.Thresholds) (*LogisticScorer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return NewLogisticScorer(w, th), nil
}

// NewLogisticScorer builds a scorer from already-loaded weights and
// thresholds, defaulting any zero threshold to 1 so normalization never
// divides by zero.
func NewLogisticScorer(w Weights, th features.Thresholds) *LogisticScorer {
	return &LogisticScorer{
		Intercept:    w.Intercept,
		CoefVSR:      w.Coefficients["vsr"],
		CoefPM:       w.Coefficients["pm"],
		CoefOBI:      w.Coefficients["obi"],
		ThresholdVSR: nonZero(th.VSR, 1),
		ThresholdPM:  nonZero(th.PM, 1),
		ThresholdOBI: nonZero(th.OBI, 1),
	}
}

func nonZero(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

// Predict returns sigmoid(intercept + sum(coef_i * (x_i / threshold_i))).
func (s *LogisticScorer) Predict(fv features.FeatureVector) float64 {
	x := s.Intercept
	x += s.CoefVSR * (fv.VSR / s.ThresholdVSR)
	x += s.CoefPM * (fv.PM / s.ThresholdPM)
	x += s.CoefOBI * (fv.OBI / s.ThresholdOBI)
	return 1.0 / (1.0 + math.Exp(-x))
}
