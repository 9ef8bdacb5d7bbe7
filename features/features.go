// Package features computes the per-symbol microstructure feature
// vector (VSR, PM, OBI, spread, cum_depth_delta, listing_age) from the
// fused tick stream, and screens it against configurable thresholds.
package features

import (
	"fmt"
	"math"
	"sync"

	"github.com/epic1st/mexcscanner/collector"
	"github.com/epic1st/mexcscanner/window"
)

const (
	vol5mHorizon      = 300
	vol6hHorizon      = 21600
	vol1mHorizon      = 60
	depthNet3mHorizon = 180
)

// FeatureVector is the fixed per-tick output of the engine.
type FeatureVector struct {
	Symbol         string
	VSR            float64
	PM             float64
	OBI            float64
	CumDepthDelta  float64
	Spread         float64
	ListingAgeSec  float64
	Ready          bool
}

type symbolState struct {
	vol5m      *window.RollingWindow
	vol6h      *window.RollingWindow
	priceVol5m *window.RollingWindow
	vol1m      *window.RollingWindow
	depthNet3m *window.RollingWindow
	firstSeen  float64
}

// Engine holds per-symbol rolling state. State is never proactively
// destroyed; a symbol disappears from memory only by never receiving
// further Update calls (its lifetime is bounded by the subscription set).
type Engine struct {
	mu     sync.Mutex
	states map[string]*symbolState
}

// NewEngine creates an empty FeatureEngine.
func NewEngine() *Engine {
	return &Engine{states: make(map[string]*symbolState)}
}

func (e *Engine) stateFor(symbol string, now float64) *symbolState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.states[symbol]
	if !ok {
		s = &symbolState{
			vol5m:      window.New(vol5mHorizon, window.Scalar(0)),
			vol6h:      window.New(vol6hHorizon, window.Scalar(0)),
			priceVol5m: window.New(vol5mHorizon, window.Vec2{}),
			vol1m:      window.New(vol1mHorizon, window.Scalar(0)),
			depthNet3m: window.New(depthNet3mHorizon, window.Scalar(0)),
			firstSeen:  now,
		}
		e.states[symbol] = s
	}
	return s
}

// Update computes a fresh FeatureVector from tick, pulling best-price and
// cumulative-depth data from src (normally the same Client that produced
// the tick).
func (e *Engine) Update(tick collector.Tick, src *collector.Client) FeatureVector {
	now := tick.Ts
	symbol := tick.Symbol
	price := firstFloat(tick.Kline, "c", "close", "p")
	quoteVol := firstFloat(tick.Kline, "quoteVol", "q", "quote_volume", "v")

	s := e.stateFor(symbol, now)

	s.vol5m.Append(now, window.Scalar(quoteVol))
	s.vol6h.Append(now, window.Scalar(quoteVol))
	s.vol1m.Append(now, window.Scalar(quoteVol))
	s.priceVol5m.Append(now, window.Vec2{price * quoteVol, quoteVol})

	bidDepth, askDepth, _ := src.GetCumDepth(symbol)
	net := bidDepth - askDepth
	oldestNet, hasOldest := s.depthNet3m.Oldest()
	s.depthNet3m.Append(now, window.Scalar(net))

	cumDepthDelta := 0.0
	if hasOldest {
		cumDepthDelta = net - float64(oldestNet.(window.Scalar))
	}

	vol5m := float64(s.vol5m.Sum().(window.Scalar))
	median6h := float64(s.vol6h.Median().(window.Scalar))
	vsr := 0.0
	if median6h > 0 {
		vsr = vol5m / median6h
	}

	pvSum := s.priceVol5m.Sum().(window.Vec2)
	vwap := 0.0
	if pvSum[1] > 0 {
		vwap = pvSum[0] / pvSum[1]
	}
	pm := 0.0
	if vwap > 0 {
		pm = (price - vwap) / vwap
	}

	obi, spread := 0.0, 0.0
	if bid, ask, ok := src.GetBest(symbol); ok {
		mid := (bid.Price + ask.Price) / 2
		if mid > 0 {
			spread = (ask.Price - bid.Price) / mid
		}
		if denom := bid.Price + ask.Price; denom > 0 {
			// Price-based imbalance, not size-based: (bid-ask)/(bid+ask)
			// is always <= 0 since ask >= bid. Reproduced intentionally.
			obi = (bid.Price - ask.Price) / denom
		}
	}

	listingAge := now - s.firstSeen

	ready := s.vol5m.SpansHorizon(now) && s.vol6h.SpansHorizon(now) && s.depthNet3m.SpansHorizon(now)

	return FeatureVector{
		Symbol:        symbol,
		VSR:           vsr,
		PM:            pm,
		OBI:           obi,
		CumDepthDelta: cumDepthDelta,
		Spread:        spread,
		ListingAgeSec: listingAge,
		Ready:         ready,
	}
}

func firstFloat(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch t := v.(type) {
			case float64:
				return t
			case string:
				var f float64
				if _, err := fmt.Sscanf(t, "%g", &f); err == nil {
					return f
				}
			}
		}
	}
	return 0.0
}

// Thresholds configures CandidateFilter. Missing (zero-value) fields
// default to 0, except Spread which defaults to +Inf when unset via
// NewThresholds.
type Thresholds struct {
	VSR            float64
	PM             float64
	OBI            float64
	Spread         float64
	ListingAgeMin  float64
}

// NewThresholds returns Thresholds with Spread defaulted to +Inf (never
// filters on spread) unless overridden by the caller afterward.
func NewThresholds() Thresholds {
	return Thresholds{Spread: math.Inf(1)}
}

// IsCandidate is the pure predicate from spec: all five metric
// comparisons must hold.
func IsCandidate(fv FeatureVector, th Thresholds) bool {
	return fv.VSR > th.VSR &&
		fv.PM > th.PM &&
		fv.OBI > th.OBI &&
		fv.Spread < th.Spread &&
		fv.ListingAgeSec > th.ListingAgeMin
}
