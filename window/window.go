// Package window implements time-bounded rolling buffers used by the
// feature engine and the collector's quality gate to aggregate samples
// over a fixed horizon without retaining stale data.
package window

import "sync"

// Value is the payload a RollingWindow accumulates. Scalar metrics use
// float64; VWAP accumulation uses Vec2 ([price*volume, volume]).
type Value interface {
	Add(Value) Value
	Less(Value) bool
}

// Scalar is a plain float64 sample.
type Scalar float64

func (s Scalar) Add(o Value) Value  { return s + o.(Scalar) }
func (s Scalar) Less(o Value) bool  { return s < o.(Scalar) }
func (s Scalar) Float() float64     { return float64(s) }

// Vec2 is a two-component vector sample, used for VWAP's [price*volume, volume] pair.
type Vec2 [2]float64

func (v Vec2) Add(o Value) Value {
	ov := o.(Vec2)
	return Vec2{v[0] + ov[0], v[1] + ov[1]}
}

// Less orders Vec2 by its first component; only used if Max() is called
// on a vector window, which this package never does.
func (v Vec2) Less(o Value) bool { return v[0] < o.(Vec2)[0] }

type sample struct {
	ts  float64
	val Value
}

// RollingWindow is a time-bounded append-only buffer keyed by a horizon H
// (seconds). Samples are ordered by append time, assumed monotonically
// non-decreasing; append is amortized O(1), aggregates are O(k) over the
// currently retained length k.
type RollingWindow struct {
	mu      sync.Mutex
	horizon float64
	zero    Value
	samples []sample
}

// New creates a RollingWindow with the given horizon in seconds. zero is
// the value returned by aggregates when the window is empty (Scalar(0)
// for scalar windows, Vec2{} for vector windows).
func New(horizonSec float64, zero Value) *RollingWindow {
	return &RollingWindow{horizon: horizonSec, zero: zero}
}

// Append adds a sample at ts, then trims the head while the age of the
// oldest sample exceeds the horizon.
func (w *RollingWindow) Append(ts float64, v Value) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, sample{ts: ts, val: v})
	w.trim(ts)
}

func (w *RollingWindow) trim(now float64) {
	i := 0
	for i < len(w.samples) && now-w.samples[i].ts > w.horizon {
		i++
	}
	if i > 0 {
		w.samples = w.samples[i:]
	}
}

// Sum aggregates all retained samples, returning zero when empty.
func (w *RollingWindow) Sum() Value {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return w.zero
	}
	acc := w.samples[0].val
	for _, s := range w.samples[1:] {
		acc = acc.Add(s.val)
	}
	return acc
}

// Median returns the element-wise median of retained scalar samples.
// Vector windows never call Median (spec only needs it for vol_6h, a
// scalar window), so this panics on non-Scalar values by construction
// of the *values* slice, not on purpose — callers must only use Median
// on scalar windows.
func (w *RollingWindow) Median() Value {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return w.zero
	}
	vals := make([]float64, len(w.samples))
	for i, s := range w.samples {
		vals[i] = float64(s.val.(Scalar))
	}
	sortFloat64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return Scalar(vals[n/2])
	}
	return Scalar((vals[n/2-1] + vals[n/2]) / 2)
}

// Max returns the maximum retained sample, zero when empty.
func (w *RollingWindow) Max() Value {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return w.zero
	}
	max := w.samples[0].val
	for _, s := range w.samples[1:] {
		if max.Less(s.val) {
			max = s.val
		}
	}
	return max
}

// Oldest returns the head sample's value, or nil if empty.
func (w *RollingWindow) Oldest() (Value, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return nil, false
	}
	return w.samples[0].val, true
}

// FirstTimestamp returns the head sample's timestamp, or (0, false) if empty.
func (w *RollingWindow) FirstTimestamp() (float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return 0, false
	}
	return w.samples[0].ts, true
}

// Len returns the number of retained samples.
func (w *RollingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// SpansHorizon reports whether the window currently holds at least one
// sample and that sample's age (relative to now) is >= the full horizon
// — i.e. the window has accumulated a complete horizon's worth of data.
func (w *RollingWindow) SpansHorizon(now float64) bool {
	ts, ok := w.FirstTimestamp()
	if !ok {
		return false
	}
	return now-ts >= w.horizon
}

func sortFloat64s(a []float64) {
	for i := 1; i < len(a); i++ {
		v := a[i]
		j := i - 1
		for j >= 0 && a[j] > v {
			a[j+1] = a[j]
			j--
		}
		a[j+1] = v
	}
}
