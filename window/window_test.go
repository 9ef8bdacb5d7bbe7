package window

import "testing"

func TestRollingWindowTrimsByHorizon(t *testing.T) {
	w := New(10, Scalar(0))

	w.Append(0, Scalar(1))
	w.Append(5, Scalar(2))
	w.Append(9, Scalar(3))
	if got := w.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	// tail.ts - head.ts == 10, not > 10, so the head must survive.
	w.Append(10, Scalar(4))
	if got := w.Len(); got != 4 {
		t.Fatalf("Len() = %d, want 4 (boundary sample retained)", got)
	}

	// Now the gap to the oldest sample (ts=0) exceeds the horizon.
	w.Append(11, Scalar(5))
	first, ok := w.FirstTimestamp()
	if !ok || first != 5 {
		t.Fatalf("FirstTimestamp() = (%v, %v), want (5, true)", first, ok)
	}
	if got := w.Len(); got != 4 {
		t.Fatalf("Len() = %d, want 4 after trimming ts=0", got)
	}
}

func TestRollingWindowSumMedianMax(t *testing.T) {
	w := New(100, Scalar(0))
	for i, v := range []float64{4, 1, 3, 2} {
		w.Append(float64(i), Scalar(v))
	}

	if sum := float64(w.Sum().(Scalar)); sum != 10 {
		t.Errorf("Sum() = %v, want 10", sum)
	}
	if max := float64(w.Max().(Scalar)); max != 4 {
		t.Errorf("Max() = %v, want 4", max)
	}
	if median := float64(w.Median().(Scalar)); median != 2.5 {
		t.Errorf("Median() = %v, want 2.5", median)
	}
}

func TestRollingWindowEmptyReturnsZero(t *testing.T) {
	w := New(60, Scalar(0))
	if sum := float64(w.Sum().(Scalar)); sum != 0 {
		t.Errorf("Sum() on empty window = %v, want 0", sum)
	}
	if _, ok := w.Oldest(); ok {
		t.Errorf("Oldest() on empty window returned ok=true")
	}
	if _, ok := w.FirstTimestamp(); ok {
		t.Errorf("FirstTimestamp() on empty window returned ok=true")
	}
	if w.SpansHorizon(1000) {
		t.Errorf("SpansHorizon() on empty window = true, want false")
	}
}

func TestRollingWindowVectorAggregation(t *testing.T) {
	w := New(100, Vec2{})
	w.Append(0, Vec2{100 * 10, 10})
	w.Append(1, Vec2{110 * 20, 20})

	sum := w.Sum().(Vec2)
	if sum[0] != 3200 || sum[1] != 30 {
		t.Fatalf("Sum() = %v, want [3200 30]", sum)
	}
}

func TestRollingWindowSpansHorizon(t *testing.T) {
	w := New(300, Scalar(0))
	w.Append(0, Scalar(1))
	if w.SpansHorizon(100) {
		t.Errorf("SpansHorizon(100) = true, want false (only 100s elapsed of 300s horizon)")
	}
	w.Append(300, Scalar(2))
	if !w.SpansHorizon(300) {
		t.Errorf("SpansHorizon(300) = false, want true (boundary sample spans exactly)")
	}
}

func TestRollingWindowMedianEvenCount(t *testing.T) {
	w := New(100, Scalar(0))
	w.Append(0, Scalar(10))
	w.Append(1, Scalar(20))
	if median := float64(w.Median().(Scalar)); median != 15 {
		t.Errorf("Median() = %v, want 15", median)
	}
}
