package logging

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestErrorTrackerCountsRepeatedErrors(t *testing.T) {
	et := NewErrorTracker()
	defer et.Stop()

	err := errors.New("redis publish failed")
	et.Track(context.Background(), err, "low", nil)
	et.Track(context.Background(), err, "low", nil)

	stats := et.GetStats()
	var found *ErrorStats
	for _, s := range stats {
		if s.Message == err.Error() {
			found = s
		}
	}
	if found == nil {
		t.Fatal("GetStats() has no entry for the tracked error")
	}
	if found.Count != 2 {
		t.Errorf("Count = %d, want 2", found.Count)
	}
}

func TestErrorTrackerNilErrorIsIgnored(t *testing.T) {
	et := NewErrorTracker()
	defer et.Stop()

	et.Track(context.Background(), nil, "low", nil)
	if len(et.GetStats()) != 0 {
		t.Errorf("GetStats() = %v, want empty after tracking a nil error", et.GetStats())
	}
}

func TestErrorTrackerAlertsAtCriticalThreshold(t *testing.T) {
	et := NewErrorTracker()
	defer et.Stop()

	alerted := make(chan *ErrorStats, 1)
	et.RegisterAlertCallback(func(stats *ErrorStats) { alerted <- stats })

	et.Track(context.Background(), errors.New("book desync"), "critical", nil)

	select {
	case stats := <-alerted:
		if stats.Message != "book desync" {
			t.Errorf("alerted stats.Message = %q, want book desync", stats.Message)
		}
	case <-time.After(time.Second):
		t.Error("critical severity did not trigger an alert on first occurrence")
	}
}

func TestErrorTrackerClearRemovesAllStats(t *testing.T) {
	et := NewErrorTracker()
	defer et.Stop()

	et.Track(context.Background(), errors.New("x"), "low", nil)
	et.Clear()
	if len(et.GetStats()) != 0 {
		t.Errorf("GetStats() after Clear() = %v, want empty", et.GetStats())
	}
}

func TestGetTopErrorsOrdersByCountDescending(t *testing.T) {
	et := NewErrorTracker()
	defer et.Stop()

	rare := errors.New("rare error")
	common := errors.New("common error")
	et.Track(context.Background(), rare, "low", nil)
	et.Track(context.Background(), common, "low", nil)
	et.Track(context.Background(), common, "low", nil)
	et.Track(context.Background(), common, "low", nil)

	top := et.GetTopErrors(1)
	if len(top) != 1 || top[0].Message != common.Error() {
		t.Fatalf("GetTopErrors(1) = %+v, want the common error first", top)
	}
}
