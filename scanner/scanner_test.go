package scanner

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/epic1st/mexcscanner/collector"
	"github.com/epic1st/mexcscanner/features"
	"github.com/epic1st/mexcscanner/logging"
	"github.com/epic1st/mexcscanner/model"
	"github.com/epic1st/mexcscanner/scout"
	"github.com/epic1st/mexcscanner/signal"
	"github.com/epic1st/mexcscanner/subscription"
)

type fakeSink struct {
	mu      sync.Mutex
	signals []signal.Signal
}

func (f *fakeSink) Publish(_ context.Context, s signal.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, s)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signals)
}

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.FATAL, io.Discard)
}

func newTestScanner(sink *fakeSink) *Scanner {
	coll := collector.New("ws://unused.invalid", testLogger())
	scoutClient := scout.New("http://unused.invalid", testLogger())
	subs := subscription.New(coll, 10, 0, testLogger())

	th := features.Thresholds{VSR: 2, PM: 0.02, OBI: -1, Spread: 0.02, ListingAgeMin: 0}
	scorer := model.NewLogisticScorer(model.Weights{
		Intercept: -1,
		Coefficients: map[string]float64{
			"vsr": 0.1,
			"pm":  0.05,
			"obi": 0,
		},
	}, th)

	return New(coll, scoutClient, subs, scorer, Config{
		ProbThreshold: 0.6,
		Thresholds:    th,
	}, testLogger(), sink)
}

// Seeded scenario 6: drive the engine with a full 6h baseline of steady
// one-second ticks for a single symbol, then one burst tick with a 10%
// price jump at the same volume. The baseline keeps the 6h median
// volume flat so the burst clears every threshold and exactly one
// signal crosses the 0.6 probability gate.
func TestHandleTickEmitsExactlyOneSignal(t *testing.T) {
	sink := &fakeSink{}
	sc := newTestScanner(sink)
	ctx := context.Background()

	const baseVol = 10.0
	const basePrice = 100.0

	for ts := 0.0; ts < vol6hHorizonForTest; ts++ {
		tick := collector.Tick{
			Symbol: "HOTUSDT",
			Kline:  map[string]any{"c": basePrice, "quoteVol": baseVol},
			Ts:     ts,
		}
		sc.handleTick(ctx, tick)
	}
	if sink.count() != 0 {
		t.Fatalf("signals emitted during flat baseline = %d, want 0", sink.count())
	}

	burst := collector.Tick{
		Symbol: "HOTUSDT",
		Kline:  map[string]any{"c": 110.0, "quoteVol": baseVol},
		Ts:     vol6hHorizonForTest,
	}
	sc.handleTick(ctx, burst)

	if sink.count() != 1 {
		t.Fatalf("signals emitted after burst = %d, want exactly 1", sink.count())
	}
	got := sink.signals[0]
	if got.Symbol != "HOTUSDT" {
		t.Errorf("signal.Symbol = %q, want HOTUSDT", got.Symbol)
	}
	if got.Probability <= 0.6 {
		t.Errorf("signal.Probability = %v, want > 0.6", got.Probability)
	}
}

func TestHandleTickSkipsWhenNotReady(t *testing.T) {
	sink := &fakeSink{}
	sc := newTestScanner(sink)

	sc.handleTick(context.Background(), collector.Tick{
		Symbol: "COLDUSDT",
		Kline:  map[string]any{"c": 100.0, "quoteVol": 1000000.0},
		Ts:     0,
	})

	if sink.count() != 0 {
		t.Errorf("signals emitted from a single tick = %d, want 0 (windows never span their horizon)", sink.count())
	}
}

func TestHandleTickSkipsWhenBelowProbabilityThreshold(t *testing.T) {
	sink := &fakeSink{}
	sc := newTestScanner(sink)
	sc.scorer = zeroScorer{}
	ctx := context.Background()

	for ts := 0.0; ts < vol6hHorizonForTest; ts++ {
		sc.handleTick(ctx, collector.Tick{
			Symbol: "FLATUSDT",
			Kline:  map[string]any{"c": 100.0, "quoteVol": 10.0},
			Ts:     ts,
		})
	}
	sc.handleTick(ctx, collector.Tick{
		Symbol: "FLATUSDT",
		Kline:  map[string]any{"c": 110.0, "quoteVol": 10.0},
		Ts:     vol6hHorizonForTest,
	})

	if sink.count() != 0 {
		t.Errorf("signals emitted = %d, want 0 when the scorer always returns 0", sink.count())
	}
}

type zeroScorer struct{}

func (zeroScorer) Predict(features.FeatureVector) float64 { return 0 }

const vol6hHorizonForTest = 21600
