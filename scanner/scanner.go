// Package scanner is the orchestrator that wires the collector, fuser,
// feature engine, candidate filter, scoring model, and signal sink into
// one running pipeline, and drives the scout→subscription-manager
// control loop alongside it.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/epic1st/mexcscanner/collector"
	"github.com/epic1st/mexcscanner/features"
	"github.com/epic1st/mexcscanner/logging"
	"github.com/epic1st/mexcscanner/model"
	"github.com/epic1st/mexcscanner/monitoring"
	"github.com/epic1st/mexcscanner/scout"
	"github.com/epic1st/mexcscanner/signal"
	"github.com/epic1st/mexcscanner/subscription"
)

// Config bundles the tunables Scanner needs beyond its collaborators.
type Config struct {
	ProbThreshold float64
	Thresholds    features.Thresholds
	PollInterval  time.Duration
	ScoutConfig   scout.Config
}

// Scanner wires 3→4→5→6 (collector→fuser→features→filter) on the data
// path and 7→8 (scout→subscription manager) on the control path,
// emitting scored signals to every registered Sink.
type Scanner struct {
	collector *collector.Client
	engine    *features.Engine
	scout     *scout.Scout
	subs      *subscription.Manager
	scorer    model.Scorer
	sinks     []signal.Sink
	cfg       Config
	log       *logging.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc

	pollMu     sync.Mutex
	lastPollOK bool
	lastPollAt time.Time
}

// New builds a Scanner from its already-constructed collaborators. The
// caller owns collector/scout/subs lifecycle wiring (e.g. registering
// monitoring hooks) before calling Run.
func New(c *collector.Client, s *scout.Scout, subs *subscription.Manager, scorer model.Scorer, cfg Config, log *logging.Logger, sinks ...signal.Sink) *Scanner {
	return &Scanner{
		collector: c,
		engine:    features.NewEngine(),
		scout:     s,
		subs:      subs,
		scorer:    scorer,
		sinks:     sinks,
		cfg:       cfg,
		log:       log,
	}
}

// Run connects the collector to symbols, spawns the scout polling loop,
// and consumes fused ticks until ctx is cancelled. It blocks until
// teardown completes.
func (sc *Scanner) Run(ctx context.Context, initialSymbols []string) error {
	runCtx, cancel := context.WithCancel(ctx)
	sc.cancel = cancel

	if err := sc.collector.Connect(runCtx, initialSymbols); err != nil {
		return fmt.Errorf("scanner: initial connect: %w", err)
	}

	sc.wg.Add(1)
	go sc.pollLoop(runCtx)

	ticks := sc.collector.YieldTicks(runCtx)
	for {
		select {
		case <-runCtx.Done():
			sc.wg.Wait()
			return nil
		case tick, ok := <-ticks:
			if !ok {
				sc.wg.Wait()
				return nil
			}
			sc.handleTick(runCtx, tick)
		}
	}
}

// handleTick implements Scanner.run() step 3: compute a FeatureVector,
// skip if not ready or not a candidate, score it, and emit a signal if
// the probability crosses threshold.
func (sc *Scanner) handleTick(ctx context.Context, tick collector.Tick) {
	fv := sc.engine.Update(tick, sc.collector)
	if !fv.Ready {
		return
	}
	if !features.IsCandidate(fv, sc.cfg.Thresholds) {
		return
	}

	probability := sc.scorer.Predict(fv)
	if probability < sc.cfg.ProbThreshold {
		return
	}

	sig := signal.FromFeatureVector(fv, probability, tick.Ts)
	monitoring.RecordSignal()
	monitoring.ObservePipelineLatency((sc.collector.Now() - tick.Ts) * 1000)

	for _, sink := range sc.sinks {
		if err := sink.Publish(ctx, sig); err != nil {
			sc.log.Error("signal publish failed", err, logging.Component("scanner"), logging.Symbol(sig.Symbol))
		}
	}
}

// pollLoop is the control-path task: every PollInterval it asks the
// scout for ranked pairs and feeds them into the subscription manager.
// A scout failure is logged and the loop retries next interval with the
// previous symbol set left untouched, per the scout-failure error class.
func (sc *Scanner) pollLoop(ctx context.Context) {
	defer sc.wg.Done()
	ticker := time.NewTicker(sc.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := sc.scout.Poll(ctx, sc.cfg.ScoutConfig)
			if err != nil {
				logging.TrackError(ctx, err, "medium", map[string]interface{}{"class": "scout"})
				sc.log.Warn("scout poll failed, keeping previous symbol set", logging.Component("scanner"), logging.String("error", err.Error()))
				sc.recordPoll(false)
				continue
			}
			sc.recordPoll(true)
			symbols := make([]string, len(stats))
			for i, st := range stats {
				symbols[i] = st.Symbol
			}
			if err := sc.subs.EnsureSubscribed(ctx, symbols); err != nil {
				sc.log.Error("ensure_subscribed failed", err, logging.Component("scanner"))
			}
		}
	}
}

func (sc *Scanner) recordPoll(ok bool) {
	sc.pollMu.Lock()
	defer sc.pollMu.Unlock()
	sc.lastPollOK = ok
	sc.lastPollAt = time.Now()
}

// ScoutHealth reports whether the most recent scout poll succeeded, and
// when it ran. Before the first poll completes it reports ok==true with
// a zero timestamp.
func (sc *Scanner) ScoutHealth() (ok bool, lastAt time.Time) {
	sc.pollMu.Lock()
	defer sc.pollMu.Unlock()
	if sc.lastPollAt.IsZero() {
		return true, time.Time{}
	}
	return sc.lastPollOK, sc.lastPollAt
}

// Stop cancels the run context and returns without waiting; Run returns
// once the polling task has exited.
func (sc *Scanner) Stop() {
	if sc.cancel != nil {
		sc.cancel()
	}
}

