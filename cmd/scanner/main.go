// Command scanner is the process entrypoint: it loads configuration,
// wires the collector, scout, subscription manager, feature engine, and
// signal sinks into a Scanner, serves /health and /metrics, and runs
// until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/epic1st/mexcscanner/collector"
	"github.com/epic1st/mexcscanner/config"
	"github.com/epic1st/mexcscanner/features"
	"github.com/epic1st/mexcscanner/livefeed"
	"github.com/epic1st/mexcscanner/logging"
	"github.com/epic1st/mexcscanner/model"
	"github.com/epic1st/mexcscanner/monitoring"
	"github.com/epic1st/mexcscanner/scanner"
	"github.com/epic1st/mexcscanner/scout"
	"github.com/epic1st/mexcscanner/signal"
	"github.com/epic1st/mexcscanner/subscription"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.NewLogger(levelFor(cfg.Environment))
	logging.RegisterErrorAlert(func(stats *logging.ErrorStats) {
		log.Error("error class crossed alert threshold", errors.New(stats.Message), logging.Component("main"), logging.String("severity", stats.Severity), logging.Int64("count", stats.Count))
	})

	scorer, err := model.LoadLogisticScorer(cfg.ModelPath, thresholdsFrom(cfg))
	if err != nil {
		logging.TrackError(context.Background(), err, "critical", map[string]interface{}{"class": "fatal"})
		log.Fatal("model file missing or invalid, cannot start", err, logging.Component("main"), logging.String("path", cfg.ModelPath))
	}

	coll := collector.New(cfg.Mexc.WSURL, log)
	coll.OnReconnect(monitoring.RecordReconnect)

	subManager := subscription.New(coll, cfg.Subscriptions.TopN, secondsToDuration(cfg.Subscriptions.LRUTTLSec), log)
	subManager.RequoteCooldown = secondsToDuration(cfg.Subscriptions.RequoteCooldownSec)
	subManager.OnGaugeUpdate(monitoring.SetActiveStreams)
	coll.OnQualityEvict(subManager.NotifyQualityEvicted)

	redisSink, err := connectRedis(cfg, log)
	if err != nil {
		logging.TrackError(context.Background(), err, "critical", map[string]interface{}{"class": "fatal"})
		log.Fatal("redis connection failed, cannot start", err, logging.Component("main"))
	}
	defer redisSink.Close()

	hub := livefeed.NewHub(log)

	scoutClient := scout.New(cfg.Mexc.RESTURL, log)

	sc := scanner.New(coll, scoutClient, subManager, scorer, scanner.Config{
		ProbThreshold: cfg.Scanner.ProbThreshold,
		Thresholds:    thresholdsFrom(cfg),
		PollInterval:  secondsToDuration(cfg.Subscriptions.PollInterval),
		ScoutConfig: scout.Config{
			MinQuoteVolUSD: cfg.Scout.MinQuoteVolUSD,
			TopN:           cfg.Scout.TopN,
			QuoteSuffix:    cfg.Scout.QuoteSuffix,
		},
	}, log, redisSink, hub)

	registerHealthChecks(coll, sc, redisSink)

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopHub := make(chan struct{})
	go hub.Run(stopHub)

	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- runHTTPServer(ctx, hub, log)
	}()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- sc.Run(ctx, initialSymbols(cfg))
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received", logging.Component("main"))
	case err := <-runErrCh:
		if err != nil {
			log.Error("scanner run failed", err, logging.Component("main"))
		}
		stop()
	case err := <-httpErrCh:
		if err != nil {
			log.Error("http server error", err, logging.Component("main"))
		}
		stop()
	}

	sc.Stop()
	close(stopHub)
	if err := coll.Close(); err != nil {
		log.Warn("collector close error", logging.Component("main"), logging.String("error", err.Error()))
	}
	log.Info("scanner stopped", logging.Component("main"))
}

func runHTTPServer(ctx context.Context, hub *livefeed.Hub, log *logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	mux.HandleFunc("/health", monitoring.GetHealthChecker().HTTPHealthHandler())
	mux.HandleFunc("/ready", monitoring.GetHealthChecker().HTTPReadinessHandler())
	mux.HandleFunc("/livefeed", hub.HTTPHandler)

	httpServer := &http.Server{
		Addr:         addrFromEnv(),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", logging.Component("main"), logging.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown error", logging.Component("main"), logging.String("error", err.Error()))
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func connectRedis(cfg *config.Config, log *logging.Logger) (*signal.RedisPublisher, error) {
	pub := signal.NewRedisPublisher(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel, log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pub.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return pub, nil
}

func thresholdsFrom(cfg *config.Config) features.Thresholds {
	th := features.NewThresholds()
	th.VSR = cfg.Scanner.Metrics.VSR
	th.PM = cfg.Scanner.Metrics.PM
	th.OBI = cfg.Scanner.Metrics.OBI
	if cfg.Scanner.Metrics.Spread > 0 {
		th.Spread = cfg.Scanner.Metrics.Spread
	}
	th.ListingAgeMin = cfg.Scanner.Metrics.ListingAgeMin
	return th
}

func initialSymbols(cfg *config.Config) []string {
	if v := os.Getenv("SCANNER_INITIAL_SYMBOLS"); v != "" {
		return splitNonEmpty(v, ',')
	}
	return nil
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

func addrFromEnv() string {
	if v := os.Getenv("METRICS_LISTEN_ADDR"); v != "" {
		return v
	}
	return ":9090"
}

// registerHealthChecks wires the /health and /ready endpoints to the
// collector's connection pool, the scout poll loop, and the Redis sink,
// plus the teacher's generic memory/goroutine samplers.
func registerHealthChecks(coll *collector.Client, sc *scanner.Scanner, redisSink *signal.RedisPublisher) {
	hc := monitoring.GetHealthChecker()

	hc.RegisterCheck("websocket", func() monitoring.ComponentHealth {
		active := coll.ActiveStreams()
		status := monitoring.StatusHealthy
		message := "streams active"
		if active == 0 {
			status = monitoring.StatusDegraded
			message = "no active streams"
		}
		return monitoring.ComponentHealth{
			Status:      status,
			Message:     message,
			LastChecked: time.Now(),
			Metadata:    map[string]interface{}{"active_streams": active},
		}
	})

	hc.RegisterCheck("scout", func() monitoring.ComponentHealth {
		ok, lastAt := sc.ScoutHealth()
		status := monitoring.StatusHealthy
		message := "polling"
		if !ok {
			status = monitoring.StatusUnhealthy
			message = "last poll failed"
		}
		return monitoring.ComponentHealth{
			Status:      status,
			Message:     message,
			LastChecked: lastAt,
		}
	})

	hc.RegisterCheck("redis", func() monitoring.ComponentHealth {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		status := monitoring.StatusHealthy
		message := "ok"
		if err := redisSink.Ping(ctx); err != nil {
			status = monitoring.StatusUnhealthy
			message = err.Error()
		}
		return monitoring.ComponentHealth{Status: status, Message: message, LastChecked: time.Now()}
	})

	hc.RegisterCheck("memory", monitoring.MemoryHealthCheck(80))
	hc.RegisterCheck("goroutines", monitoring.GoroutineHealthCheck(10000))
}

func levelFor(environment string) logging.LogLevel {
	if environment == "production" {
		return logging.INFO
	}
	return logging.DEBUG
}
