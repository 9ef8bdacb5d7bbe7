// Package scout periodically polls the exchange's 24h ticker REST
// endpoint and ranks symbols by a short-term "hotness" score combining
// volume acceleration and price momentum, feeding the subscription
// manager's promote/demote decisions.
package scout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/epic1st/mexcscanner/logging"
)

const historySpanSec = 300

// PairStat is one scout cycle's verdict for a single symbol.
type PairStat struct {
	Symbol      string
	QuoteVolume float64
	VolDelta5m  float64
	PMDelta5m   float64
	Hotness     float64
}

type sample struct {
	ts    float64
	vol   float64
	price float64
}

// Config controls scout ranking.
type Config struct {
	MinQuoteVolUSD float64
	TopN           int
	// QuoteSuffix, when non-empty, restricts ranked pairs to symbols
	// ending in this suffix; empty disables the filter (the config
	// package defaults it to "USDT"). This is an enrichment
	// beyond the exchange's raw ticker feed: without it a real top_n
	// ranking can promote low-liquidity exotic-quote pairs that the
	// rest of the pipeline's USD-denominated thresholds were never
	// calibrated against.
	QuoteSuffix string
}

// Scout polls restURL's 24hr ticker endpoint and ranks pairs by hotness.
type Scout struct {
	restURL    string
	httpClient *http.Client
	log        *logging.Logger

	mu      sync.Mutex
	history map[string][]sample

	requestCount int
}

// New creates a Scout targeting restURL (e.g. "https://www.mexc.com").
func New(restURL string, log *logging.Logger) *Scout {
	return &Scout{
		restURL:    strings.TrimRight(restURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
		history:    make(map[string][]sample),
	}
}

// tickerItem is decoded loosely (map[string]any) because exchange REST
// APIs are inconsistent about whether numeric fields are JSON numbers or
// numeric strings; firstFloat/firstString tolerate either.
type tickerItem = map[string]any

// Poll issues one REST GET and returns the top Config.TopN pairs by
// descending hotness. On a transient HTTP failure it returns an error;
// the caller (the subscription-refresh loop) is expected to log it and
// retry next interval while keeping the previous symbol set, per the
// scout-failure error class.
func (s *Scout) Poll(ctx context.Context, cfg Config) ([]PairStat, error) {
	pollID := uuid.NewString()
	s.requestCount++

	url := s.restURL + "/api/v3/ticker/24hr"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("scout: build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scout: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("scout: server error %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("scout: client error %d", resp.StatusCode)
	}

	var items []tickerItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("scout: decode response: %w", err)
	}

	now := float64(time.Now().UnixNano()) / 1e9
	stats := s.rank(now, items, cfg)

	s.log.Debug("scout poll complete", logging.Component("scout"), logging.String("poll_id", pollID), logging.Int("pairs", len(stats)))
	return stats, nil
}

func (s *Scout) rank(now float64, items []tickerItem, cfg Config) []PairStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make([]PairStat, 0, len(items))
	for _, item := range items {
		symbol, ok := firstString(item, "symbol", "s")
		if !ok || symbol == "" {
			continue
		}
		if cfg.QuoteSuffix != "" && !strings.HasSuffix(symbol, cfg.QuoteSuffix) {
			continue
		}
		vol := firstFloat(item, "quoteVolume", "quote_volume", "q", "volume", "v")
		price := firstFloat(item, "lastPrice", "last", "c", "close")

		hist := s.history[symbol]
		hist = append(hist, sample{ts: now, vol: vol, price: price})
		hist = trimHistory(hist, now)
		s.history[symbol] = hist

		var volDelta, pmDelta, prevPrice float64
		if len(hist) >= 2 {
			volDelta = vol - hist[0].vol
			prevPrice = hist[0].price
		} else {
			prevPrice = price
		}
		if prevPrice > 0 {
			pmDelta = (price - prevPrice) / prevPrice
		}

		if vol < cfg.MinQuoteVolUSD {
			continue
		}

		hotness := volDelta + 50*pmDelta
		stats = append(stats, PairStat{
			Symbol:      symbol,
			QuoteVolume: vol,
			VolDelta5m:  volDelta,
			PMDelta5m:   pmDelta,
			Hotness:     hotness,
		})
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Hotness > stats[j].Hotness })

	topN := cfg.TopN
	if topN <= 0 || topN > len(stats) {
		topN = len(stats)
	}
	return stats[:topN]
}

func trimHistory(hist []sample, now float64) []sample {
	i := 0
	for i < len(hist) && now-hist[i].ts > historySpanSec {
		i++
	}
	return hist[i:]
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
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
