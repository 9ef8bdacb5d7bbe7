// Package subscription drives the Collector's subscribe/unsubscribe
// calls from the scout's ranked output, applying capacity (top_n), TTL,
// and true-LRU eviction policy.
package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/epic1st/mexcscanner/logging"
)

// Subscriber is the subset of collector.Client the manager drives.
type Subscriber interface {
	Subscribe(ctx context.Context, symbol string) error
	Unsubscribe(symbol string) error
}

// Manager maintains active_pairs: symbol -> last-seen timestamp, applying
// top_n capacity and lru_ttl_sec TTL eviction on every ensure_subscribed
// call, plus a post-quality-eviction requote cool-down (an extension
// beyond the bare LRU/TTL policy — see Manager.RequoteCooldown).
type Manager struct {
	client Subscriber
	topN   int
	ttl    time.Duration
	log    *logging.Logger

	// RequoteCooldown prevents a symbol the quality gate just evicted
	// from being immediately re-subscribed because the scout still
	// ranks it hot, which would otherwise oscillate subscribe/unsubscribe
	// every cycle. Zero disables the cooldown.
	RequoteCooldown time.Duration

	mu           sync.Mutex
	activePairs  map[string]time.Time
	qualityEvict map[string]time.Time

	onGaugeUpdate func(n int) // wired to monitoring.SetActiveStreams
}

// New creates a Manager with the given capacity and TTL.
func New(client Subscriber, topN int, ttl time.Duration, log *logging.Logger) *Manager {
	return &Manager{
		client:       client,
		topN:         topN,
		ttl:          ttl,
		log:          log,
		activePairs:  make(map[string]time.Time),
		qualityEvict: make(map[string]time.Time),
	}
}

// OnGaugeUpdate registers a callback invoked with 2*|active_pairs| after
// every EnsureSubscribed call (the active-streams Observable gauge).
func (m *Manager) OnGaugeUpdate(fn func(n int)) { m.onGaugeUpdate = fn }

// NotifyQualityEvicted records that the collector's quality gate just
// unsubscribed symbol, starting its requote cool-down.
func (m *Manager) NotifyQualityEvicted(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.activePairs, symbol)
	m.qualityEvict[symbol] = time.Now()
}

// EnsureSubscribed applies pairs as the new "seen" set: each is refreshed
// (or newly subscribed), then any pair whose last-seen timestamp exceeds
// the TTL is unsubscribed, then the table is trimmed to top_n by evicting
// the least-recently-seen entries.
func (m *Manager) EnsureSubscribed(ctx context.Context, pairs []string) error {
	now := time.Now()

	m.mu.Lock()
	for _, p := range pairs {
		if until, onCooldown := m.qualityEvict[p]; onCooldown && m.RequoteCooldown > 0 {
			if now.Sub(until) < m.RequoteCooldown {
				continue
			}
			delete(m.qualityEvict, p)
		}
		_, already := m.activePairs[p]
		m.activePairs[p] = now
		if !already {
			m.mu.Unlock()
			if err := m.client.Subscribe(ctx, p); err != nil {
				m.log.Error("subscribe failed", err, logging.Component("subscription"), logging.Symbol(p))
			}
			m.mu.Lock()
		}
	}

	var expired []string
	for symbol, ts := range m.activePairs {
		if now.Sub(ts) > m.ttl {
			expired = append(expired, symbol)
		}
	}
	for _, symbol := range expired {
		delete(m.activePairs, symbol)
		m.mu.Unlock()
		if err := m.client.Unsubscribe(symbol); err != nil {
			m.log.Error("ttl unsubscribe failed", err, logging.Component("subscription"), logging.Symbol(symbol))
		}
		m.mu.Lock()
	}

	for len(m.activePairs) > m.topN {
		oldest, oldestTs := "", now.Add(time.Hour)
		for symbol, ts := range m.activePairs {
			if ts.Before(oldestTs) {
				oldest, oldestTs = symbol, ts
			}
		}
		if oldest == "" {
			break
		}
		delete(m.activePairs, oldest)
		m.mu.Unlock()
		if err := m.client.Unsubscribe(oldest); err != nil {
			m.log.Error("lru unsubscribe failed", err, logging.Component("subscription"), logging.Symbol(oldest))
		}
		m.mu.Lock()
	}

	count := len(m.activePairs)
	m.mu.Unlock()

	if m.onGaugeUpdate != nil {
		m.onGaugeUpdate(count * 2)
	}
	return nil
}

// ActivePairs returns a snapshot of the current symbol set.
func (m *Manager) ActivePairs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.activePairs))
	for s := range m.activePairs {
		out = append(out, s)
	}
	return out
}
