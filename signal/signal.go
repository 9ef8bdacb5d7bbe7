// Package signal defines the emission boundary between the scanner and
// its external consumers (the alerting front-end, the persistence
// layer) — both deliberately out of this repo's scope, reached only
// through the Sink interface and, concretely, a Redis Pub/Sub publisher.
package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/epic1st/mexcscanner/features"
	"github.com/epic1st/mexcscanner/logging"
)

// Signal is the emitted tuple: a feature vector that crossed the
// candidate filter and the probability/timestamp it crossed at.
type Signal struct {
	Symbol      string  `json:"symbol"`
	VSR         float64 `json:"vsr"`
	PM          float64 `json:"pm"`
	OBI         float64 `json:"obi"`
	Spread      float64 `json:"spread"`
	Probability float64 `json:"probability"`
	OriginTS    float64 `json:"origin_ts"`
}

// FromFeatureVector builds a Signal from a FeatureVector, a model
// probability, and the tick's fusion timestamp.
func FromFeatureVector(fv features.FeatureVector, probability, originTS float64) Signal {
	return Signal{
		Symbol:      fv.Symbol,
		VSR:         fv.VSR,
		PM:          fv.PM,
		OBI:         fv.OBI,
		Spread:      fv.Spread,
		Probability: probability,
		OriginTS:    originTS,
	}
}

// Sink is the boundary interface emitted signals cross into external
// collaborators. The scanner core never assumes what's on the other
// side — alerting, persistence, both, or neither.
type Sink interface {
	Publish(ctx context.Context, s Signal) error
}

// RedisPublisher fans signals out over a Redis Pub/Sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     *logging.Logger
}

// NewRedisPublisher creates a publisher against addr, publishing to channel.
func NewRedisPublisher(addr, password string, db int, channel string, log *logging.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		channel: channel,
		log:     log,
	}
}

// Ping verifies connectivity; call once at startup so a misconfigured
// Redis address surfaces as a fatal configuration error rather than a
// silent publish failure later.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Publish JSON-encodes s and publishes it to the configured channel.
func (p *RedisPublisher) Publish(ctx context.Context, s Signal) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("signal: marshal: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.log.Error("redis publish failed", err, logging.Component("signal"), logging.Symbol(s.Symbol))
		return err
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
