// Package collector owns the pool of exchange WebSocket connections: it
// multiplexes symbol subscriptions across capacity-limited sockets under
// a global send-rate limit, reconstructs an order-book replica per
// symbol from the depth-diff stream, and fuses kline/depth updates into
// Ticks for the feature engine.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/epic1st/mexcscanner/logging"
	"github.com/epic1st/mexcscanner/orderbook"
	"github.com/epic1st/mexcscanner/window"
)

const (
	// MaxStreamsPerConn is the per-connection cap on active kline+depth streams.
	MaxStreamsPerConn = 30
	// MaxMsgPerSec is the global outbound control-message rate limit.
	MaxMsgPerSec = 100

	qualitySpreadLimit = 0.015
	qualityMinVolume   = 20000.0
	volumeWindowSec    = 300

	minBackoff = 1 * time.Second
	maxBackoff = 60 * time.Second
)

// Tick is a combined kline+depth snapshot for one symbol, produced once
// both caches hold data for it.
type Tick struct {
	Symbol string
	Kline  map[string]any
	Depth  map[string]any
	Ts     float64
}

// Dialer abstracts websocket.DefaultDialer so tests can substitute a fake.
type Dialer interface {
	Dial(urlStr string, header map[string][]string) (WSConn, error)
}

// WSConn is the subset of *websocket.Conn the collector depends on.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(urlStr string, _ map[string][]string) (WSConn, error) {
	c, _, err := websocket.DefaultDialer.Dial(urlStr, nil)
	return c, err
}

type conn struct {
	id      string
	idx     int
	ws      WSConn
	symbols map[string]bool
	mu      sync.Mutex // guards ws and symbols during reconnect/subscribe
}

// Client is the multiplexed WebSocket collector. All exported methods are
// safe for concurrent use.
type Client struct {
	wsURL  string
	dialer Dialer
	log    *logging.Logger

	mu          sync.Mutex
	conns       []*conn
	streamCount []int
	symbolConn  map[string]int

	sendMu   sync.Mutex
	lastSend time.Time

	stateMu    sync.Mutex
	klineCache map[string]map[string]any
	depthCache map[string]map[string]any
	books      map[string]*orderbook.Replica
	volWindows map[string]*window.RollingWindow

	reconnects   func()        // set via OnReconnect; cmd/scanner wires it to monitoring.RecordReconnect
	qualityEvict func(string) // set via OnQualityEvict; cmd/scanner wires it to subscription.Manager.NotifyQualityEvicted

	clock func() float64 // test hook; defaults to monotonic seconds
	start time.Time

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a Client that will dial wsURL. log must not be nil.
func New(wsURL string, log *logging.Logger) *Client {
	return &Client{
		wsURL:      wsURL,
		dialer:     gorillaDialer{},
		log:        log,
		symbolConn: make(map[string]int),
		klineCache: make(map[string]map[string]any),
		depthCache: make(map[string]map[string]any),
		books:      make(map[string]*orderbook.Replica),
		volWindows: make(map[string]*window.RollingWindow),
		start:      time.Now(),
	}
}

// OnReconnect registers a callback invoked every time a connection
// reconnects (used to drive the Observable reconnect counter).
func (c *Client) OnReconnect(fn func()) { c.reconnects = fn }

// OnQualityEvict registers a callback invoked with a symbol right before
// the quality gate unsubscribes it, so the subscription manager can start
// that symbol's requote cool-down.
func (c *Client) OnQualityEvict(fn func(symbol string)) { c.qualityEvict = fn }

func (c *Client) now() float64 {
	if c.clock != nil {
		return c.clock()
	}
	return float64(time.Since(c.start)) / float64(time.Second)
}

// Now returns the collector's loop-clock reading (seconds since the
// collector was constructed), the same basis stamped onto every Tick.
// Callers measuring pipeline latency must diff against this, not
// wall-clock time, since the two clocks are not comparable.
func (c *Client) Now() float64 { return c.now() }

// ActiveStreams returns the sum of active stream counts across all connections.
func (c *Client) ActiveStreams() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.streamCount {
		total += n
	}
	return total
}

// Connect partitions symbols into groups of MaxStreamsPerConn/2, opens one
// connection per group, subscribes it, and spawns its reader.
func (c *Client) Connect(ctx context.Context, symbols []string) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	seen := make(map[string]bool)
	unique := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if !seen[s] {
			seen[s] = true
			unique = append(unique, s)
		}
	}

	groupSize := MaxStreamsPerConn / 2
	for i := 0; i < len(unique); i += groupSize {
		end := i + groupSize
		if end > len(unique) {
			end = len(unique)
		}
		group := unique[i:end]
		if err := c.openConn(ctx, group); err != nil {
			return fmt.Errorf("collector: connect group %d: %w", i/groupSize, err)
		}
	}
	c.log.Info("all websocket connections established", logging.Component("collector"), logging.Int("connections", len(c.conns)), logging.Int("symbols", len(unique)))
	return nil
}

func (c *Client) openConn(ctx context.Context, symbols []string) error {
	c.mu.Lock()
	idx := len(c.conns)
	c.mu.Unlock()

	ws, err := c.dialer.Dial(c.wsURL, nil)
	if err != nil {
		return err
	}

	cn := &conn{id: uuid.NewString(), idx: idx, ws: ws, symbols: make(map[string]bool)}
	for _, s := range symbols {
		cn.symbols[s] = true
	}

	c.mu.Lock()
	c.conns = append(c.conns, cn)
	c.streamCount = append(c.streamCount, len(symbols)*2)
	for _, s := range symbols {
		c.symbolConn[s] = idx
	}
	c.mu.Unlock()

	if err := c.sendSubscription(idx, "SUBSCRIPTION", symbols); err != nil {
		return err
	}

	c.wg.Add(1)
	go c.readLoop(ctx, cn)
	return nil
}

func (c *Client) sendSubscription(connIdx int, method string, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	params := make([]string, 0, len(symbols)*2)
	for _, s := range symbols {
		params = append(params, s+"@kline_1s", s+"@depth.diff")
	}
	return c.throttledSend(connIdx, map[string]any{
		"method": method,
		"params": params,
		"id":     connIdx,
	})
}

// throttledSend serializes all outbound sends across every connection
// behind one mutex, spacing them on a single global clock so no more
// than MaxMsgPerSec are sent across the whole connection pool, not per
// connection.
func (c *Client) throttledSend(connIdx int, msg map[string]any) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	minGap := time.Second / time.Duration(MaxMsgPerSec)
	if elapsed := time.Since(c.lastSend); elapsed < minGap {
		time.Sleep(minGap - elapsed)
	}

	c.mu.Lock()
	if connIdx >= len(c.conns) {
		c.mu.Unlock()
		return fmt.Errorf("collector: no connection at index %d", connIdx)
	}
	cn := c.conns[connIdx]
	c.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	cn.mu.Lock()
	err = cn.ws.WriteMessage(websocket.TextMessage, data)
	cn.mu.Unlock()
	if err != nil {
		return err
	}
	c.lastSend = time.Now()
	return nil
}

// Subscribe adds symbol to the first connection with spare capacity, or
// opens a new connection if none has room. A symbol already subscribed
// is a no-op.
func (c *Client) Subscribe(ctx context.Context, symbol string) error {
	c.mu.Lock()
	if _, ok := c.symbolConn[symbol]; ok {
		c.mu.Unlock()
		return nil
	}
	for idx, n := range c.streamCount {
		if n+2 <= MaxStreamsPerConn {
			c.streamCount[idx] += 2
			c.symbolConn[symbol] = idx
			cn := c.conns[idx]
			c.mu.Unlock()

			cn.mu.Lock()
			cn.symbols[symbol] = true
			cn.mu.Unlock()

			c.resetBook(symbol)
			c.log.Info("subscribing on existing connection", logging.Component("collector"), logging.Symbol(symbol), logging.Int("conn_idx", idx))
			return c.sendSubscription(idx, "SUBSCRIPTION", []string{symbol})
		}
	}
	c.mu.Unlock()

	c.log.Info("opening new connection for symbol", logging.Component("collector"), logging.Symbol(symbol))
	c.resetBook(symbol)
	return c.openConn(ctx, []string{symbol})
}

func (c *Client) resetBook(symbol string) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if book, ok := c.books[symbol]; ok {
		book.Reset()
	}
}

// Unsubscribe removes symbol from its connection and purges all
// per-symbol state (kline cache, depth cache, book, volume window).
func (c *Client) Unsubscribe(symbol string) error {
	c.mu.Lock()
	idx, ok := c.symbolConn[symbol]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.symbolConn, symbol)
	c.streamCount[idx] -= 2
	cn := c.conns[idx]
	c.mu.Unlock()

	cn.mu.Lock()
	delete(cn.symbols, symbol)
	cn.mu.Unlock()

	c.stateMu.Lock()
	delete(c.klineCache, symbol)
	delete(c.depthCache, symbol)
	delete(c.books, symbol)
	delete(c.volWindows, symbol)
	c.stateMu.Unlock()

	c.log.Info("unsubscribing", logging.Component("collector"), logging.Symbol(symbol), logging.Int("conn_idx", idx))
	return c.sendSubscription(idx, "UNSUBSCRIPTION", []string{symbol})
}

func (c *Client) readLoop(ctx context.Context, cn *conn) {
	defer c.wg.Done()
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cn.mu.Lock()
		ws := cn.ws
		cn.mu.Unlock()

		_, data, err := ws.ReadMessage()
		if err != nil {
			if c.reconnects != nil {
				c.reconnects()
			}
			logging.TrackError(ctx, err, "low", map[string]interface{}{"class": "transient", "conn_id": cn.id})
			c.log.Warn("connection closed, reconnecting", logging.Component("collector"), logging.String("conn_id", cn.id))
			backoff = c.reconnectLoop(ctx, cn, backoff)
			continue
		}
		backoff = minBackoff

		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.TrackError(ctx, err, "medium", map[string]interface{}{"class": "parse", "conn_id": cn.id})
			c.log.Warn("dropping malformed frame", logging.Component("collector"), logging.String("conn_id", cn.id))
			continue
		}
		c.handleMessage(ctx, msg)
	}
}

func (c *Client) reconnectLoop(ctx context.Context, cn *conn, backoff time.Duration) time.Duration {
	for {
		select {
		case <-ctx.Done():
			return backoff
		case <-time.After(backoff):
		}

		ws, err := c.dialer.Dial(c.wsURL, nil)
		if err != nil {
			logging.TrackError(ctx, err, "low", map[string]interface{}{"class": "transient", "conn_id": cn.id})
			c.log.Error("reconnect failed", err, logging.Component("collector"), logging.String("conn_id", cn.id))
			backoff = doubleBackoff(backoff)
			continue
		}

		cn.mu.Lock()
		cn.ws = ws
		symbols := make([]string, 0, len(cn.symbols))
		for s := range cn.symbols {
			symbols = append(symbols, s)
		}
		cn.mu.Unlock()

		if err := c.sendSubscription(cn.idx, "SUBSCRIPTION", symbols); err != nil {
			logging.TrackError(ctx, err, "low", map[string]interface{}{"class": "transient", "conn_id": cn.id})
			c.log.Error("resubscribe after reconnect failed", err, logging.Component("collector"), logging.String("conn_id", cn.id))
			backoff = doubleBackoff(backoff)
			continue
		}
		c.log.Info("reconnected", logging.Component("collector"), logging.String("conn_id", cn.id))
		return minBackoff
	}
}

func doubleBackoff(b time.Duration) time.Duration {
	b *= 2
	if b > maxBackoff {
		return maxBackoff
	}
	return b
}

func (c *Client) handleMessage(ctx context.Context, msg map[string]any) {
	stream, _ := firstString(msg, "stream", "channel")
	if stream == "" {
		return
	}
	data, ok := msg["data"].(map[string]any)
	if !ok {
		data = msg
	}
	symbol, ok := firstString(data, "symbol", "s")
	if !ok || symbol == "" {
		return
	}

	switch {
	case containsSubstr(stream, "kline"):
		c.stateMu.Lock()
		c.klineCache[symbol] = data
		c.stateMu.Unlock()
		c.updateKline(symbol, data)
		c.checkQuality(ctx, symbol)
	case containsSubstr(stream, "depth"):
		c.stateMu.Lock()
		c.depthCache[symbol] = data
		c.stateMu.Unlock()
		c.updateDepth(symbol, data)
		c.checkQuality(ctx, symbol)
	}
}

func (c *Client) bookFor(symbol string) *orderbook.Replica {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	b, ok := c.books[symbol]
	if !ok {
		b = orderbook.NewReplica()
		c.books[symbol] = b
	}
	return b
}

func (c *Client) updateDepth(symbol string, data map[string]any) {
	book := c.bookFor(symbol)
	bids := parseLevels(data, "b", "bids")
	asks := parseLevels(data, "a", "asks")
	book.ApplyBids(bids)
	book.ApplyAsks(asks)
}

func (c *Client) updateKline(symbol string, data map[string]any) {
	vol := firstFloat(data, "quoteVol", "q", "quote_volume", "v")

	c.stateMu.Lock()
	w, ok := c.volWindows[symbol]
	if !ok {
		w = window.New(volumeWindowSec, window.Scalar(0))
		c.volWindows[symbol] = w
	}
	c.stateMu.Unlock()

	w.Append(c.now(), window.Scalar(vol))
}

func (c *Client) checkQuality(ctx context.Context, symbol string) {
	book := c.bookFor(symbol)
	bid, ask, ok := book.Best()
	if !ok {
		return
	}
	mid := (bid.Price + ask.Price) / 2
	if mid == 0 {
		return
	}
	spread := (ask.Price - bid.Price) / mid

	c.stateMu.Lock()
	w := c.volWindows[symbol]
	c.stateMu.Unlock()

	volume := 0.0
	if w != nil {
		volume = float64(w.Sum().(window.Scalar))
	}

	if spread > qualitySpreadLimit || volume < qualityMinVolume {
		logging.TrackError(ctx, fmt.Errorf("quality failure: spread=%.4f volume=%.2f", spread, volume), "low", map[string]interface{}{"class": "quality", "symbol": symbol})
		c.log.Info("dropping symbol due to data quality", logging.Component("collector"), logging.Symbol(symbol), logging.Float64("spread", spread), logging.Float64("volume", volume))
		if c.qualityEvict != nil {
			c.qualityEvict(symbol)
		}
		if err := c.Unsubscribe(symbol); err != nil {
			c.log.Error("quality-driven unsubscribe failed", err, logging.Component("collector"), logging.Symbol(symbol))
		}
	}
}

// GetBest returns the best bid/ask for symbol.
func (c *Client) GetBest(symbol string) (bid, ask orderbook.Level, ok bool) {
	return c.bookFor(symbol).Best()
}

// GetCumDepth returns the cumulative depth within 0.1% of mid on each side.
func (c *Client) GetCumDepth(symbol string) (bidDepth, askDepth float64, ok bool) {
	return c.bookFor(symbol).CumDepth()
}

// KlineAndDepth returns the cached kline and depth payloads for symbol, if both are present.
func (c *Client) KlineAndDepth(symbol string) (kline, depth map[string]any, ok bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	kl, hasKl := c.klineCache[symbol]
	dp, hasDp := c.depthCache[symbol]
	return kl, dp, hasKl && hasDp
}

// TakeAndClear pops and clears the cached kline/depth for symbol atomically.
func (c *Client) TakeAndClear(symbol string) (kline, depth map[string]any, ok bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	kl, hasKl := c.klineCache[symbol]
	dp, hasDp := c.depthCache[symbol]
	if !hasKl || !hasDp {
		return nil, nil, false
	}
	delete(c.klineCache, symbol)
	delete(c.depthCache, symbol)
	return kl, dp, true
}

// ReadySymbols returns symbols whose kline and depth caches are both currently populated.
func (c *Client) ReadySymbols() []string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	out := make([]string, 0)
	for sym := range c.klineCache {
		if _, ok := c.depthCache[sym]; ok {
			out = append(out, sym)
		}
	}
	return out
}

// Close tears down every connection and waits for reader goroutines to exit.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	conns := append([]*conn(nil), c.conns...)
	c.mu.Unlock()
	for _, cn := range conns {
		cn.mu.Lock()
		_ = cn.ws.Close()
		cn.mu.Unlock()
	}
	c.wg.Wait()
	return nil
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

func containsSubstr(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// parseLevels reads a list of [price, qty] pairs from either of two
// alternative keys, tolerating both numeric and string-encoded values.
func parseLevels(data map[string]any, keys ...string) [][2]float64 {
	var raw any
	for _, k := range keys {
		if v, ok := data[k]; ok {
			raw = v
			break
		}
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([][2]float64, 0, len(list))
	for _, item := range list {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		price := toFloat(pair[0])
		qty := toFloat(pair[1])
		if math.IsNaN(price) || math.IsNaN(qty) {
			continue
		}
		out = append(out, [2]float64{price, qty})
	}
	return out
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		var f float64
		if _, err := fmt.Sscanf(t, "%g", &f); err == nil {
			return f
		}
	}
	return math.NaN()
}
