package gateway

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendBufferSize  = 256
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingInterval    = 30 * time.Second
	maxMessageSize  = 4096
	rateLimitWindow = time.Minute
)

// Options configures the gateway's protocol limits.
type Options struct {
	Path                      string
	MaxSubscriptionsPerSocket int
	MaxConnectionsPerIPPerMin int
}

type rateBucket struct {
	count         int
	windowStarted time.Time
}

type conn struct {
	ws     *websocket.Conn
	send   chan []byte
	topics map[string]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func (c *conn) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Gateway routes round state to subscribed sockets. All shared maps are
// guarded by one mutex; fan-out copies the subscriber set before sending so a
// disconnect during broadcast cannot mutate a set mid-iteration.
type Gateway struct {
	opts     Options
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	conns     map[*conn]struct{}
	topicSubs map[string]map[*conn]struct{}
	snapshots map[string]SnapshotEvent
	buckets   map[string]*rateBucket
	lastSweep time.Time
}

// Status is the aggregate view served by the /status endpoint.
type Status struct {
	Clients       int    `json:"clients"`
	Topics        int    `json:"topics"`
	Subscriptions int    `json:"subscriptions"`
	Snapshots     int    `json:"snapshots"`
	Path          string `json:"path"`
}

// New creates a gateway.
func New(opts Options, log zerolog.Logger) *Gateway {
	return &Gateway{
		opts: opts,
		log:  log.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns:     make(map[*conn]struct{}),
		topicSubs: make(map[string]map[*conn]struct{}),
		snapshots: make(map[string]SnapshotEvent),
		buckets:   make(map[string]*rateBucket),
	}
}

// HandleWebSocket upgrades a viewer connection. Sources over the per-IP
// connection-rate cap are refused before the upgrade happens.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)
	if !g.allowConnection(ip) {
		g.log.Warn().Str("ip", ip).Msg("connection rate limit exceeded, refusing upgrade")
		http.Error(w, "connection rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &conn{
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		topics: make(map[string]struct{}),
		done:   make(chan struct{}),
	}

	g.mu.Lock()
	g.conns[c] = struct{}{}
	total := len(g.conns)
	g.mu.Unlock()

	g.log.Debug().Str("ip", ip).Int("clients", total).Msg("viewer connected")

	go g.writePump(c)
	go g.readPump(c)
}

func (g *Gateway) readPump(c *conn) {
	defer func() {
		g.detach(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Debug().Err(err).Msg("viewer read error")
			}
			return
		}
		g.handleSubscribe(c, raw)
	}
}

func (g *Gateway) writePump(c *conn) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleSubscribe processes the one inbound message kind. A malformed message
// earns an error_v1 reply; the connection stays up.
func (g *Gateway) handleSubscribe(c *conn, raw []byte) {
	topic, err := parseSubscribe(raw)
	if err != nil {
		g.sendEvent(c, errorEvent{
			Type:    "error_v1",
			Ts:      time.Now().UnixMilli(),
			Code:    CodeInvalidMessage,
			Message: "expected {\"type\":\"subscribe\",\"topic\":\"round:<id>\"}",
		})
		return
	}

	g.mu.Lock()
	_, already := c.topics[topic]
	if !already && len(c.topics) >= g.opts.MaxSubscriptionsPerSocket {
		g.mu.Unlock()
		g.sendEvent(c, errorEvent{
			Type:    "error_v1",
			Ts:      time.Now().UnixMilli(),
			Code:    CodeTooManySubscriptions,
			Message: "exceeded per-socket subscription limit",
		})
		return
	}
	c.topics[topic] = struct{}{}
	subs := g.topicSubs[topic]
	if subs == nil {
		subs = make(map[*conn]struct{})
		g.topicSubs[topic] = subs
	}
	subs[c] = struct{}{}

	// The ack and the cached snapshot are enqueued before the mutex is
	// released. Once the socket is in topicSubs a concurrent publish may
	// target it, and a live state queued ahead of the older snapshot would
	// reach the viewer out of order. trySend never blocks, so sending under
	// the lock is safe.
	g.sendEvent(c, subscribedEvent{Type: "subscribed_v1", Ts: time.Now().UnixMilli(), Topic: topic})
	if snapshot, ok := g.snapshots[topic]; ok {
		g.sendEvent(c, snapshot)
	}
	g.mu.Unlock()
}

// PublishRoundState fans a fresh state event out to the round's subscribers.
// Snapshots older than the cached one are dropped, as are snapshots equal to
// the cached one in every observable field; both rules bound broadcast volume
// during a fast game loop without ever reordering state for a viewer.
func (g *Gateway) PublishRoundState(ev RoundStateEvent) {
	topic := topicPrefix + ev.RoundID

	g.mu.Lock()
	if cached, ok := g.snapshots[topic]; ok {
		if ev.MoveCount < cached.RoundState.MoveCount {
			g.mu.Unlock()
			return
		}
		if sameObservableState(ev, cached.RoundState) {
			g.mu.Unlock()
			return
		}
	}
	g.snapshots[topic] = SnapshotEvent{
		Type:       "snapshot_v1",
		Ts:         time.Now().UnixMilli(),
		Topic:      topic,
		RoundState: ev,
	}
	targets := g.subscribersLocked(topic)
	g.mu.Unlock()

	g.broadcast(targets, ev)
}

// PublishRoundTransition fans a phase transition out unconditionally;
// transitions are rare and never deduplicated.
func (g *Gateway) PublishRoundTransition(ev RoundTransitionEvent) {
	topic := topicPrefix + ev.RoundID

	g.mu.Lock()
	targets := g.subscribersLocked(topic)
	g.mu.Unlock()

	g.broadcast(targets, ev)
}

// GetStatus reports aggregate gateway counters.
func (g *Gateway) GetStatus() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	subscriptions := 0
	for _, subs := range g.topicSubs {
		subscriptions += len(subs)
	}
	return Status{
		Clients:       len(g.conns),
		Topics:        len(g.topicSubs),
		Subscriptions: subscriptions,
		Snapshots:     len(g.snapshots),
		Path:          g.opts.Path,
	}
}

func (g *Gateway) subscribersLocked(topic string) []*conn {
	subs := g.topicSubs[topic]
	if len(subs) == 0 {
		return nil
	}
	targets := make([]*conn, 0, len(subs))
	for c := range subs {
		targets = append(targets, c)
	}
	return targets
}

func (g *Gateway) broadcast(targets []*conn, event any) {
	if len(targets) == 0 {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		g.log.Error().Err(err).Msg("marshal broadcast event")
		return
	}
	for _, c := range targets {
		g.trySend(c, payload)
	}
}

func (g *Gateway) sendEvent(c *conn, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		g.log.Error().Err(err).Msg("marshal event")
		return
	}
	g.trySend(c, payload)
}

// trySend is best-effort: a slow or dead consumer loses the message rather
// than stalling publication to others.
func (g *Gateway) trySend(c *conn, payload []byte) {
	select {
	case <-c.done:
	case c.send <- payload:
	default:
	}
}

// detach deregisters a socket from every topic it held. A topic left with no
// subscribers is removed from the topic map; its cached snapshot stays so a
// late resubscription to a stale round is still answerable.
func (g *Gateway) detach(c *conn) {
	g.mu.Lock()
	if _, ok := g.conns[c]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.conns, c)
	for topic := range c.topics {
		subs := g.topicSubs[topic]
		if subs == nil {
			continue
		}
		delete(subs, c)
		if len(subs) == 0 {
			delete(g.topicSubs, topic)
		}
	}
	total := len(g.conns)
	g.mu.Unlock()

	c.shutdown()
	g.log.Debug().Int("clients", total).Msg("viewer disconnected")
}

// allowConnection enforces the per-source connection-rate cap over a
// one-minute window; the counter resets when the window elapses. Expired
// buckets are swept at most once per window so the map does not grow with
// one-off sources.
func (g *Gateway) allowConnection(ip string) bool {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if now.Sub(g.lastSweep) > rateLimitWindow {
		for source, bucket := range g.buckets {
			if now.Sub(bucket.windowStarted) > rateLimitWindow {
				delete(g.buckets, source)
			}
		}
		g.lastSweep = now
	}

	bucket := g.buckets[ip]
	if bucket == nil || now.Sub(bucket.windowStarted) > rateLimitWindow {
		g.buckets[ip] = &rateBucket{count: 1, windowStarted: now}
		return true
	}
	bucket.count++
	return bucket.count <= g.opts.MaxConnectionsPerIPPerMin
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
