// Package live serves the websocket control and visualisation channel used by
// the karaoke front end, together with the health and metrics endpoints.
//
// Clients send JSON requests of the form {"action": ..., "payload": ...} and
// receive typed JSON replies. The application calls [Server.Broadcast] from
// its UI loop to push the current engine state to every connected client.
//
//	GET /ws       websocket control channel
//	GET /metrics  Prometheus scrape endpoint
//	GET /healthz  liveness (when a health handler is configured)
//	GET /readyz   readiness (when a health handler is configured)
package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/vocalbooth/internal/engine"
	"github.com/MrWong99/vocalbooth/internal/health"
	"github.com/MrWong99/vocalbooth/internal/observe"
	"github.com/MrWong99/vocalbooth/internal/params"
)

const (
	// sendBuffer is the number of outgoing messages queued per client.
	// Broadcasts to a client whose queue is full are dropped.
	sendBuffer = 8

	writeTimeout = 2 * time.Second

	// readLimit caps the size of a single client message.
	readLimit = 64 << 10

	// paramSource labels parameter updates made over the websocket.
	paramSource = "websocket"
)

// SnapshotSource provides the latest engine state.
type SnapshotSource interface {
	ReadSnapshot(dst *engine.Snapshot)
}

// Sessions loads and stops karaoke sessions on behalf of clients.
type Sessions interface {
	ListSongs() ([]string, error)

	// LoadSong starts a session for the best match of query and returns the
	// resolved song name.
	LoadSong(ctx context.Context, query string) (string, error)

	// StopSession ends the active session and returns the saved recording
	// path, if any.
	StopSession(ctx context.Context) (string, error)
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics records client counts and wraps the routes in
// [observe.Middleware].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth mounts the health probes.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithSessions enables the song and session actions.
func WithSessions(sessions Sessions) Option {
	return func(s *Server) { s.sessions = sessions }
}

// WithMetricsHandler replaces the default promhttp handler on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithOriginPatterns allows browser clients from other origins, e.g.
// "localhost:*". Same-origin requests are always accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = append(s.originPatterns, patterns...) }
}

// Server is the live control server. It is safe for concurrent use.
type Server struct {
	store    *params.Store
	source   SnapshotSource
	sessions Sessions

	metrics        *observe.Metrics
	health         *health.Handler
	metricsHandler http.Handler
	originPatterns []string

	mu      sync.Mutex
	clients map[uuid.UUID]*client

	snapMu sync.Mutex
	snap   engine.Snapshot // reused between state messages
}

// New creates a server that applies control messages to store and reports
// state read from source.
func New(store *params.Store, source SnapshotSource, opts ...Option) *Server {
	s := &Server{
		store:   store,
		source:  source,
		clients: make(map[uuid.UUID]*client),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}
	return s
}

// Handler returns the HTTP handler serving every route of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", s.metricsHandler)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metrics == nil {
		return mux
	}
	return observe.Middleware(s.metrics)(mux)
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Broadcast pushes the current state to every connected client and returns
// the number of clients it was queued for. Slow clients miss updates rather
// than blocking the caller.
func (s *Server) Broadcast() int {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()
	if len(targets) == 0 {
		return 0
	}

	msg, err := s.stateMessage()
	if err != nil {
		return 0
	}
	sent := 0
	for _, c := range targets {
		select {
		case c.send <- msg:
			sent++
		default:
		}
	}
	return sent
}

// client is one websocket connection.
type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// enqueue waits for room in the send queue. It reports false once ctx is
// done, which also happens when the write loop gives up on the connection.
func (c *client) enqueue(ctx context.Context, msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// handleWS upgrades the request and serves the connection until either side
// closes it.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		observe.Logger(r.Context()).Warn("live: websocket upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{id: uuid.New(), conn: conn, send: make(chan []byte, sendBuffer)}
	log := observe.Logger(ctx).With("client", c.id.String())
	s.addClient(ctx, c)
	defer s.removeClient(ctx, c)
	log.Info("live: client connected", "remote", r.RemoteAddr)

	go s.writeLoop(ctx, cancel, c)

	if msg, err := s.stateMessage(); err == nil {
		if !c.enqueue(ctx, msg) {
			return
		}
	}
	if s.sessions != nil && !c.enqueue(ctx, s.songsMessage(ctx)) {
		return
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Info("live: client disconnected")
			default:
				if ctx.Err() == nil {
					log.Warn("live: read failed", "err", err)
				}
			}
			return
		}
		var reply []byte
		if typ != websocket.MessageText {
			reply = errorMessage(errors.New("expected a text message"))
		} else {
			reply = s.dispatch(ctx, data)
		}
		if !c.enqueue(ctx, reply) {
			return
		}
	}
}

// writeLoop serialises writes for one client. A failed write cancels the
// connection context, which ends the read loop.
func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, c *client) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			wcancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) addClient(ctx context.Context, c *client) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.LiveClients.Add(ctx, 1)
	}
}

func (s *Server) removeClient(ctx context.Context, c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.LiveClients.Add(context.WithoutCancel(ctx), -1)
	}
}

// stateMessage encodes the current snapshot and effects.
func (s *Server) stateMessage() ([]byte, error) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.source.ReadSnapshot(&s.snap)
	return json.Marshal(stateReply{
		Type:     "state",
		Snapshot: &s.snap,
		Effects:  s.store.Load().Map(),
	})
}

// ParseOrigins splits a comma-separated origin pattern list.
func ParseOrigins(list string) []string {
	var out []string
	for p := range strings.SplitSeq(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
