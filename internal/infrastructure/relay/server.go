package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"borerelay/internal/core/domain"
	"borerelay/internal/core/ports"
	rlog "borerelay/pkg/logger"
	"borerelay/pkg/tracing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Handshake outcomes reported to Metrics.
const (
	HandshakeAccepted         = "accepted"
	HandshakeNotAuthenticated = "not_authenticated"
	HandshakeForbidden        = "forbidden"
	HandshakeFailed           = "failed"
)

// Inbound event outcomes reported to Metrics.
const (
	InboundSync        = "sync"
	InboundBroadcast   = "broadcast"
	InboundRejected    = "rejected"
	InboundUnknown     = "unknown"
	InboundRateLimited = "rate_limited"
	InboundMalformed   = "malformed"
)

type Metrics interface {
	SetConnectedPeers(n int)
	RecordHandshake(outcome string)
	RecordInboundEvent(event, outcome string)
	RecordBroadcast(event string, peers int)
	RecordEviction()
}

type Config struct {
	Path             string
	AllowedOrigins   []string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
	WriteTimeout     time.Duration
	SendBufferSize   int
	MaxMessageSize   int64

	// Zero MessagesPerSecond disables the per-peer inbound limit.
	MessagesPerSecond float64
	Burst             int
}

func DefaultConfig() Config {
	return Config{
		Path:             "/api/socketio",
		AllowedOrigins:   []string{"*"},
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     25 * time.Second,
		PongTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		SendBufferSize:   64,
		MaxMessageSize:   1 << 20,
	}
}

// Status is the body of the socket status endpoint.
type Status struct {
	Status           string    `json:"status"`
	ConnectedClients int       `json:"connectedClients"`
	SocketPath       string    `json:"socketPath"`
	Timestamp        time.Time `json:"timestamp"`
}

// Server relays moderation commands to every authenticated peer. Delivery is
// best effort: there is no outbox, no retry and no replay for peers that
// connect later. The game process reconciles by polling the read endpoints.
type Server struct {
	cfg      Config
	resolver ports.PermissionResolver
	metrics  Metrics
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
	now      func() time.Time

	peers map[string]*peer
	mu    sync.RWMutex

	// serializes fan-out so every peer observes broadcasts in call order
	broadcastMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown bool
}

func NewServer(cfg Config, resolver ports.PermissionResolver, metrics Metrics, logger *zap.SugaredLogger) *Server {
	def := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		cfg.PongTimeout = cfg.PingInterval * 2
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = def.SendBufferSize
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		peers:    make(map[string]*peer),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:      originChecker(cfg.AllowedOrigins),
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	return s
}

func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		set[strings.ToLower(o)] = struct{}{}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			// non-browser clients such as the game server send no Origin
			return true
		}
		_, ok := set[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}

func (s *Server) Path() string { return s.cfg.Path }

// Authenticate resolves token once for a new connection. Only manage-tier
// tokens may connect.
func (s *Server) Authenticate(ctx context.Context, token string) (perms domain.PermissionResult, err error) {
	if token == "" {
		return perms, ErrNotAuthenticated
	}
	defer func() {
		if p := recover(); p != nil {
			s.logger.Errorw("Permission resolution panicked", "panic", p)
			perms, err = domain.PermissionResult{}, ErrAuthFailed
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	perms = s.resolver.Resolve(ctx, token)
	if ctx.Err() != nil && !perms.CanManage {
		return domain.PermissionResult{}, fmt.Errorf("%w: %v", ErrAuthFailed, ctx.Err())
	}
	if !perms.CanManage {
		return perms, ErrForbidden
	}
	return perms, nil
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closing := s.shutdown
	s.mu.RUnlock()
	if closing {
		http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(s.cfg.MaxMessageSize)

	token, err := s.readToken(conn, r)
	var perms domain.PermissionResult
	if err == nil {
		perms, err = s.Authenticate(r.Context(), token)
	}
	if err != nil {
		s.reject(conn, r, err)
		return
	}

	p := newPeer(uuid.NewString(), conn, perms, r, s.cfg.SendBufferSize, s.newLimiter())

	// connect is queued before the peer is visible to Broadcast
	frame, _ := encodeFrame(EventConnect, ConnectPayload{ID: p.id}, nil)
	p.enqueue(frame)

	if !s.register(p) {
		conn.Close()
		return
	}
	s.metrics.RecordHandshake(HandshakeAccepted)
	s.logger.Infow("Relay peer connected", "peer_id", p.id, "remote_addr", p.remoteAddr, "is_owner", perms.IsOwner)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writePump(p)
	}()

	s.readPump(p)
	s.unregister(p)
	s.logger.Infow("Relay peer disconnected", "peer_id", p.id, "connected_for", time.Since(p.connectedAt).String())
}

// readToken takes the bearer header when present and otherwise waits for
// the handshake frame.
func (s *Server) readToken(conn *websocket.Conn, r *http.Request) (string, error) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")), nil
	}

	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("%w: read handshake: %v", ErrAuthFailed, err)
	}
	var hs HandshakeFrame
	if err := json.Unmarshal(data, &hs); err != nil {
		return "", fmt.Errorf("%w: decode handshake: %v", ErrAuthFailed, err)
	}
	return hs.Auth.Token, nil
}

// reject answers with connect_error and closes. The connection never joins
// the peer set and nothing it sent is processed.
func (s *Server) reject(conn *websocket.Conn, r *http.Request, err error) {
	defer conn.Close()

	outcome := HandshakeFailed
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		outcome = HandshakeNotAuthenticated
	case errors.Is(err, ErrForbidden):
		outcome = HandshakeForbidden
	}
	s.metrics.RecordHandshake(outcome)
	s.logger.Warnw("Relay handshake rejected", "remote_addr", r.RemoteAddr, "reason", outcome, "error", err)

	message := RejectionMessage(err)
	deadline := time.Now().Add(s.cfg.WriteTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if frame, encErr := encodeFrame(EventConnectError, ConnectErrorPayload{Message: message}, nil); encErr == nil {
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), deadline)
}

func (s *Server) newLimiter() *rate.Limiter {
	if s.cfg.MessagesPerSecond <= 0 {
		return nil
	}
	burst := s.cfg.Burst
	if burst <= 0 {
		burst = int(s.cfg.MessagesPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), burst)
}

func (s *Server) register(p *peer) bool {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return false
	}
	s.peers[p.id] = p
	n := len(s.peers)
	s.mu.Unlock()

	s.metrics.SetConnectedPeers(n)
	return true
}

func (s *Server) unregister(p *peer) {
	p.close(websocket.CloseNormalClosure, "")

	s.mu.Lock()
	delete(s.peers, p.id)
	n := len(s.peers)
	s.mu.Unlock()

	s.metrics.SetConnectedPeers(n)
}

func (s *Server) readPump(p *peer) {
	ctx := rlog.WithPeerID(s.ctx, p.id)

	_ = p.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !p.closed() {
				s.logger.Infow("Relay read failed", "peer_id", p.id, "error", err)
			}
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			s.metrics.RecordInboundEvent("", InboundMalformed)
			s.logger.Warnw("Malformed relay frame", "peer_id", p.id, "size", len(data))
			continue
		}

		if p.limiter != nil && !p.limiter.Allow() {
			s.metrics.RecordInboundEvent(env.Event, InboundRateLimited)
			s.ack(p, env.Ack, AckPayload{Success: false, Error: "rate limit exceeded"})
			continue
		}

		s.handleEvent(ctx, p, env)
	}
}

func (s *Server) handleEvent(ctx context.Context, p *peer, env Envelope) {
	ctx, span := tracing.TraceRelayEvent(ctx, env.Event, p.id)
	defer span.End()

	switch {
	case domain.IsSyncEvent(env.Event):
		// snapshots are accepted and dropped
		s.metrics.RecordInboundEvent(env.Event, InboundSync)
		s.logger.Debugw("Sync snapshot received", "peer_id", p.id, "event", env.Event, "size", len(env.Data))
		s.ack(p, env.Ack, AckPayload{Success: true})

	case domain.IsActionEvent(env.Event):
		cmd, err := domain.DecodeAction(env.Event, env.Data, s.now())
		if err != nil {
			outcome := InboundRejected
			if errors.Is(err, domain.ErrUnknownEvent) {
				outcome = InboundUnknown
			}
			s.metrics.RecordInboundEvent(env.Event, outcome)
			tracing.RecordError(ctx, err)
			s.logger.Warnw("Relay action rejected", "peer_id", p.id, "event", env.Event, "error", err)
			s.ack(p, env.Ack, AckPayload{Success: false, Error: err.Error()})
			return
		}

		if err := s.Broadcast(ctx, cmd); err != nil && !errors.Is(err, domain.ErrNoPeers) {
			s.logger.Warnw("Relay broadcast failed", "peer_id", p.id, "event", cmd.EventName(), "error", err)
		}
		s.metrics.RecordInboundEvent(env.Event, InboundBroadcast)
		s.ack(p, env.Ack, AckPayload{Success: true})

	default:
		s.metrics.RecordInboundEvent(env.Event, InboundUnknown)
		s.logger.Warnw("Unknown relay event dropped", "peer_id", p.id, "event", env.Event)
		s.ack(p, env.Ack, AckPayload{Success: false, Error: domain.ErrUnknownEvent.Error()})
	}
}

func (s *Server) ack(p *peer, id *int64, payload AckPayload) {
	if id == nil {
		return
	}
	frame, err := encodeFrame(EventAck, payload, id)
	if err != nil {
		return
	}
	if !p.enqueue(frame) {
		s.evict(p)
	}
}

func (s *Server) writePump(p *peer) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case frame := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Infow("Relay write failed", "peer_id", p.id, "error", err)
				p.close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				s.logger.Infow("Relay ping failed", "peer_id", p.id, "error", err)
				p.close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-p.done:
			if p.closeCode != websocket.CloseAbnormalClosure {
				msg := websocket.FormatCloseMessage(p.closeCode, p.closeReason)
				_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
			}
			return
		}
	}
}

// Broadcast sends cmd to every connected peer, the originator included.
// Calls are serialized, so each peer receives commands in call order and
// exactly once. A peer whose send queue is full is disconnected.
func (s *Server) Broadcast(ctx context.Context, cmd domain.Command) error {
	frame, err := encodeFrame(cmd.EventName(), cmd, nil)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.EventName(), err)
	}

	s.broadcastMu.Lock()
	defer s.broadcastMu.Unlock()

	s.mu.RLock()
	targets := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		targets = append(targets, p)
	}
	s.mu.RUnlock()

	if len(targets) == 0 {
		return domain.ErrNoPeers
	}

	delivered := 0
	for _, p := range targets {
		if p.enqueue(frame) {
			delivered++
			continue
		}
		s.evict(p)
	}

	s.metrics.RecordBroadcast(cmd.EventName(), delivered)
	s.logger.Debugw("Command broadcast", "event", cmd.EventName(), "peers", delivered)
	return nil
}

func (s *Server) evict(p *peer) {
	if p.closed() {
		return
	}
	s.metrics.RecordEviction()
	s.logger.Warnw("Evicting slow relay peer", "peer_id", p.id, "queued", len(p.send))
	p.close(websocket.CloseTryAgainLater, "slow consumer")
}

// Accepting reports whether new connections are still admitted.
func (s *Server) Accepting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.shutdown
}

func (s *Server) ConnectedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

func (s *Server) Peers() []PeerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PeerInfo, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p.info())
	}
	return out
}

func (s *Server) Status() Status {
	s.mu.RLock()
	state := "running"
	if s.shutdown {
		state = "shutting_down"
	}
	n := len(s.peers)
	s.mu.RUnlock()

	return Status{
		Status:           state,
		ConnectedClients: n,
		SocketPath:       s.cfg.Path,
		Timestamp:        s.now().UTC(),
	}
}

// Shutdown refuses new connections and closes every peer with a going-away
// frame, then waits for writers to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.close(websocket.CloseGoingAway, "server shutting down")
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type noopMetrics struct{}

func (noopMetrics) SetConnectedPeers(int)             {}
func (noopMetrics) RecordHandshake(string)            {}
func (noopMetrics) RecordInboundEvent(string, string) {}
func (noopMetrics) RecordBroadcast(string, int)       {}
func (noopMetrics) RecordEviction()                   {}
