// Package observer serves the live steering indicator: a WebSocket hub
// that broadcasts the dispatcher's mapping frames to connected browser
// clients. Frames arrive at a divisor of the tick rate; clients that
// cannot keep up lose frames rather than slowing the engine.
package observer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leosat/MMVJ/component"
	"github.com/leosat/MMVJ/engine"
	"github.com/leosat/MMVJ/errors"
	"github.com/leosat/MMVJ/metric"
	"github.com/leosat/MMVJ/pkg/buffer"
	"github.com/leosat/MMVJ/pkg/security"
	"github.com/leosat/MMVJ/pkg/tlsutil"
)

const (
	// DefaultPort is the indicator server's listen port.
	DefaultPort = 8090
	// DefaultPath is the WebSocket endpoint path.
	DefaultPath = "/indicator"

	// clientBacklogDepth bounds the per-client frame backlog. A slow
	// reader loses its oldest batches once the backlog fills; the newest
	// frames always survive.
	clientBacklogDepth = 4

	writeTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// frameMessage is the wire format pushed to indicator clients.
type frameMessage struct {
	Type      string                  `json:"type"`
	Timestamp int64                   `json:"timestamp"`
	Frames    []engine.IndicatorFrame `json:"frames"`
}

// Deps carries the indicator server's collaborators.
type Deps struct {
	Port            int
	Path            string
	Security        security.Config
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Server is the WebSocket indicator hub. The dispatcher hands it frame
// batches via Offer, which never blocks; per-client writer goroutines
// drain bounded backlogs onto the sockets.
type Server struct {
	port     int
	path     string
	security security.Config
	logger   *slog.Logger
	metrics  *serverMetrics

	upgrader websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]*client

	server        *http.Server
	addr          atomic.Value // string
	lifecycleCtx  context.Context
	lifecycleStop context.CancelFunc
	tlsCleanup    func()

	shutdown  chan struct{}
	wg        sync.WaitGroup
	running   atomic.Bool
	stopped   atomic.Bool
	startTime time.Time

	framesSent    atomic.Int64
	framesDropped atomic.Int64
	errorCount    atomic.Int64
	lastErr       atomic.Value // string
}

// client is one connected indicator consumer. Its backlog is a circular
// buffer so a stalled socket keeps the freshest frames, and notify wakes
// the writer without ever blocking the dispatcher.
type client struct {
	conn      *websocket.Conn
	backlog   buffer.Buffer[[]engine.IndicatorFrame]
	notify    chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

var _ component.Component = (*Server)(nil)
var _ engine.IndicatorSink = (*Server)(nil)

// New creates the indicator server.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	port := deps.Port
	if port == 0 {
		port = DefaultPort
	}
	path := deps.Path
	if path == "" {
		path = DefaultPath
	}
	s := &Server{
		port:     port,
		path:     path,
		security: deps.Security,
		logger:   logger.With("component", "indicator"),
		metrics:  newServerMetrics(deps.MetricsRegistry),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		clients:  make(map[*websocket.Conn]*client),
		shutdown: make(chan struct{}),
	}
	s.lastErr.Store("")
	s.addr.Store("")
	return s
}

// Meta implements component.Component.
func (s *Server) Meta() component.Metadata {
	return component.Metadata{
		Name:        "indicator",
		Type:        "observer",
		Description: fmt.Sprintf("WebSocket steering indicator on :%d%s", s.port, s.path),
	}
}

// Health implements component.Component.
func (s *Server) Health() component.HealthStatus {
	lastErr, _ := s.lastErr.Load().(string)
	return component.HealthStatus{
		Healthy:    s.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(s.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(s.startTime),
	}
}

// Initialize implements component.Component.
func (s *Server) Initialize() error {
	if s.port < 0 || s.port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("port %d out of range", s.port),
			"indicator", "Initialize", "validate port")
	}
	if s.path == "" || s.path[0] != '/' {
		return errors.WrapInvalid(fmt.Errorf("path %q must start with /", s.path),
			"indicator", "Initialize", "validate path")
	}
	return nil
}

// Start binds the listener and begins serving indicator clients.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStarted
	}
	s.startTime = time.Now()
	s.lifecycleCtx, s.lifecycleStop = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebSocket)
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	tlsEnabled := s.security.TLS.Server.Enabled
	if tlsEnabled {
		if err := s.setupTLS(); err != nil {
			s.lifecycleStop()
			s.running.Store(false)
			return err
		}
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.lifecycleStop()
		s.running.Store(false)
		return errors.WrapTransient(err, "indicator", "Start", "bind "+s.server.Addr)
	}
	s.addr.Store(ln.Addr().String())

	s.wg.Add(2)
	go s.serve(ln, tlsEnabled)
	go s.maintainClients()

	s.logger.Info("Indicator server started", "addr", ln.Addr().String(), "path", s.path, "tls", tlsEnabled)
	return nil
}

// setupTLS configures the HTTP server's TLS from the platform security
// settings, in manual or ACME mode.
func (s *Server) setupTLS() error {
	mode := s.security.TLS.Server.Mode
	if mode == "" {
		mode = "manual"
	}
	if mode == "acme" && s.security.TLS.Server.ACME.Enabled {
		tlsConfig, cleanup, err := tlsutil.LoadServerTLSConfigWithACME(s.lifecycleCtx, s.security.TLS.Server)
		if err != nil {
			return errors.WrapFatal(err, "indicator", "setupTLS", "load TLS config with ACME")
		}
		s.server.TLSConfig = tlsConfig
		s.tlsCleanup = cleanup
		return nil
	}
	tlsConfig, err := tlsutil.LoadServerTLSConfigWithMTLS(s.security.TLS.Server, s.security.TLS.Server.MTLS)
	if err != nil {
		return errors.WrapFatal(err, "indicator", "setupTLS", "load TLS config")
	}
	s.server.TLSConfig = tlsConfig
	return nil
}

func (s *Server) serve(ln net.Listener, tlsEnabled bool) {
	defer s.wg.Done()
	var err error
	if tlsEnabled {
		err = s.server.ServeTLS(ln, "", "")
	} else {
		err = s.server.Serve(ln)
	}
	if err != nil && err != http.ErrServerClosed {
		s.errorCount.Add(1)
		s.lastErr.Store(err.Error())
		s.logger.Error("Indicator server failed", "error", err)
	}
}

// Stop shuts down the listener, disconnects every client, and waits for
// the hub goroutines.
func (s *Server) Stop(timeout time.Duration) error {
	if !s.running.Load() {
		return errors.ErrNotStarted
	}
	if !s.stopped.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStopped
	}
	close(s.shutdown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Indicator server shutdown incomplete", "error", err)
	}

	s.clientsMu.Lock()
	for conn, cl := range s.clients {
		s.closeClient(conn, cl)
	}
	s.clientsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		return errors.Wrap(errors.ErrShuttingDown, "indicator", "Stop", "wait for client goroutines")
	}

	if s.tlsCleanup != nil {
		s.tlsCleanup()
		s.tlsCleanup = nil
	}
	s.lifecycleStop()
	s.running.Store(false)
	s.logger.Info("Indicator server stopped",
		"frames_sent", s.framesSent.Load(), "frames_dropped", s.framesDropped.Load())
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	addr, _ := s.addr.Load().(string)
	return addr
}

// Offer implements engine.IndicatorSink. It fans the batch out to every
// client without blocking; a client whose backlog is full loses its
// oldest pending batch instead of this one.
func (s *Server) Offer(frames []engine.IndicatorFrame) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for _, cl := range s.clients {
		if cl.closed.Load() {
			continue
		}
		if err := cl.backlog.Write(frames); err != nil {
			continue
		}
		select {
		case cl.notify <- struct{}{}:
		default:
		}
	}
}

// newClient builds a client with its frame backlog. Overflow drops the
// oldest batch and is accounted as a frame drop.
func (s *Server) newClient(conn *websocket.Conn) (*client, error) {
	backlog, err := buffer.NewCircularBuffer[[]engine.IndicatorFrame](clientBacklogDepth,
		buffer.WithOverflowPolicy[[]engine.IndicatorFrame](buffer.DropOldest),
		buffer.WithDropCallback[[]engine.IndicatorFrame](func([]engine.IndicatorFrame) {
			s.framesDropped.Add(1)
			if s.metrics != nil {
				s.metrics.framesDropped.Inc()
			}
		}))
	if err != nil {
		return nil, errors.Wrap(err, "indicator", "newClient", "create frame backlog")
	}
	return &client{
		conn:    conn,
		backlog: backlog,
		notify:  make(chan struct{}, 1),
	}, nil
}

// handleWebSocket upgrades one indicator connection and starts its reader
// and writer.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.errorCount.Add(1)
		s.lastErr.Store(err.Error())
		if s.metrics != nil {
			s.metrics.errors.Inc()
		}
		return
	}

	cl, err := s.newClient(conn)
	if err != nil {
		s.errorCount.Add(1)
		s.lastErr.Store(err.Error())
		_ = conn.Close()
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = cl
	count := len(s.clients)
	s.clientsMu.Unlock()

	if s.metrics != nil {
		s.metrics.connections.Inc()
		s.metrics.clientsConnected.Set(float64(count))
	}
	s.logger.Info("Indicator client connected", "remote", conn.RemoteAddr().String(), "clients", count)

	s.wg.Add(2)
	go s.writeLoop(conn, cl)
	go s.readLoop(conn, cl)
}

// writeLoop drains the client's backlog onto the socket.
func (s *Server) writeLoop(conn *websocket.Conn, cl *client) {
	defer s.wg.Done()
	for {
		select {
		case <-s.shutdown:
			return
		case <-cl.notify:
			if cl.closed.Load() {
				return
			}
			for _, frames := range cl.backlog.ReadBatch(clientBacklogDepth) {
				msg := frameMessage{
					Type:      "frames",
					Timestamp: time.Now().UnixMilli(),
					Frames:    frames,
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					s.removeClient(conn, cl)
					return
				}
				s.framesSent.Add(1)
				if s.metrics != nil {
					s.metrics.framesSent.Inc()
				}
			}
		}
	}
}

// readLoop consumes client messages to service pings and detect closure.
// Indicator clients send nothing meaningful.
func (s *Server) readLoop(conn *websocket.Conn, cl *client) {
	defer s.wg.Done()
	defer s.removeClient(conn, cl)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// maintainClients pings every client so dead connections are detected
// between frames.
func (s *Server) maintainClients() {
	defer s.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.clientsMu.Lock()
			conns := make(map[*websocket.Conn]*client, len(s.clients))
			for conn, cl := range s.clients {
				conns[conn] = cl
			}
			s.clientsMu.Unlock()
			for conn, cl := range conns {
				if cl.closed.Load() {
					continue
				}
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					s.removeClient(conn, cl)
				}
			}
		}
	}
}

// removeClient drops one client from the hub.
func (s *Server) removeClient(conn *websocket.Conn, cl *client) {
	s.clientsMu.Lock()
	s.closeClient(conn, cl)
	count := len(s.clients)
	s.clientsMu.Unlock()
	if s.metrics != nil {
		s.metrics.clientsConnected.Set(float64(count))
	}
}

// closeClient tears one client down. Caller holds the client mutex.
func (s *Server) closeClient(conn *websocket.Conn, cl *client) {
	cl.closeOnce.Do(func() {
		cl.closed.Store(true)
		delete(s.clients, conn)
		_ = cl.backlog.Close()
		_ = conn.Close()
	})
}

// Clients returns the number of connected indicator consumers.
func (s *Server) Clients() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

// FramesDropped returns the number of frame batches discarded for slow
// clients.
func (s *Server) FramesDropped() int64 { return s.framesDropped.Load() }
