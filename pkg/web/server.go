package web

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/univoice/pkg/logging"
	"github.com/harunnryd/univoice/pkg/provider"
	"github.com/harunnryd/univoice/pkg/session"
)

//go:embed static
var staticFiles embed.FS

// Controller is the session surface the page drives.
type Controller interface {
	Start(ctx context.Context, mic session.Microphone) error
	End(ctx context.Context) error
	Snapshot() session.Snapshot
	Watch() (<-chan session.Snapshot, func())
}

type Config struct {
	Addr           string   `mapstructure:"addr"`
	WebsocketPath  string   `mapstructure:"ws_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// StopTimeoutMS bounds the provider teardown triggered by the page.
	StopTimeoutMS int `mapstructure:"stop_timeout_ms"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/ws"
	}
	if c.StopTimeoutMS <= 0 {
		c.StopTimeoutMS = 10000
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

type Options struct {
	Config     Config
	Controller Controller
	// Webhooks are mounted at the path each receiver reports.
	Webhooks []provider.WebhookReceiver
	Metrics  http.Handler
	Logger   *slog.Logger
}

// Server serves the call page and its websocket channel.
type Server struct {
	cfg      Config
	ctrl     Controller
	webhooks []provider.WebhookReceiver
	metrics  http.Handler
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client

	draining atomic.Bool
}

func New(opts Options) (*Server, error) {
	if opts.Controller == nil {
		return nil, errors.New("web: controller is required")
	}
	s := &Server{
		cfg:      opts.Config.withDefaults(),
		ctrl:     opts.Controller,
		webhooks: opts.Webhooks,
		metrics:  opts.Metrics,
		log:      logging.NewComponentLogger(opts.Logger, "web"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		clients: make(map[string]*client),
	}
	s.upgrader.CheckOrigin = s.checkOrigin
	return s, nil
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	static, _ := fs.Sub(staticFiles, "static")
	files := http.FileServer(http.FS(static))
	mux.Handle("/", files)
	mux.HandleFunc(s.cfg.WebsocketPath, s.handleWebsocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	for _, wh := range s.webhooks {
		if wh == nil || wh.WebhookPath() == "" {
			continue
		}
		mux.Handle(wh.WebhookPath(), wh)
	}
	return mux
}

// ReadyFields reports the listen address for startup logging.
func (s *Server) ReadyFields() map[string]any {
	addr := s.cfg.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	fields := map[string]any{"page_url": "http://" + addr + "/"}
	for _, wh := range s.webhooks {
		if wh != nil {
			fields["webhook_path"] = wh.WebhookPath()
		}
	}
	return fields
}

// Run serves until ctx ends, then closes every client.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           s.Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("web_server_started", "addr", s.cfg.Addr)

	select {
	case err := <-errCh:
		s.closeClients()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.draining.Store(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeClients()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Clients returns the number of connected pages.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := newClient(uuid.NewString(), conn, s.log)
	s.attach(c)
	defer s.detach(c)

	updates, stop := s.ctrl.Watch()
	go c.forward(updates)
	defer stop()

	c.readLoop(s)
}

func (s *Server) attach(c *client) {
	s.mu.Lock()
	s.clients[c.id] = c
	n := len(s.clients)
	s.mu.Unlock()
	go c.writeLoop()
	s.log.Debug("client_connected", "client_id", c.id, "clients", n)
}

func (s *Server) detach(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	_ = c.close()
	s.log.Debug("client_disconnected", "client_id", c.id)
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[string]*client)
	s.mu.Unlock()
	for _, c := range clients {
		_ = c.close()
	}
}

// startCall runs a start requested by c. It blocks on the microphone round trip.
func (s *Server) startCall(c *client) {
	err := s.ctrl.Start(c.ctx, c)
	if err == nil {
		return
	}
	if errors.Is(err, session.ErrClosed) || errors.Is(err, context.Canceled) {
		return
	}
	s.log.Warn("start_call_failed", "client_id", c.id, "error", err.Error())
	c.sendError(err)
}

func (s *Server) endCall(c *client) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.StopTimeoutMS)*time.Millisecond)
	defer cancel()
	if err := s.ctrl.End(ctx); err != nil && !errors.Is(err, session.ErrClosed) {
		s.log.Warn("end_call_failed", "client_id", c.id, "error", err.Error())
		c.sendError(err)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range s.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}
