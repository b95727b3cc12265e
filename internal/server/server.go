package server

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/game-translator/internal/config"
	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
	"github.com/GriffinCanCode/game-translator/internal/orchestrator"
	"github.com/GriffinCanCode/game-translator/internal/orchestrator/feed"
	"github.com/GriffinCanCode/game-translator/internal/region"
	"github.com/GriffinCanCode/game-translator/internal/screen"
	"github.com/GriffinCanCode/game-translator/internal/trace"
	"github.com/GriffinCanCode/game-translator/internal/translate"
)

// Controller is the capture manager surface the server drives.
// *orchestrator.Manager implements it.
type Controller interface {
	Start(ctx context.Context, h screen.Handle) error
	SwitchWindow(h screen.Handle) error
	Stop(timeout time.Duration) error
	Snapshot() (*screen.Frame, error)
	ReturnToLive() error
	State() orchestrator.State
	GameKey() string

	CurrentFrame() *screen.Frame
	LiveText() map[string]string
	StableText() map[string]string
	LatestTranslation() translate.Result
	History(n int) []feed.Entry
	Events() <-chan feed.Event

	Regions() []region.Region
	SetRegions(rs []region.Region) error
	AddRegion(r region.Region) error
	DeleteRegion(name string) error
	ReorderRegions(names []string) error

	Settings() orchestrator.Settings
	UpdateSettings(fn func(orchestrator.Settings) orchestrator.Settings) error
	SetAutoTranslate(enabled bool)
	AutoTranslate() bool

	Retranslate(ctx context.Context, opts translate.Options) (translate.Result, error)
	Snip(ctx context.Context, rect image.Rectangle) (orchestrator.SnipResult, error)
}

// CacheClearer drops a game's translation cache.
type CacheClearer interface {
	Clear(gameKey string) error
}

// ContextResetter drops a game's conversation context.
type ContextResetter interface {
	Reset(gameKey string) error
}

// EngineLister reports the registered OCR engines.
type EngineLister interface {
	Names() []string
	Ready(name string) bool
}

// Deps are the collaborators behind the API.
type Deps struct {
	Controller Controller
	Cache      CacheClearer
	Context    ContextResetter
	Engines    EngineLister
	Presets    map[string]config.Preset
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	ctx      context.Context
	ctrl     Controller
	cache    CacheClearer
	history  ContextResetter
	engines  EngineLister
	presets  map[string]config.Preset
	origins  []string
	patterns []string

	mu         sync.RWMutex
	conns      map[*websocket.Conn]struct{}
	rateLimits map[*websocket.Conn]*rateLimiter
}

// New creates a server and starts broadcasting controller events. ctx bounds
// capture loops started through the API.
func New(ctx context.Context, deps Deps, cfg *config.Config) *Server {
	s := &Server{
		ctx:        ctx,
		ctrl:       deps.Controller,
		cache:      deps.Cache,
		history:    deps.Context,
		engines:    deps.Engines,
		presets:    deps.Presets,
		origins:    cfg.AllowedOrigins,
		patterns:   originPatterns(cfg.AllowedOrigins),
		conns:      make(map[*websocket.Conn]struct{}),
		rateLimits: make(map[*websocket.Conn]*rateLimiter),
	}
	go s.broadcastEvents()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("POST /api/capture/start", s.handleStart)
	mux.HandleFunc("POST /api/capture/stop", s.handleStop)
	mux.HandleFunc("POST /api/capture/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /api/capture/live", s.handleLive)

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/frame", s.handleFrame)
	mux.HandleFunc("GET /api/text", s.handleText)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/engines", s.handleEngines)

	mux.HandleFunc("GET /api/regions", s.handleRegions)
	mux.HandleFunc("PUT /api/regions", s.handleSetRegions)
	mux.HandleFunc("POST /api/regions", s.handleAddRegion)
	mux.HandleFunc("DELETE /api/regions/{name}", s.handleDeleteRegion)
	mux.HandleFunc("POST /api/regions/order", s.handleReorder)

	mux.HandleFunc("GET /api/settings", s.handleSettings)
	mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)

	mux.HandleFunc("POST /api/translate", s.handleTranslate)
	mux.HandleFunc("POST /api/snip", s.handleSnip)
	mux.HandleFunc("DELETE /api/context", s.handleResetContext)
	mux.HandleFunc("DELETE /api/cache", s.handleClearCache)

	// Apply middleware: trace -> CORS
	return s.corsMiddleware(trace.Middleware(mux))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && originAllowed(origin, s.origins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+trace.TraceIDKey+", "+trace.SpanIDKey)
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// originAllowed matches origin's scheme and hostname against allowed,
// ignoring the port.
func originAllowed(origin string, allowed []string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" {
			return true
		}
		au, err := url.Parse(a)
		if err != nil {
			continue
		}
		if strings.EqualFold(au.Scheme, u.Scheme) && strings.EqualFold(au.Hostname(), u.Hostname()) {
			return true
		}
	}
	return false
}

// originPatterns converts allowed origins to websocket host patterns.
func originPatterns(allowed []string) []string {
	var out []string
	for _, a := range allowed {
		if a == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(a)
		if err != nil || u.Host == "" {
			continue
		}
		out = append(out, u.Host)
		if u.Port() == "" {
			out = append(out, u.Host+":*")
		}
	}
	return out
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.patterns,
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	rl := &rateLimiter{}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.rateLimits[conn] = rl
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		delete(s.rateLimits, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	_ = s.write(baseCtx, conn, feed.Event{
		Kind:    feed.KindState,
		Time:    time.Now(),
		GameKey: s.ctrl.GameKey(),
		State:   s.ctrl.State().String(),
	})

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = s.write(baseCtx, conn, ReplyMessage{Type: "error", Error: "rate limit exceeded"})
			continue
		}

		var cmd CommandMessage
		if err := json.Unmarshal(msg, &cmd); err != nil {
			continue
		}
		s.handleCommand(baseCtx, conn, cmd)
	}
}

func (s *Server) handleCommand(ctx context.Context, conn *websocket.Conn, cmd CommandMessage) {
	switch cmd.Type {
	case MsgPing:
		_ = s.write(ctx, conn, ReplyMessage{Type: "pong", OK: true})
	case MsgSnapshot:
		_, err := s.ctrl.Snapshot()
		_ = s.write(ctx, conn, reply(cmd.Type, err))
	case MsgLive:
		_ = s.write(ctx, conn, reply(cmd.Type, s.ctrl.ReturnToLive()))
	case MsgRetranslate:
		opts := translate.Options{ForceRecache: true}
		if cmd.Options != nil {
			opts = *cmd.Options
		}
		// The result itself arrives through the event stream.
		go func() {
			ctx, span := trace.StartSpan(ctx, "ws.retranslate")
			defer span.End()
			res, err := s.ctrl.Retranslate(ctx, opts)
			if err == nil {
				err = res.Err
			}
			if err != nil {
				span.Fail(err)
			}
			_ = s.write(ctx, conn, reply(cmd.Type, err))
		}()
	default:
		_ = s.write(ctx, conn, ReplyMessage{Type: cmd.Type, Error: "unknown message type"})
	}
}

func reply(typ string, err error) ReplyMessage {
	if err != nil {
		return ReplyMessage{Type: typ, Status: apperrors.Status(err), Error: err.Error()}
	}
	return ReplyMessage{Type: typ, OK: true}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func (s *Server) broadcastEvents() {
	for evt := range s.ctrl.Events() {
		s.mu.RLock()
		for conn := range s.conns {
			go func(c *websocket.Conn) {
				_ = s.write(context.Background(), c, evt)
			}(conn)
		}
		s.mu.RUnlock()
	}
}

// Connections reports the number of open websocket clients.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func presetNames(m map[string]config.Preset) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
