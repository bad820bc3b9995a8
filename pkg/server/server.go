package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rerrors "github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/protocol"
	"github.com/vango-dev/reactor/pkg/snapshot"
)

// Server exposes a Mirror over HTTP.
type Server struct {
	config   *Config
	mirror   *Mirror
	router   chi.Router
	upgrader websocket.Upgrader
	logger   *slog.Logger

	httpServer *http.Server
}

// New creates a server for m. A nil config uses DefaultConfig.
func New(m *Mirror, config *Config) *Server {
	config = config.withDefaults()
	s := &Server{
		config: config,
		mirror: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger: config.Logger.With("component", "server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/snapshot", s.handleSnapshot)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
	if !s.config.DisableMetricsRoute {
		r.Method(http.MethodGet, s.config.MetricsPath, promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/snapshots", func(r chi.Router) {
		r.Get("/", s.handleListSnapshots)
		r.Post("/", s.handleSaveSnapshot)
		r.Get("/{key}", s.handleGetSnapshot)
	})
	return r
}

// Handler returns the server's routes for mounting in another router or an
// httptest server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return rerrors.New("R160").WithDetail(err.Error()).Wrap(err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info("listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown disconnects every viewer with CloseServerStopped and stops the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mirror.Close(protocol.CloseServerStopped)
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var since uint64
	sinceParam := r.URL.Query().Get("since")
	resume := sinceParam != ""
	if resume {
		var err error
		since, err = strconv.ParseUint(sinceParam, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, rerrors.New("R161").WithDetail("since: "+err.Error()))
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		s.logger.Warn("websocket upgrade failed", "error", err)
		if s.config.Metrics != nil {
			s.config.Metrics.WebSocketError("upgrade")
		}
		return
	}

	v := newViewer(uuid.NewString(), conn, s.mirror, s.config)
	ctx := r.Context()
	err = s.mirror.onRuntime(ctx, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.mirror.attach(v, since, resume)
	})
	if err != nil {
		s.logger.Warn("viewer rejected", "viewer", v.id, "error", err)
		em := protocol.NewErrorMessage(err, "R063", true)
		if frame, encErr := protocol.NewFrame(protocol.FrameError, protocol.EncodeErrorMessage(em)).Encode(); encErr == nil {
			conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			conn.WriteMessage(websocket.BinaryMessage, frame)
		}
		conn.Close()
		return
	}

	go v.writeLoop()
	v.readLoop()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	markup, err := s.mirror.Markup(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, rerrors.FromError(err, "R160"))
		return
	}
	w.Header().Set("Content-Type", snapshot.ContentType)
	fmt.Fprintf(w, indexPage, html.EscapeString(s.config.Title), markup)
}

const indexPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>%s</title></head>
<body>
<div id="mirror">%s</div>
</body>
</html>
`

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	markup, err := s.mirror.Markup(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, rerrors.FromError(err, "R160"))
		return
	}
	w.Header().Set("Content-Type", snapshot.ContentType)
	fmt.Fprint(w, markup)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	infos, err := s.config.Snapshots.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, rerrors.FromError(err, "R140"))
		return
	}
	if infos == nil {
		infos = []snapshot.Info{}
	}
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	markup, err := s.mirror.Markup(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, rerrors.FromError(err, "R160"))
		return
	}
	key, err := s.config.Snapshots.Put(r.Context(), s.config.SnapshotName, []byte(markup))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, rerrors.FromError(err, "R140"))
		return
	}
	s.logger.Info("snapshot saved", "key", key, "bytes", len(markup))
	s.writeJSON(w, http.StatusCreated, snapshot.Info{Key: key, Size: int64(len(markup)), CreatedAt: time.Now().UTC()})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	data, err := s.config.Snapshots.Get(r.Context(), chi.URLParam(r, "key"))
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		s.writeError(w, http.StatusNotFound, rerrors.New("R141"))
		return
	case errors.Is(err, snapshot.ErrInvalidKey):
		s.writeError(w, http.StatusBadRequest, rerrors.New("R161").WithDetail(err.Error()))
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, rerrors.FromError(err, "R140"))
		return
	}
	w.Header().Set("Content-Type", snapshot.ContentType)
	w.Write(data)
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.config.Snapshots != nil {
		return true
	}
	s.writeError(w, http.StatusNotFound, rerrors.New("R121").WithDetail("no snapshot store configured"))
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, e *rerrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintln(w, e.FormatJSON())
}
