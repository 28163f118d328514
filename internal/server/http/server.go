package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rzbill/hose/internal/criteria"
	"github.com/rzbill/hose/internal/runtime"
	streamsvc "github.com/rzbill/hose/internal/services/stream"
	logpkg "github.com/rzbill/hose/pkg/log"
)

type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	stream *streamsvc.Service
	logger logpkg.Logger
}

func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("http"))
	}
	mux := http.NewServeMux()
	s := &Server{
		rt:     rt,
		stream: streamsvc.NewWithLogger(rt, logger),
		logger: logger,
		srv:    &http.Server{Handler: cors(mux)},
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/statuses", s.handlePostStatus)
	mux.HandleFunc("/v1/stream/", s.handleStream)
	return s
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http server listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		s.stream.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
	s.stream.Close()
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_serving"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handlePostStatus ingests one status. The body is an arbitrary JSON object;
// the engine stamps id and created_at.
func (s *Server) handlePostStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id, err := s.stream.Post(r.Context(), fields)
	if err != nil {
		s.logger.Error("status ingest failed", logpkg.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]uint64{"id": id})
}

// handleStream serves GET /v1/stream/{kind}?content=&backlog= as a
// newline-delimited JSON relay of the subscription's outgoing channel. The
// response runs until the stream ends or the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	kind := strings.TrimPrefix(r.URL.Path, "/v1/stream/")
	if kind == "" || strings.Contains(kind, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	content := r.URL.Query().Get("content")
	var backlog int64
	if v := r.URL.Query().Get("backlog"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		backlog = n
	}

	ch, err := s.stream.StartSubscription(r.Context(), kind, content, backlog)
	if err != nil {
		if errors.Is(err, criteria.ErrUnknownKind) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.logger.Error("subscription start failed", logpkg.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer func() { _ = s.stream.EndSubscription(context.Background(), ch) }()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for {
		item, ok, err := s.stream.Pop(r.Context(), ch)
		if err != nil || !ok {
			return
		}
		if _, err := w.Write(append(item, '\n')); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
