// Package api is the local HTTP surface the messaging UI talks to. Every
// handler delegates to the engine; none of them mutate the store
// directly.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hireloop/chatsync/internal/bus"
	"github.com/hireloop/chatsync/internal/store"
	syncengine "github.com/hireloop/chatsync/internal/sync"
	"go.uber.org/zap"
)

// Server serves the UI-facing REST + SSE endpoints.
type Server struct {
	httpServer *http.Server
	listen     string
	engine     *syncengine.Engine
	store      *store.Store
	pager      hasMoreReporter
	poller     *syncengine.Poller
	bus        *bus.Bus
	logger     *zap.Logger
}

// hasMoreReporter is the slice of the pagination controller the API needs.
type hasMoreReporter interface {
	HasMore(conversationID string) bool
}

// NewServer builds the HTTP server and its routes.
func NewServer(listen string, engine *syncengine.Engine, st *store.Store, pager hasMoreReporter, poller *syncengine.Poller, b *bus.Bus, logger *zap.Logger) *Server {
	s := &Server{
		listen: listen,
		engine: engine,
		store:  st,
		pager:  pager,
		poller: poller,
		bus:    b,
		logger: logger,
	}

	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/conversations", s.handleListConversations).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{id}", s.handleGetConversation).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{id}/open", s.handleOpenConversation).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/close", s.handleCloseConversation).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/older", s.handleLoadOlder).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/messages", s.handleSendMessage).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/messages/{messageID}", s.handleDeleteMessage).Methods(http.MethodDelete)
	v1.HandleFunc("/conversations/{id}/pin", s.handlePin(true)).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/unpin", s.handlePin(false)).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/hide", s.handleHide).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/exchange/{messageID}", s.handleExchange).Methods(http.MethodPost)
	v1.HandleFunc("/read-all", s.handleMarkAllRead).Methods(http.MethodPost)
	v1.HandleFunc("/visibility", s.handleVisibility).Methods(http.MethodPost)
	v1.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:        listen,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}
	s.logger.Info("api server listening", zap.String("addr", s.listen))
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("api server stopping")
	_ = s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.logger.Warn("encode response failed", zap.Error(err))
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, syncengine.ErrExchangePending):
		status = http.StatusConflict
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
