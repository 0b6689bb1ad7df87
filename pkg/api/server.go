package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sitewise-ai/sitewise/pkg/chat"
	"github.com/sitewise-ai/sitewise/pkg/ingest"
	"github.com/sitewise-ai/sitewise/pkg/resource"
)

// Server exposes the pipeline to the dashboard: resource CRUD, re-index,
// document upload and the chat endpoint. Callers arrive pre-authenticated
// with a tenant token.
type Server struct {
	ingest     *ingest.Service
	registry   *resource.Registry
	chat       *chat.Service
	signingKey []byte
}

func NewServer(ingestSvc *ingest.Service, registry *resource.Registry, chatSvc *chat.Service, signingKey string) *Server {
	return &Server{
		ingest:     ingestSvc,
		registry:   registry,
		chat:       chatSvc,
		signingKey: []byte(signingKey),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/resources", s.requireTenant(s.handleCreateResource))
	mux.HandleFunc("GET /api/resources", s.requireTenant(s.handleListResources))
	mux.HandleFunc("GET /api/resources/{id}", s.requireTenant(s.handleGetResource))
	mux.HandleFunc("POST /api/resources/{id}/reindex", s.requireTenant(s.handleReindex))
	mux.HandleFunc("DELETE /api/resources/{id}", s.requireTenant(s.handleDeleteResource))
	mux.HandleFunc("POST /api/documents", s.requireTenant(s.handleUploadDocument))
	mux.HandleFunc("GET /api/documents/{id}", s.requireTenant(s.handleGetDocument))
	mux.HandleFunc("DELETE /api/documents/{id}", s.requireTenant(s.handleDeleteDocument))
	mux.HandleFunc("POST /api/chat", s.requireTenant(s.handleChat))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown", slog.Any("err", err))
		}
	}()

	slog.Info("starting api server", "addr", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.Any("err", err))
	}
}
