package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sitewise-ai/sitewise/pkg/chat"
	"github.com/sitewise-ai/sitewise/pkg/resource"
	"github.com/sitewise-ai/sitewise/pkg/storage"
)

const maxUploadBytes = 16 << 20

type createResourceRequest struct {
	Kind resource.Kind `json:"kind"`
	URL  string        `json:"url,omitempty"`
	HTML string        `json:"html,omitempty"`
}

func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	var req createResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var (
		res *resource.Resource
		err error
	)
	switch req.Kind {
	case resource.KindWebsiteURL:
		if !validHTTPURL(req.URL) {
			http.Error(w, "url must be absolute http(s)", http.StatusBadRequest)
			return
		}
		res, err = s.ingest.AddWebsite(r.Context(), tenant, req.URL)
	case resource.KindRawHTML:
		if req.HTML == "" {
			http.Error(w, "html is required", http.StatusBadRequest)
			return
		}
		res, err = s.ingest.AddRawHTML(r.Context(), tenant, []byte(req.HTML))
	default:
		http.Error(w, "kind must be website-url or raw-html", http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("create resource failed", slog.String("tenant", tenant), slog.Any("err", err))
		http.Error(w, "could not create resource", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	resources, err := s.registry.List(r.Context(), tenant)
	if err != nil {
		http.Error(w, "could not list resources", http.StatusInternalServerError)
		return
	}
	if resources == nil {
		resources = []*resource.Resource{}
	}
	writeJSON(w, http.StatusOK, resources)
}

func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	res, err := s.registry.Get(r.Context(), tenant, r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "resource not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "could not load resource", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	res, err := s.ingest.RequestReindex(r.Context(), tenant, r.PathValue("id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "resource not found", http.StatusNotFound)
	case errors.Is(err, resource.ErrIngestInFlight):
		http.Error(w, "ingestion already in flight", http.StatusConflict)
	case err != nil:
		http.Error(w, "could not request reindex", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusAccepted, res)
	}
}

func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	err := s.ingest.DeleteResource(r.Context(), tenant, r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "resource not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "could not delete resource", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		http.Error(w, "could not read upload", http.StatusInternalServerError)
		return
	}

	mediaType := header.Header.Get("Content-Type")
	if kind := r.FormValue("kind"); kind == string(resource.KindScreenshot) {
		res, err := s.ingest.AddScreenshot(r.Context(), tenant, header.Filename, data)
		if err != nil {
			http.Error(w, "could not store screenshot", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, res)
		return
	}

	doc, err := s.ingest.UploadDocument(r.Context(), tenant, header.Filename, mediaType, data)
	if err != nil {
		slog.Error("document upload failed", slog.String("tenant", tenant), slog.Any("err", err))
		http.Error(w, "could not store document", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	doc, err := s.registry.GetDocument(r.Context(), tenant, r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "could not load document", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	err := s.ingest.DeleteDocument(r.Context(), tenant, r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "could not delete document", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	result, err := s.chat.Submit(r.Context(), tenant, req.ConversationID, req.Message)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "conversation not found", http.StatusNotFound)
	case errors.Is(err, chat.ErrGeneration):
		// History is preserved; the user can simply retry.
		slog.Error("chat generation failed", slog.String("tenant", tenant), slog.Any("err", err))
		http.Error(w, "the assistant could not produce a reply, please try again", http.StatusBadGateway)
	case err != nil:
		http.Error(w, "chat failed", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
