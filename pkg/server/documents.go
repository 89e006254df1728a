package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/agoraworks/agora/pkg/agents"
	"github.com/agoraworks/agora/pkg/documents"
)

// maxUploadBytes bounds multipart document uploads.
const maxUploadBytes = 50 << 20

func agentContainer(a *agents.Agent) string {
	if a.ContainerName != "" {
		return a.ContainerName
	}
	return agents.ContainerNameFor(a.ID)
}

func (s *Server) agentForDocuments(w http.ResponseWriter, r *http.Request) (*agents.Agent, bool) {
	if s.opts.Documents == nil {
		writeError(w, http.StatusNotImplemented, "document storage is not configured")
		return nil, false
	}
	a, err := s.opts.Agents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	return a, true
}

// handleListDocuments lists the agent's stored documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agentForDocuments(w, r)
	if !ok {
		return
	}
	entries, err := s.opts.Documents.List(r.Context(), agentContainer(a))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": entries})
}

// handleUploadDocument stores one multipart file in the agent's
// container.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agentForDocuments(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == "/" {
		writeError(w, http.StatusBadRequest, "upload has no filename")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return
	}
	if err := s.opts.Documents.Upload(r.Context(), agentContainer(a), name, data); err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("document uploaded", "agent", a.ID, "document", name, "bytes", len(data))
	writeJSON(w, http.StatusCreated, map[string]any{"name": name, "size": len(data)})
}

// handleDownloadDocument streams a document back to the caller.
func (s *Server) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agentForDocuments(w, r)
	if !ok {
		return
	}
	name := filepath.Base(chi.URLParam(r, "name"))
	data, err := s.opts.Documents.Download(r.Context(), agentContainer(a), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleDeleteDocument removes a document and cleans the search index.
// A partially failed index cleanup still reports success for the blob
// deletion, with the cleanup failure detail alongside.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agentForDocuments(w, r)
	if !ok {
		return
	}
	name := filepath.Base(chi.URLParam(r, "name"))
	err := s.opts.Documents.Delete(r.Context(), agentContainer(a), a.SearchIndex, name)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		return
	}
	var cleanup *documents.CleanupError
	if errors.As(err, &cleanup) {
		s.logger.Warn("document deleted but index cleanup failed",
			"agent", a.ID, "document", name, "error", cleanup)
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "deleted",
			"warning": cleanup.Error(),
		})
		return
	}
	writeStoreError(w, err)
}

// handleIndexDocument pushes a stored document straight into the search
// index.
func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agentForDocuments(w, r)
	if !ok {
		return
	}
	if a.SearchIndex == "" {
		writeError(w, http.StatusConflict, "agent has no search index")
		return
	}
	name := filepath.Base(chi.URLParam(r, "name"))
	data, err := s.opts.Documents.Download(r.Context(), agentContainer(a), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	chunks, err := s.opts.Documents.Index(r.Context(), a.SearchIndex, name, data)
	if err != nil {
		if errors.Is(err, documents.ErrUnsupportedFormat) {
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indexed_chunks": chunks})
}
