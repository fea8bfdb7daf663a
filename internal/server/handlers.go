package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kotae-ai/kotae/internal/ingest"
	"github.com/kotae-ai/kotae/internal/models"
	"github.com/kotae-ai/kotae/internal/retrieval"
	"github.com/kotae-ai/kotae/internal/storage"
)

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r.Context())
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ask request", zap.String("tenant_id", tenantID))

	answer, err := s.engine.Ask(r.Context(), tenantID, req.Query)
	if err != nil {
		s.respondPipelineError(w, tenantID, err)
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Ingest.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "multipart file field required")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if !s.extensionAllowed(ext) {
		s.respondError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported file type %s", ext))
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}

	docID := uuid.New().String()
	filePath, err := s.saveUpload(tenantID, docID, filename, content)
	if err != nil {
		s.logger.Error("save upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	result, err := s.ingestor.Ingest(r.Context(), tenantID, docID, filename, content)
	if err != nil {
		_ = os.Remove(filePath)
		if errors.Is(err, ingest.ErrNoText) {
			s.respondError(w, http.StatusUnprocessableEntity, "document contains no extractable text")
			return
		}
		s.logger.Error("ingestion failed",
			zap.String("tenant_id", tenantID),
			zap.String("filename", filename),
			zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "ingestion failed")
		return
	}

	doc := &models.Document{
		ID:         docID,
		TenantID:   tenantID,
		Filename:   filename,
		FilePath:   filePath,
		ChunkCount: result.ChunkCount,
	}
	if err := s.store.CreateDocument(r.Context(), doc); err != nil {
		s.logger.Error("catalog insert failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "could not record document")
		return
	}
	s.respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r.Context())
	docs, err := s.store.ListDocuments(r.Context(), tenantID)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r.Context())
	id := chi.URLParam(r, "id")

	doc, err := s.store.GetDocument(r.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.ingestor.Remove(r.Context(), tenantID, id); err != nil {
		s.logger.Error("index deletion failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "could not delete document vectors")
		return
	}
	if doc.FilePath != "" {
		_ = os.Remove(doc.FilePath)
	}
	if err := s.store.DeleteDocument(r.Context(), tenantID, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r.Context())
	docCount, err := s.store.CountDocuments(r.Context(), tenantID)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"documents":         docCount,
		"vector_index_size": s.index.Size(),
		"config": map[string]interface{}{
			"vector_index_type":    s.config.Vector.IndexType,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"chunk_size":           s.config.Retrieval.ChunkSize,
			"chunk_overlap":        s.config.Retrieval.ChunkOverlap,
			"n_candidates":         s.config.Retrieval.NCandidates,
			"n_selected":           s.config.Retrieval.NSelected,
		},
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.VectorIndexPath,
		s.config.Storage.UploadsDir,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// saveUpload writes the raw document under <uploads>/<tenant>/<docID>_<filename>.
func (s *Server) saveUpload(tenantID, docID, filename string, content []byte) (string, error) {
	dir := filepath.Join(s.config.Storage.UploadsDir, tenantID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(dir, docID+"_"+filename)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}

func (s *Server) extensionAllowed(ext string) bool {
	for _, allowed := range s.config.Ingest.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// respondPipelineError maps pipeline errors onto HTTP statuses. Isolation
// violations are server faults and are logged loudly; the client only sees
// a generic 500.
func (s *Server) respondPipelineError(w http.ResponseWriter, tenantID string, err error) {
	var verr *retrieval.ValidationError
	if errors.As(err, &verr) {
		s.respondError(w, http.StatusBadRequest, verr.Reason)
		return
	}
	var ierr *retrieval.IsolationError
	if errors.As(err, &ierr) {
		s.logger.Error("tenant isolation violation surfaced to API",
			zap.String("query_tenant", ierr.QueryTenant),
			zap.String("record_tenant", ierr.RecordTenant),
			zap.String("document_id", ierr.DocumentID))
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	var uerr *retrieval.UpstreamError
	if errors.As(err, &uerr) {
		s.logger.Error("pipeline stage failed",
			zap.String("tenant_id", tenantID),
			zap.String("stage", string(uerr.Stage)),
			zap.Error(uerr.Err))
		s.respondError(w, http.StatusServiceUnavailable, "a dependency is unavailable")
		return
	}
	s.logger.Error("ask failed", zap.String("tenant_id", tenantID), zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
