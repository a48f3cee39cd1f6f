package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/docrag-go/internal/ingestion"
	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/store"
)

// uploadField is the multipart form field carrying the PDFs.
const uploadField = "pdfs"

// multipartMemory is how much of a multipart body is held in memory before
// parts spill to disk.
const multipartMemory = 32 << 20

// genericError replaces internal error text when HideErrors is set.
const genericError = "internal server error"

// handleRoot handles GET / and reports that the API is up.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, statusResponse{
		Message: "RAG API is running. Available endpoints: /upload, /query, /clear",
		Status:  "ok",
	})
}

// handleHealth handles GET /health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload handles POST /upload. Every file in the "pdfs" field is
// ingested and reported on individually; one bad file does not fail the
// request.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	tooLarge := fmt.Sprintf("Upload exceeds the %d byte limit.", s.cfg.MaxUploadBytes)
	if r.ContentLength > s.cfg.MaxUploadBytes {
		writeError(w, r, http.StatusRequestEntityTooLarge, tooLarge)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, tooLarge)
			return
		}
		writeError(w, r, http.StatusBadRequest, "Expected a multipart/form-data body.")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Warn("upload: remove multipart temp files", slog.Any("error", err))
		}
	}()

	files := r.MultipartForm.File[uploadField]
	if len(files) == 0 {
		writeError(w, r, http.StatusBadRequest, "At least one PDF is required in the 'pdfs' field.")
		return
	}

	uploads := make([]ingestion.Upload, len(files))
	for i, fh := range files {
		uploads[i] = ingestion.Upload{
			Filename: fh.Filename,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		}
	}

	results := s.ingester.IngestBatch(r.Context(), uploads)
	for _, res := range results {
		s.metrics.uploadFilesTotal.WithLabelValues(res.Status).Inc()
	}
	log.Info("upload processed", slog.Int("files", len(results)))

	writeJSON(w, r, http.StatusOK, uploadResponse{Message: "PDFs processed", Results: results})
}

// handleQuery handles POST /query and answers the question in the body.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.metrics.queryRequestsTotal.WithLabelValues("invalid").Inc()
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if req.Query == "" {
		s.metrics.queryRequestsTotal.WithLabelValues("invalid").Inc()
		writeError(w, r, http.StatusBadRequest, "Query is required.")
		return
	}

	answer, err := s.engine.Answer(r.Context(), req.Query)
	if err != nil {
		s.metrics.queryRequestsTotal.WithLabelValues("error").Inc()
		s.metrics.queryDurationSeconds.WithLabelValues("error").Observe(time.Since(start).Seconds())
		log.Error("query failed", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, s.errorMessage(err))
		return
	}

	s.metrics.queryRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.queryDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	writeJSON(w, r, http.StatusOK, queryResponse{Answer: answer})
}

// handleClear handles POST /clear and deletes every stored document.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	n, err := store.Clear(r.Context(), s.store)
	if err != nil {
		log.Error("clear failed", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, "Failed to clear database: "+s.errorMessage(err))
		return
	}

	msg := "Database is already empty."
	if n > 0 {
		msg = fmt.Sprintf("Database cleared successfully. %d documents removed.", n)
	}
	log.Info("store cleared", slog.Int("count", n))
	writeJSON(w, r, http.StatusOK, statusResponse{Message: msg, Status: "success", Count: &n})
}

// errorMessage returns the text exposed to clients for an internal error.
func (s *Server) errorMessage(err error) string {
	if s.cfg.HideErrors {
		return genericError
	}
	return err.Error()
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError writes {"error": msg} with the given status.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}
