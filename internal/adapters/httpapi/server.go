// Package httpapi exposes mapping runs over HTTP, including the NDJSON
// streaming wire form of the run lifecycle events.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/appatlas/appmap/internal/domain"
	"github.com/appatlas/appmap/internal/usecases"
)

// Logger defines the logging interface required by the HTTP adapter.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// Mapper is the buffered-run surface the server depends on.
type Mapper interface {
	Run(ctx context.Context, input domain.RunInput, onProgress usecases.ProgressFunc) (*domain.RunResult, error)
}

// Broadcaster is the streaming-run surface the server depends on.
type Broadcaster interface {
	Stream(ctx context.Context, input domain.RunInput) <-chan domain.RunEvent
}

// ServerConfig holds HTTP adapter settings.
type ServerConfig struct {
	// DefaultConcurrency is used when a request omits maxConcurrency.
	DefaultConcurrency int

	// MaxUploadBytes bounds dataset uploads.
	MaxUploadBytes int64
}

// Server routes mapping, extraction, and export requests.
type Server struct {
	mapper      Mapper
	broadcaster Broadcaster
	extractor   domain.DatasetExtractor
	exporter    domain.ResultExporter
	logger      Logger
	cfg         ServerConfig
}

// NewServer creates a Server with the given collaborators.
func NewServer(
	cfg ServerConfig,
	mapper Mapper,
	broadcaster Broadcaster,
	extractor domain.DatasetExtractor,
	exporter domain.ResultExporter,
	log Logger,
) *Server {
	return &Server{
		mapper:      mapper,
		broadcaster: broadcaster,
		extractor:   extractor,
		exporter:    exporter,
		logger:      log,
		cfg:         cfg,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/map", s.handleMap)
	mux.HandleFunc("POST /api/map/stream", s.handleMapStream)
	mux.HandleFunc("POST /api/extract", s.handleExtract)
	mux.HandleFunc("POST /api/export", s.handleExport)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// mapRequest is the request body for both mapping endpoints.
// MaxConcurrency is a pointer so an omitted field falls back to the server
// default while an explicit zero still fails validation.
type mapRequest struct {
	Physicals      []domain.ApplicationRecord `json:"physicals"`
	Logicals       []domain.ApplicationRecord `json:"logicals"`
	Context        string                     `json:"context"`
	MaxConcurrency *int                       `json:"maxConcurrency"`
}

// runInput converts the request body into domain input.
func (s *Server) runInput(req mapRequest) domain.RunInput {
	maxConcurrency := s.cfg.DefaultConcurrency
	if req.MaxConcurrency != nil {
		maxConcurrency = *req.MaxConcurrency
	}
	return domain.RunInput{
		Physicals:      req.Physicals,
		Logicals:       req.Logicals,
		Context:        req.Context,
		MaxConcurrency: maxConcurrency,
	}
}

// handleMap runs a buffered mapping: the response is a single JSON payload
// delivered after the whole batch completes.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	var req mapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}

	result, err := s.mapper.Run(r.Context(), s.runInput(req), nil)
	if err != nil {
		if domain.IsValidationError(err) {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleMapStream runs a streaming mapping: lifecycle events are written as
// newline-delimited JSON, one event per line, flushed per event. The
// connection closes after the terminal event. A client disconnect cancels
// the request context, which stops new oracle dispatches.
func (s *Server) handleMapStream(w http.ResponseWriter, r *http.Request) {
	var req mapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("streaming unsupported by connection"))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(w)
	for event := range s.broadcaster.Stream(r.Context(), s.runInput(req)) {
		if err := encoder.Encode(event); err != nil {
			// Client went away mid-write; the run context is already
			// cancelled, just drain the channel so the producer exits.
			s.logger.Debug(r.Context(), "stream write failed", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		flusher.Flush()
	}
}

// extractResponse is the payload of a successful extraction.
type extractResponse struct {
	Records []domain.ApplicationRecord `json:"records"`
	Count   int                        `json:"count"`
}

// handleExtract accepts a multipart dataset upload and returns the extracted
// application records.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("malformed multipart request: %w", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	opts := domain.ExtractOptions{
		IDColumn:    r.FormValue("idColumn"),
		NameColumn:  r.FormValue("nameColumn"),
		TextColumns: splitColumns(r.FormValue("textColumns")),
	}

	records, err := s.extractor.Extract(r.Context(), file, header.Filename, opts)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrUnsupportedFormat) ||
			errors.Is(err, domain.ErrColumnNotFound) ||
			errors.Is(err, domain.ErrEmptyDataset) {
			status = http.StatusBadRequest
		}
		s.writeError(w, r, status, err)
		return
	}

	s.writeJSON(w, http.StatusOK, extractResponse{Records: records, Count: len(records)})
}

// exportRequest is the request body for workbook export.
type exportRequest struct {
	Mappings []domain.MappingRecord `json:"mappings"`
	Summary  domain.RunSummary      `json:"summary"`
}

// handleExport renders a completed run to an xlsx attachment.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}
	if len(req.Mappings) == 0 {
		s.writeError(w, r, http.StatusBadRequest, errors.New("no mappings to export"))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="application-mapping.xlsx"`)

	if err := s.exporter.WriteWorkbook(w, req.Mappings, req.Summary); err != nil {
		// Headers are already out; all we can do is log and drop the conn.
		s.logger.Error(r.Context(), "failed to write export workbook", err, nil)
	}
}

// splitColumns parses a comma-separated column list.
func splitColumns(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			cols = append(cols, trimmed)
		}
	}
	return cols
}

// writeJSON writes a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn(context.Background(), "failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// writeError writes a JSON error body and logs server-side failures.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", err, map[string]interface{}{
			"path":   r.URL.Path,
			"status": status,
		})
	} else {
		s.logger.Warn(r.Context(), "request rejected", map[string]interface{}{
			"path":   r.URL.Path,
			"status": status,
			"error":  err.Error(),
		})
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
