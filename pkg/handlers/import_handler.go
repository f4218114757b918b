package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

// uploadFormField is the multipart field carrying the file.
const uploadFormField = "file"

// ImportHandler handles file previews and background batch imports.
type ImportHandler struct {
	importer       services.ImportService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewImportHandler creates a new import handler. maxUploadBytes bounds the
// whole multipart request.
func NewImportHandler(importer services.ImportService, maxUploadBytes int64, logger *zap.Logger) *ImportHandler {
	return &ImportHandler{
		importer:       importer,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// RegisterRoutes registers the import handler's routes on the given mux.
func (h *ImportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /csv/preview", h.Preview)
	mux.HandleFunc("POST /csv/import-async", h.StartImport)
	mux.HandleFunc("GET /csv/import/{id}/status", h.Status)
	mux.HandleFunc("POST /csv/import/{id}/cancel", h.Cancel)
	mux.HandleFunc("GET /csv/imports", h.List)
}

// Preview handles POST /csv/preview
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.FormValue("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, h.logger, "limit must be an integer")
			return
		}
		limit = n
	}

	preview, err := h.importer.Preview(data, limit)
	if err != nil {
		writeServiceError(w, h.logger, "Preview upload", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, preview)
}

// StartImport handles POST /csv/import-async. Form fields: kind, mapping
// (JSON object of column to field), default_source, skip_classification.
// Without a kind, uploads with a mapping are imported as mapped_csv and
// everything else as nps_csv.
func (h *ImportHandler) StartImport(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	req := services.ImportRequest{
		Kind:          models.ImportKind(strings.TrimSpace(r.FormValue("kind"))),
		Data:          data,
		DefaultSource: models.FeedbackSource(strings.TrimSpace(r.FormValue("default_source"))),
	}

	if raw := strings.TrimSpace(r.FormValue("mapping")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Mapping); err != nil {
			writeBadRequest(w, h.logger, "mapping must be a JSON object of column to field")
			return
		}
	}
	if req.Kind == "" {
		req.Kind = models.ImportKindNPSCSV
		if len(req.Mapping) > 0 {
			req.Kind = models.ImportKindMappedCSV
		}
	}
	if raw := r.FormValue("skip_classification"); raw != "" {
		skip, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, h.logger, "skip_classification must be a boolean")
			return
		}
		req.SkipClassification = skip
	}

	job, err := h.importer.StartImport(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "Start import", err)
		return
	}

	h.logger.Info("Import job accepted",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int("bytes", len(data)))
	writeData(w, h.logger, http.StatusAccepted, job)
}

// Status handles GET /csv/import/{id}/status
func (h *ImportHandler) Status(w http.ResponseWriter, r *http.Request) {
	job, err := h.importer.GetJob(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "Get import job", err)
		return
	}
	writeData(w, h.logger, http.StatusOK, job)
}

// Cancel handles POST /csv/import/{id}/cancel
func (h *ImportHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.importer.CancelJob(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "Cancel import job", err)
		return
	}
	writeData(w, h.logger, http.StatusOK, job)
}

// List handles GET /csv/imports
func (h *ImportHandler) List(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.logger, http.StatusOK, h.importer.ListJobs())
}

// readUpload reads the uploaded file, writing an error response on failure.
func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeBadRequest(w, h.logger, "upload exceeds the size limit")
			return nil, false
		}
		writeBadRequest(w, h.logger, "expected a multipart/form-data upload")
		return nil, false
	}

	file, _, err := r.FormFile(uploadFormField)
	if err != nil {
		writeBadRequest(w, h.logger, "missing upload field \"file\"")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read upload", zap.Error(err))
		writeBadRequest(w, h.logger, "failed to read upload")
		return nil, false
	}
	return data, true
}
