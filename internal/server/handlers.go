package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/mediabatch/internal/batch"
	"github.com/maauso/mediabatch/internal/pipeline"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *batch.Service
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateBatch only creates the batch and returns immediately
// without running it.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *batch.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          newValidator(),
		logger:             logger,
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("abspath", func(fl validator.FieldLevel) bool {
		return filepath.IsAbs(fl.Field().String())
	})
	return v
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateBatch handles POST /batches requests.
func (h *Handlers) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	created, err := h.service.CreateBatch(r.Context(), batch.CreateInput{
		Paths:   req.Paths,
		Config:  req.Config,
		Publish: req.Publish,
	})
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInvalidConfig), errors.Is(err, batch.ErrNoPaths):
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		case errors.Is(err, batch.ErrPublishUnavailable):
			writeError(w, http.StatusBadRequest, err.Error(), "PUBLISH_UNAVAILABLE")
		default:
			h.logger.Error("failed to create batch",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create batch", "BATCH_CREATION_FAILED")
		}
		return
	}

	// Run in background with a detached context so the batch outlives the request.
	if h.enableAsyncProcess {
		go func(ctx context.Context, batchID string) {
			if _, err := h.service.ProcessExisting(ctx, batchID); err != nil {
				h.logger.Error("background processing failed",
					slog.String("batch_id", batchID),
					slog.String("error", err.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), created.ID)
	}

	h.logger.Info("batch created",
		slog.String("batch_id", created.ID),
		slog.Int("files", len(req.Paths)),
	)

	writeJSON(w, http.StatusAccepted, CreateBatchResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// GetBatch handles GET /batches/{id} requests.
func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "batch ID is required", "MISSING_BATCH_ID")
		return
	}

	found, err := h.service.GetBatch(r.Context(), batchID)
	if err != nil {
		h.writeLookupError(w, batchID, err)
		return
	}

	writeJSON(w, http.StatusOK, toBatchResponse(found))
}

// ListBatches handles GET /batches requests.
func (h *Handlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListBatches(r.Context())
	if err != nil {
		h.logger.Error("failed to list batches", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list batches", "BATCH_FETCH_FAILED")
		return
	}

	resp := BatchListResponse{Batches: make([]BatchResponse, 0, len(list))}
	for _, b := range list {
		resp.Batches = append(resp.Batches, toBatchResponse(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelBatch handles POST /batches/{id}/cancel requests.
func (h *Handlers) CancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "batch ID is required", "MISSING_BATCH_ID")
		return
	}

	if err := h.service.CancelBatch(r.Context(), batchID); err != nil {
		if errors.Is(err, batch.ErrBatchFinished) {
			writeError(w, http.StatusConflict, "batch already finished", "BATCH_FINISHED")
			return
		}
		h.writeLookupError(w, batchID, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// DeleteBatch handles DELETE /batches/{id} requests. With ?outputs=true the
// surviving output files are removed as well.
func (h *Handlers) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "batch ID is required", "MISSING_BATCH_ID")
		return
	}

	removeOutputs := false
	if v := r.URL.Query().Get("outputs"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "outputs must be a boolean", "VALIDATION_ERROR")
			return
		}
		removeOutputs = parsed
	}

	if err := h.service.DeleteBatch(r.Context(), batchID, removeOutputs); err != nil {
		if errors.Is(err, batch.ErrBatchActive) {
			writeError(w, http.StatusConflict, "batch is still active", "BATCH_ACTIVE")
			return
		}
		h.writeLookupError(w, batchID, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, batchID string, err error) {
	if errors.Is(err, batch.ErrBatchNotFound) {
		writeError(w, http.StatusNotFound, "batch not found", "BATCH_NOT_FOUND")
		return
	}
	h.logger.Error("batch operation failed",
		slog.String("batch_id", batchID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "batch operation failed", "BATCH_FETCH_FAILED")
}

func toBatchResponse(b *batch.Batch) BatchResponse {
	resp := BatchResponse{
		ID:                 b.ID,
		Status:             string(b.Status),
		Error:              b.Error,
		Files:              len(b.Paths),
		Processed:          []string{},
		DeletedAsDuplicate: []string{},
		Errors:             []pipeline.FileError{},
		Skipped:            []string{},
		CreatedAt:          b.CreatedAt,
	}
	if !b.StartedAt.IsZero() {
		t := b.StartedAt
		resp.StartedAt = &t
	}
	if !b.CompletedAt.IsZero() {
		t := b.CompletedAt
		resp.CompletedAt = &t
	}
	if res := b.Result; res != nil {
		resp.Processed = append(resp.Processed, res.Processed...)
		resp.DeletedAsDuplicate = append(resp.DeletedAsDuplicate, res.DeletedAsDuplicate...)
		resp.Errors = append(resp.Errors, res.Errors...)
		resp.Skipped = append(resp.Skipped, res.Skipped...)
		resp.Warnings = res.Warnings
	}
	for _, p := range b.Publications {
		resp.Publications = append(resp.Publications, PublicationResponse{Path: p.Path, URL: p.URL})
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
