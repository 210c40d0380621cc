package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// Version is reported by the health check
const Version = "1.0.0"

// Processor runs the pipeline on one document
type Processor interface {
	RunFile(ctx context.Context, path string) *entity.PipelineResult
}

// FormatChecker reports which document types the pipeline can ingest
type FormatChecker interface {
	Supports(path string) bool
	SupportedExtensions() []string
}

// Dependencies are the collaborators the handlers call into.
// Results may be nil, in which case the results endpoints answer 503.
type Dependencies struct {
	Processor      Processor
	Formats        FormatChecker
	Samples        port.DocumentStore
	Uploads        port.DocumentStore
	Results        port.ResultRepository
	MaxUploadBytes int64
	NewID          func() string
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps   Dependencies
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, logger Logger) *Handlers {
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Handlers{deps: deps, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ProcessSampleRequest names a file in the samples directory
type ProcessSampleRequest struct {
	SampleName string `json:"sample_name" binding:"required"`
}

// ListResultsRequest represents query parameters for listing results
type ListResultsRequest struct {
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
	Approved string `form:"approved"`
	Vendor   string `form:"vendor"`
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{Success: false, Error: msg})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
		},
	})
}

// ListSamples handles GET /api/samples
func (h *Handlers) ListSamples(c *gin.Context) {
	names, err := h.deps.Samples.List(h.deps.Formats.SupportedExtensions()...)
	if err != nil {
		h.logger.Error("Failed to list samples", "error", err)
		fail(c, http.StatusInternalServerError, "failed to list samples")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: names})
}

// ProcessUpload handles POST /api/process with a multipart "file" field
func (h *Handlers) ProcessUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "missing file field")
		return
	}
	if h.deps.MaxUploadBytes > 0 && fh.Size > h.deps.MaxUploadBytes {
		fail(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	if !h.deps.Formats.Supports(fh.Filename) {
		fail(c, http.StatusBadRequest, "unsupported file type; supported: "+strings.Join(h.deps.Formats.SupportedExtensions(), ", "))
		return
	}

	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "unreadable upload")
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		fail(c, http.StatusBadRequest, "unreadable upload")
		return
	}

	// Prefix keeps concurrent uploads of the same name apart
	name := h.deps.NewID()[:8] + "_" + fh.Filename
	path, err := h.deps.Uploads.Save(c.Request.Context(), name, content)
	if err != nil {
		h.logger.Error("Failed to store upload", "file", fh.Filename, "error", err)
		fail(c, http.StatusInternalServerError, "failed to store upload")
		return
	}

	h.respondWithRun(c, path)
}

// ProcessSample handles POST /api/process-sample
func (h *Handlers) ProcessSample(c *gin.Context) {
	var req ProcessSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "sample_name is required")
		return
	}

	name := strings.TrimSpace(req.SampleName)
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		fail(c, http.StatusBadRequest, "invalid sample name")
		return
	}
	path, err := h.deps.Samples.Resolve(name)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid sample name")
		return
	}
	if !h.deps.Samples.Exists(name) {
		fail(c, http.StatusNotFound, "sample not found")
		return
	}

	h.respondWithRun(c, path)
}

func (h *Handlers) respondWithRun(c *gin.Context, path string) {
	result := h.deps.Processor.RunFile(c.Request.Context(), path)
	if result == nil {
		fail(c, http.StatusInternalServerError, "pipeline returned no result")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// ListResults handles GET /api/results
func (h *Handlers) ListResults(c *gin.Context) {
	if h.deps.Results == nil {
		fail(c, http.StatusServiceUnavailable, "result store not configured")
		return
	}

	var req ListResultsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid query parameters")
		return
	}
	if req.Limit < 0 || req.Offset < 0 {
		fail(c, http.StatusBadRequest, "limit and offset must not be negative")
		return
	}

	filter := port.ResultFilter{Limit: req.Limit, Offset: req.Offset, Vendor: req.Vendor}
	if req.Approved != "" {
		approved, err := strconv.ParseBool(req.Approved)
		if err != nil {
			fail(c, http.StatusBadRequest, "approved must be true or false")
			return
		}
		filter.Approved = &approved
	}

	results, err := h.deps.Results.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list results", "error", err)
		fail(c, http.StatusInternalServerError, "failed to retrieve results")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: results})
}

// GetResult handles GET /api/results/:run_id
func (h *Handlers) GetResult(c *gin.Context) {
	if h.deps.Results == nil {
		fail(c, http.StatusServiceUnavailable, "result store not configured")
		return
	}

	result, err := h.deps.Results.GetByRunID(c.Request.Context(), c.Param("run_id"))
	if err != nil && !errors.Is(err, entity.ErrContractViolation) {
		h.logger.Error("Failed to get result", "run_id", c.Param("run_id"), "error", err)
		fail(c, http.StatusInternalServerError, "failed to retrieve result")
		return
	}
	if result == nil {
		fail(c, http.StatusNotFound, "result not found")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}
