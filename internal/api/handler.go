package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/credrisk/diligence-engine/internal/middleware"
	"github.com/credrisk/diligence-engine/internal/models"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Store is the persistence surface the API needs.
type Store interface {
	CreateCompany(ctx context.Context, c *models.CompanyProfile) error
	GetCompany(ctx context.Context, requestID string) (*models.CompanyProfile, error)
	CreateJob(ctx context.Context, j *models.ResearchJob) error
	GetJob(ctx context.Context, id string) (*models.ResearchJob, error)
	ListJobsByRequest(ctx context.Context, requestID string) ([]models.ResearchJob, error)
	ListIterations(ctx context.Context, jobID string) ([]models.ResearchIteration, error)
	GetLatestReport(ctx context.Context, requestID string) (*models.Report, error)
	InsertAudit(ctx context.Context, e *models.AuditEntry) error
}

// Starter launches a job run detached from the request that created it.
type Starter interface {
	Start(job *models.ResearchJob, scope string)
}

// ObjectStore downloads rendered report documents. May be nil.
type ObjectStore interface {
	DownloadReport(ctx context.Context, key string) ([]byte, error)
}

// Handler holds the research API handlers.
type Handler struct {
	store   Store
	starter Starter
	objects ObjectStore
	log     *zap.Logger
}

func NewHandler(store Store, starter Starter, objects ObjectStore, log *zap.Logger) *Handler {
	return &Handler{store: store, starter: starter, objects: objects, log: log}
}

// Routes mounts the API onto a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/companies", h.RegisterCompany)
	r.Post("/api/research", h.CreateResearch)
	r.Get("/api/research", h.ListJobs)
	r.Get("/api/research/{id}", h.GetJob)
	r.Get("/api/reports/{requestID}", h.GetReport)
	r.Get("/api/reports/{requestID}/document", h.DownloadReport)
}

// RegisterCompany stores the company profile a request's jobs will research.
func (h *Handler) RegisterCompany(w http.ResponseWriter, r *http.Request) {
	var c models.CompanyProfile
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if c.RequestID == "" || c.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request_id and name are required"})
		return
	}
	if err := h.store.CreateCompany(r.Context(), &c); err != nil {
		h.log.Error("company registration failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save company"})
		return
	}
	h.audit(r, "company_registered", map[string]interface{}{
		"request_id": c.RequestID, "company": c.Name,
	})
	writeJSON(w, http.StatusCreated, c)
}

// CreateResearch validates a research request, creates the job and launches
// it detached. The response acknowledges scheduling, not completion.
func (h *Handler) CreateResearch(w http.ResponseWriter, r *http.Request) {
	var req models.ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ResearchResponse{Message: "invalid request body"})
		return
	}
	if req.RequestID == "" {
		writeJSON(w, http.StatusBadRequest, models.ResearchResponse{Message: "request_id is required"})
		return
	}
	jobType, ok := models.ParseJobType(req.JobType)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ResearchResponse{
			Message: "job_type must be one of directors_research, legal_research, negative_news, regulatory_research",
		})
		return
	}

	// Missing company context is the one non-recoverable condition; catch it
	// here so the caller gets an actionable message instead of a failed job.
	if _, err := h.store.GetCompany(r.Context(), req.RequestID); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, models.ResearchResponse{
			Message: "no company registered for request_id; register the company before requesting research",
		})
		return
	}

	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 3
	}
	if maxIterations > 5 {
		maxIterations = 5
	}
	strategy := models.IterationStrategy(req.Strategy)
	switch strategy {
	case models.StrategySingle:
		maxIterations = 1
	case models.StrategyMulti, models.StrategyAdaptive:
	default:
		strategy = models.StrategyMulti
	}

	job := &models.ResearchJob{
		ID:            uuid.NewString(),
		RequestID:     req.RequestID,
		JobType:       jobType,
		Status:        models.StatusPending,
		MaxIterations: maxIterations,
		Strategy:      strategy,
	}

	h.audit(r, "job_initiated", map[string]interface{}{
		"request_id": req.RequestID, "job_type": jobType,
		"max_iterations": maxIterations, "strategy": strategy,
	})

	if err := h.store.CreateJob(r.Context(), job); err != nil {
		h.log.Error("job creation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.ResearchResponse{Message: "failed to create job"})
		return
	}
	h.audit(r, "job_created", map[string]interface{}{
		"job_id": job.ID, "request_id": req.RequestID, "job_type": jobType,
	})

	h.starter.Start(job, req.ResearchScope)

	writeJSON(w, http.StatusAccepted, models.ResearchResponse{
		Success: true,
		JobID:   job.ID,
		Message: "research job scheduled",
	})
}

// GetJob returns one job with its iterations.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.store.GetJob(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	iterations, err := h.store.ListIterations(r.Context(), id)
	if err != nil {
		h.log.Error("iteration listing failed", zap.String("job_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
		return
	}
	if iterations == nil {
		iterations = []models.ResearchIteration{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job":        job,
		"iterations": iterations,
	})
}

// ListJobs returns all jobs for a request.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request_id query parameter is required"})
		return
	}
	jobs, err := h.store.ListJobsByRequest(r.Context(), requestID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
		return
	}
	if jobs == nil {
		jobs = []models.ResearchJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetReport returns the latest report for a request.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	rep, err := h.store.GetLatestReport(r.Context(), requestID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "report not available"})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// DownloadReport streams the stored report document.
func (h *Handler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	rep, err := h.store.GetLatestReport(r.Context(), requestID)
	if err != nil || rep.ObjectKey == "" || h.objects == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "report document not available"})
		return
	}
	data, err := h.objects.DownloadReport(r.Context(), rep.ObjectKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "download failed"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=report.json")
	w.Write(data)
}

func (h *Handler) audit(r *http.Request, action string, details map[string]interface{}) {
	entry := &models.AuditEntry{
		Action:    action,
		Details:   details,
		IPAddress: middleware.ClientIP(r.Context()),
		UserAgent: middleware.UserAgent(r.Context()),
		Timestamp: time.Now(),
	}
	if err := h.store.InsertAudit(r.Context(), entry); err != nil {
		h.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
