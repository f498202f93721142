package httptransport

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"artifact-job-service/internal/service"
)

type Handler struct {
	jobSvc  *service.JobService
	baseURL string
}

func NewHandler(jobSvc *service.JobService, baseURL string) *Handler {
	return &Handler{jobSvc: jobSvc, baseURL: strings.TrimRight(baseURL, "/")}
}

type createJobDTO struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type createJobResp struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type jobResp struct {
	JobID       string  `json:"job_id"`
	Kind        string  `json:"kind"`
	Status      string  `json:"status"`
	Attempts    int     `json:"attempts"`
	BlobName    *string `json:"blob_name,omitempty"`
	ContentType *string `json:"content_type,omitempty"`
	Filename    *string `json:"filename,omitempty"`
	Error       *string `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type downloadResp struct {
	DownloadURL string `json:"download_url"`
	ExpiresIn   int    `json:"expires_in"`
}

// CreateJob godoc
// @Summary Submit a job
// @Description Records the job (queued) and enqueues it for background processing. kind may be omitted when the service registers a single handler.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body createJobDTO true "job kind and payload"
// @Success 201 {object} createJobResp
// @Failure 400 {object} apiError
// @Router /jobs [post]
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var dto createJobDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	j, err := h.jobSvc.CreateJob(r.Context(), dto.Kind, dto.Payload)
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createJobResp{
		JobID:     j.ID.String(),
		Status:    string(j.Status),
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	})
}

// GetJob godoc
// @Summary Get job status
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} jobResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	j, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobResp{
		JobID:       j.ID.String(),
		Kind:        j.Kind,
		Status:      string(j.Status),
		Attempts:    j.Attempts,
		BlobName:    j.ResultKey,
		ContentType: j.ContentType,
		Filename:    j.Filename,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   j.UpdatedAt.Format(time.RFC3339),
	})
}

// GetDownloadURL godoc
// @Summary Mint a time-limited download URL for a finished job
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} downloadResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id}/download [get]
func (h *Handler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	token, err := h.jobSvc.DownloadToken(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, downloadResp{
		DownloadURL: h.baseURL + "/download?token=" + token,
		ExpiresIn:   h.jobSvc.DownloadTTL(),
	})
}

// GetContent godoc
// @Summary Fetch the result bytes of a finished job
// @Tags jobs
// @Produce octet-stream
// @Param id path string true "job id (uuid)"
// @Success 200 {file} binary
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id}/content [get]
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	j, art, err := h.jobSvc.ResultArtifact(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	serveArtifact(w, art.ContentType, derefOr(j.Filename, ""), art.Data)
}

// Download redeems a minted token for the artifact it grants.
// @Summary Redeem a download token
// @Tags jobs
// @Produce octet-stream
// @Param token query string true "download token"
// @Success 200 {file} binary
// @Failure 403 {object} apiError
// @Failure 410 {object} apiError
// @Router /download [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeErr(w, http.StatusForbidden, "missing token")
		return
	}

	grant, art, err := h.jobSvc.Redeem(r.Context(), token)
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	contentType := art.ContentType
	if grant.ContentType != "" {
		contentType = grant.ContentType
	}
	serveArtifact(w, contentType, grant.Filename, art.Data)
}

// Health godoc
// @Summary Liveness probe
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

