package httptransport

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"textify/internal/repository/postgresql"
	"textify/internal/service"
)

// FileStore is the slice of the blob store the HTTP layer needs: storing
// uploads and serving signed result downloads.
type FileStore interface {
	Put(ctx context.Context, location string, data []byte, contentType string) error
	Get(ctx context.Context, location string) ([]byte, error)
	VerifyRaw(location, exp, sig string) bool
}

const maxUploadBytes = 32 << 20

type Handler struct {
	submit *service.SubmitService
	status *service.StatusService
	files  FileStore
}

func NewHandler(submit *service.SubmitService, status *service.StatusService, files FileStore) *Handler {
	return &Handler{submit: submit, status: status, files: files}
}

type uploadResp struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// UploadFile godoc
// @Summary Upload a document or image for text extraction
// @Description Stores the file, creates a job in UPLOADED state and schedules background extraction.
// @Tags jobs
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "document (PDF) or image (JPEG, PNG, GIF, BMP, WebP)"
// @Param user_id formData string false "owning user id"
// @Success 201 {object} uploadResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /jobs [post]
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "could not read file")
		return
	}
	if len(data) == 0 {
		writeErr(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	contentType := header.Header.Get("Content-Type")
	location := "uploads/" + uuid.NewString() + "/" + filepath.Base(header.Filename)
	if err := h.files.Put(r.Context(), location, data, contentType); err != nil {
		writeErr(w, http.StatusInternalServerError, "could not store file")
		return
	}

	id, err := h.submit.Submit(r.Context(), service.SubmitRequest{
		SourceLocation: location,
		Filename:       header.Filename,
		ContentType:    contentType,
		UserID:         r.FormValue("user_id"),
	})
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedType) {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		writeErr(w, http.StatusInternalServerError, "could not create job")
		return
	}

	writeJSON(w, http.StatusCreated, uploadResp{
		ID:      id.String(),
		Status:  "UPLOADED",
		Message: "File received and processing initiated.",
	})
}

// GetJobStatus godoc
// @Summary Get job status by id
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} service.ProjectedStatus
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	p, err := h.status.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "job not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "could not load job")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListRecentJobs godoc
// @Summary List recent jobs, newest first
// @Description Without user_id, pages through all jobs. With user_id, returns that user's newest job.
// @Tags jobs
// @Produce json
// @Param user_id query string false "return only the newest job for this user"
// @Param page query int false "page number (0-based)"
// @Param size query int false "page size (default 20, max 100)"
// @Success 200 {array} service.ProjectedStatus
// @Failure 404 {object} apiError
// @Failure 500 {object} apiError
// @Router /jobs [get]
func (h *Handler) ListRecentJobs(w http.ResponseWriter, r *http.Request) {
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		p, err := h.status.LatestForUser(r.Context(), userID)
		if err != nil {
			if errors.Is(err, postgresql.ErrNotFound) {
				writeErr(w, http.StatusNotFound, "no jobs for user")
				return
			}
			writeErr(w, http.StatusInternalServerError, "could not load job")
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	out, err := h.status.ListRecent(r.Context(), page, size)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "could not list jobs")
		return
	}
	if out == nil {
		out = []service.ProjectedStatus{}
	}
	writeJSON(w, http.StatusOK, out)
}

// DownloadResult godoc
// @Summary Redirect to a signed URL for a completed job's text
// @Tags jobs
// @Param id path string true "job id (uuid)"
// @Success 302
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /jobs/{id}/download [get]
func (h *Handler) DownloadResult(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	url, err := h.status.DownloadURL(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, postgresql.ErrNotFound):
			writeErr(w, http.StatusNotFound, "job not found")
		case errors.Is(err, service.ErrResultNotReady):
			writeErr(w, http.StatusConflict, "job not completed")
		default:
			writeErr(w, http.StatusInternalServerError, "could not sign download url")
		}
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// ServeFile verifies the exp/sig pair minted by the store and streams the
// blob. This is the collaborator behind the signed URLs.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	location := chi.URLParam(r, "*")
	q := r.URL.Query()
	if !h.files.VerifyRaw(location, q.Get("exp"), q.Get("sig")) {
		writeErr(w, http.StatusForbidden, "invalid or expired signature")
		return
	}

	data, err := h.files.Get(r.Context(), location)
	if err != nil {
		writeErr(w, http.StatusNotFound, "file not found")
		return
	}

	ct := mime.TypeByExtension(filepath.Ext(location))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
