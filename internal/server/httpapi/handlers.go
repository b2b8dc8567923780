package httpapi

import (
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mpetrovs/attachsync/internal/common"
	"github.com/mpetrovs/attachsync/internal/logging"
	"github.com/mpetrovs/attachsync/internal/server/chunks"
	"github.com/mpetrovs/attachsync/internal/server/models"
	"github.com/mpetrovs/attachsync/internal/server/syncer"
	"github.com/mpetrovs/attachsync/internal/server/webhooks"
)

// Handler bundles the service dependencies behind the HTTP routes.
type Handler struct {
	orch     *syncer.Orchestrator
	chunks   *chunks.Manager
	ingestor *webhooks.Ingestor
	logger   logging.Logger
}

func NewHandler(orch *syncer.Orchestrator, chunkMgr *chunks.Manager, ingestor *webhooks.Ingestor, logger logging.Logger) *Handler {
	return &Handler{orch: orch, chunks: chunkMgr, ingestor: ingestor, logger: logger.With("module", "httpapi")}
}

type attachmentBody struct {
	ID          string     `json:"id"`
	RemoteGUID  *string    `json:"remoteGuid"`
	WorkItemID  int64      `json:"workItemId"`
	FileName    string     `json:"fileName"`
	SizeBytes   int64      `json:"sizeBytes"`
	ContentHash string     `json:"contentHash"`
	Origin      string     `json:"origin"`
	SyncStatus  string     `json:"syncStatus"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

func toAttachmentBody(rec *models.AttachmentRecord) attachmentBody {
	return attachmentBody{
		ID:          rec.ID,
		RemoteGUID:  rec.RemoteGUID,
		WorkItemID:  rec.WorkItemID,
		FileName:    rec.FileName,
		SizeBytes:   rec.SizeBytes,
		ContentHash: rec.ContentHash,
		Origin:      rec.Origin,
		SyncStatus:  rec.SyncStatus,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		DeletedAt:   rec.DeletedAt,
	}
}

type uploadRequest struct {
	FileName   string `json:"fileName"`
	WorkItemID int64  `json:"workItemId"`
	// Content is the base64-encoded file or chunk body.
	Content string `json:"content"`

	// Chunked mode. The first chunk carries TotalChunks and TotalSize and no
	// SessionUUID; the response hands back the session id for the rest.
	SessionUUID string `json:"sessionUuid,omitempty"`
	ChunkIndex  int    `json:"chunkIndex,omitempty"`
	TotalChunks int    `json:"totalChunks,omitempty"`
	TotalSize   int64  `json:"totalSize,omitempty"`
}

type chunkResponse struct {
	SessionUUID     string          `json:"sessionUuid"`
	ChunksReceived  int             `json:"chunksReceived"`
	TotalChunks     int             `json:"totalChunks"`
	PercentComplete float64         `json:"percentComplete"`
	Attachment      *attachmentBody `json:"attachment,omitempty"`
}

// Upload accepts a whole file, or one chunk of a chunked upload session.
// Chunked mode is selected by sessionUuid or totalChunks being present; once
// the last chunk arrives the session is assembled and stored like a plain
// upload.
func (h *Handler) Upload(c *gin.Context) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content must be base64"})
		return
	}

	if req.SessionUUID == "" && req.TotalChunks == 0 {
		rec, err := h.orch.Upload(c.Request.Context(), data, req.FileName, req.WorkItemID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, toAttachmentBody(rec))
		return
	}

	h.uploadChunk(c, req, data)
}

func (h *Handler) uploadChunk(c *gin.Context, req uploadRequest, data []byte) {
	ctx := c.Request.Context()

	sessionID := req.SessionUUID
	if sessionID == "" {
		id, err := h.chunks.Begin(ctx, req.FileName, req.TotalSize, req.TotalChunks)
		if err != nil {
			h.writeError(c, err)
			return
		}
		sessionID = id
	}

	progress, err := h.chunks.Append(ctx, sessionID, req.ChunkIndex, data)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := chunkResponse{
		SessionUUID:     sessionID,
		ChunksReceived:  progress.Received,
		TotalChunks:     progress.TotalChunks,
		PercentComplete: progress.PercentComplete(),
	}

	if progress.Received == progress.TotalChunks {
		assembled, fileName, err := h.chunks.Assemble(ctx, sessionID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		rec, err := h.orch.Upload(ctx, assembled, fileName, req.WorkItemID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		body := toAttachmentBody(rec)
		resp.Attachment = &body
		c.JSON(http.StatusCreated, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type linkRequest struct {
	WorkItemID    int64  `json:"workItemId"`
	AttachmentURL string `json:"attachmentUrl"`
	FileName      string `json:"fileName"`
	Comment       string `json:"comment"`
}

func (h *Handler) LinkAttachment(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	jobID, err := h.orch.Link(c.Request.Context(), req.WorkItemID, req.AttachmentURL, req.FileName, req.Comment)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
}

// ListAttachments returns the local view plus a best-effort remote listing.
// When the tracker is unreachable the response still carries the local rows,
// with a warning instead of an error status.
func (h *Handler) ListAttachments(c *gin.Context) {
	workItemID, err := paramWorkItemID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ctx := c.Request.Context()

	local, err := h.orch.ListLocal(ctx, workItemID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	localBodies := make([]attachmentBody, 0, len(local))
	for _, rec := range local {
		localBodies = append(localBodies, toAttachmentBody(rec))
	}

	summary, err := h.orch.Status(ctx, workItemID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := gin.H{
		"workItemId":       workItemID,
		"localAttachments": localBodies,
		"counts": gin.H{
			"pending": summary.Summary.Pending,
			"synced":  summary.Summary.Synced,
			"failed":  summary.Summary.Failed,
		},
	}

	remoteList, err := h.orch.FetchRemote(ctx, workItemID)
	if err != nil {
		h.logger.Warn(ctx, "remote listing unavailable", "work_item_id", workItemID, "error", err)
		resp["adoAttachments"] = []any{}
		resp["warning"] = "remote view unavailable"
	} else {
		resp["adoAttachments"] = remoteList
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ForceSync(c *gin.Context) {
	workItemID, err := paramWorkItemID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	jobID, err := h.orch.ForceSync(c.Request.Context(), workItemID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "SYNCING", "jobId": jobID})
}

type downloadRequest struct {
	FileName   string `json:"fileName"`
	WorkItemID int64  `json:"workItemId"`
}

func (h *Handler) Download(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	_, data, err := h.orch.Download(c.Request.Context(), c.Param("attachmentGuid"), req.FileName, req.WorkItemID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": req.FileName}))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

type jobBody struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"lastError,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type eventBody struct {
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) Status(c *gin.Context) {
	workItemID, err := paramWorkItemID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	report, err := h.orch.Status(c.Request.Context(), workItemID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	jobs := make([]jobBody, 0, len(report.Jobs))
	for _, j := range report.Jobs {
		jobs = append(jobs, jobBody{
			ID: j.ID, Type: j.Type, Status: j.Status, Attempts: j.Attempts,
			LastError: j.LastError, CreatedAt: j.CreatedAt, CompletedAt: j.CompletedAt,
		})
	}
	events := make([]eventBody, 0, len(report.Events))
	for _, e := range report.Events {
		events = append(events, eventBody{Severity: e.Severity, Message: e.Message, CreatedAt: e.CreatedAt})
	}

	c.JSON(http.StatusOK, gin.H{
		"workItemId": workItemID,
		"counts": gin.H{
			"pending": report.Summary.Pending,
			"synced":  report.Summary.Synced,
			"failed":  report.Summary.Failed,
		},
		"recentJobs":   jobs,
		"recentEvents": events,
	})
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.orch.Delete(c.Request.Context(), c.Param("attachmentGuid")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DedupCheck(c *gin.Context) {
	rec, err := h.orch.DedupCheck(c.Request.Context(), c.Param("hash"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusOK, gin.H{"isDuplicate": false, "attachment": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"isDuplicate": true, "attachment": toAttachmentBody(rec)})
}

func (h *Handler) SessionProgress(c *gin.Context) {
	progress, err := h.chunks.Progress(c.Request.Context(), c.Param("sessionUuid"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chunkResponse{
		SessionUUID:     progress.SessionID,
		ChunksReceived:  progress.Received,
		TotalChunks:     progress.TotalChunks,
		PercentComplete: progress.PercentComplete(),
	})
}

func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	result, err := h.ingestor.Ingest(c.Request.Context(), body, c.GetHeader(webhooks.SignatureHeader))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"workItemId": result.WorkItemID,
		"jobType":    result.JobType,
		"replay":     result.Replay,
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, common.ErrorConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrorUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	default:
		h.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func paramWorkItemID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("workItemId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.ErrorValidation
	}
	return id, nil
}
