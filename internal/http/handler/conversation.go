package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"companion.app/relay/common/logger"
	"companion.app/relay/internal/conversation"
	"companion.app/relay/internal/http/dto"
	"companion.app/relay/internal/model"
	"companion.app/relay/internal/pipeline"
)

type ConversationHandler struct {
	service     ConversationService
	traceHeader string
}

func NewConversationHandler(service ConversationService, traceHeader string) *ConversationHandler {
	return &ConversationHandler{
		service:     service,
		traceHeader: traceHeader,
	}
}

// Ingest appends a batch of transcript segments, starting the session on
// first sight.
func (h *ConversationHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid ingest request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// A caller-supplied trace ID links the queued jobs to the device's trace.
	if traceID := c.GetHeader(h.traceHeader); traceID != "" {
		sc := logger.StartSpanFromTraceID(ctx, traceID, "http.conversation.ingest")
		defer sc.End()
		ctx = sc.Context()
	}

	result, err := h.service.Ingest(ctx, pipeline.IngestEvent{
		SessionID: req.SessionID,
		DeviceID:  req.DeviceID,
		Source:    model.Source(req.Source),
		Segments:  req.ToSegments(),
	})
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInvalidEvent):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, conversation.ErrSessionEnded):
			c.JSON(http.StatusConflict, gin.H{"error": "session has already ended"})
		default:
			slog.ErrorContext(ctx, "failed to ingest segments", "error", err, "session_id", req.SessionID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest segments"})
		}
		return
	}

	resp := dto.IngestResponse{
		SessionID:    result.Session.SessionID,
		Status:       string(result.Session.Status),
		SegmentCount: len(result.Session.Segments),
		Accepted:     result.Accepted,
		Duplicates:   result.Duplicates,
		Persisted:    result.Persisted,
		Unlinked:     result.Session.Unlinked(),
	}
	if result.RealtimeJob != nil {
		resp.RealtimeJobID = result.RealtimeJob.ID
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *ConversationHandler) End(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")

	out, err := h.service.End(ctx, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(err, conversation.ErrMemoryCreation):
			slog.WarnContext(ctx, "memory creation failed, session left completed", "error", err, "session_id", sessionID)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create memory"})
		default:
			slog.ErrorContext(ctx, "failed to end conversation", "error", err, "session_id", sessionID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end conversation"})
		}
		return
	}

	resp := dto.EndResponse{
		SessionID:    out.Session.SessionID,
		Status:       string(out.Session.Status),
		MemoryID:     out.Session.MemoryID,
		Reason:       out.Reason,
		GraphUpdated: out.GraphUpdated,
		Persisted:    out.Persisted,
	}
	if out.Job != nil {
		resp.JobID = out.Job.ID
		resp.Priority = string(out.Job.Priority)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ConversationHandler) Reconcile(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")

	result, err := h.service.Reconcile(ctx, sessionID)
	if err != nil {
		if errors.Is(err, conversation.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to reconcile session", "error", err, "session_id", sessionID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reconcile session"})
		return
	}

	c.JSON(http.StatusOK, dto.ReconcileResponse{
		SessionID:    sessionID,
		Resolved:     result.Resolved,
		Unlinked:     result.Unlinked,
		Changed:      result.Changed,
		GraphUpdated: result.GraphUpdated,
	})
}

func (h *ConversationHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")

	s, err := h.service.Session(ctx, sessionID)
	if err != nil {
		if errors.Is(err, conversation.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load session", "error", err, "session_id", sessionID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	c.JSON(http.StatusOK, dto.NewSessionResponse(s))
}
