package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"companion.app/relay/internal/brain"
	"companion.app/relay/internal/http/dto"
	"companion.app/relay/internal/model"
)

// IntelligenceHandler serves what the extraction workers produced.
type IntelligenceHandler struct {
	commitments CommitmentService
	tasks       TaskService
	contacts    ContactService
}

func NewIntelligenceHandler(commitments CommitmentService, tasks TaskService, contacts ContactService) *IntelligenceHandler {
	return &IntelligenceHandler{
		commitments: commitments,
		tasks:       tasks,
		contacts:    contacts,
	}
}

func (h *IntelligenceHandler) ListCommitments(c *gin.Context) {
	status := model.CommitmentStatus(c.Query("status"))
	switch status {
	case "", model.CommitmentStatusPending, model.CommitmentStatusFulfilled, model.CommitmentStatusMissed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	c.JSON(http.StatusOK, h.commitments.List(c.Query("device_id"), status))
}

func (h *IntelligenceHandler) GetCommitment(c *gin.Context) {
	id, ok := commitmentID(c)
	if !ok {
		return
	}

	commitment, err := h.commitments.Get(id)
	if err != nil {
		h.commitmentError(c, err, id)
		return
	}
	c.JSON(http.StatusOK, commitment)
}

func (h *IntelligenceHandler) FulfillCommitment(c *gin.Context) {
	id, ok := commitmentID(c)
	if !ok {
		return
	}

	commitment, err := h.commitments.MarkFulfilled(c.Request.Context(), id)
	if err != nil {
		h.commitmentError(c, err, id)
		return
	}
	c.JSON(http.StatusOK, commitment)
}

func (h *IntelligenceHandler) MissCommitment(c *gin.Context) {
	id, ok := commitmentID(c)
	if !ok {
		return
	}

	commitment, err := h.commitments.MarkMissed(c.Request.Context(), id)
	if err != nil {
		h.commitmentError(c, err, id)
		return
	}
	c.JSON(http.StatusOK, commitment)
}

func (h *IntelligenceHandler) commitmentError(c *gin.Context, err error, id int64) {
	switch {
	case errors.Is(err, brain.ErrCommitmentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "commitment not found"})
	case errors.Is(err, brain.ErrCommitmentResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "commitment already resolved"})
	default:
		slog.ErrorContext(c.Request.Context(), "commitment operation failed", "error", err, "commitment_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "commitment operation failed"})
	}
}

func commitmentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("commitment_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid commitment id"})
		return 0, false
	}
	return id, true
}

func (h *IntelligenceHandler) ListTasks(c *gin.Context) {
	ctx := c.Request.Context()
	memoryID := c.Param("memory_id")

	tasks, err := h.tasks.ListByMemory(ctx, memoryID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list tasks", "error", err, "memory_id", memoryID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}
	if tasks == nil {
		tasks = []model.ExtractedTask{}
	}
	c.JSON(http.StatusOK, tasks)
}

// AddContact registers a name the relationship analyzer should look for.
func (h *IntelligenceHandler) AddContact(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact := &model.Contact{DeviceID: req.DeviceID, Name: req.Name}
	if err := h.contacts.Upsert(ctx, contact); err != nil {
		slog.ErrorContext(ctx, "failed to save contact", "error", err, "device_id", req.DeviceID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save contact"})
		return
	}
	c.JSON(http.StatusCreated, contact)
}

func (h *IntelligenceHandler) ListContacts(c *gin.Context) {
	ctx := c.Request.Context()

	deviceID := c.Query("device_id")
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_id is required"})
		return
	}

	contacts, err := h.contacts.ListByDevice(ctx, deviceID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list contacts", "error", err, "device_id", deviceID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list contacts"})
		return
	}
	if contacts == nil {
		contacts = []model.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}
