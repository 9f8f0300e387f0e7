package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"companion.app/relay/internal/http/dto"
	"companion.app/relay/internal/model"
	"companion.app/relay/internal/speaker"
)

type VoiceHandler struct {
	service VoiceService
}

func NewVoiceHandler(service VoiceService) *VoiceHandler {
	return &VoiceHandler{service: service}
}

func (h *VoiceHandler) Enroll(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.service.Enroll(ctx, req.DeviceID, req.Name, req.Embedding.ToModel())
	if err != nil {
		if errors.Is(err, speaker.ErrNameRequired) || errors.Is(err, speaker.ErrInvalidEmbedding) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to enroll voice profile", "error", err, "device_id", req.DeviceID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enroll voice profile"})
		return
	}

	c.JSON(http.StatusCreated, dto.NewVoiceProfileResponse(profile))
}

func (h *VoiceHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	deviceID := c.Query("device_id")
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_id is required"})
		return
	}

	profiles, err := h.service.Profiles(ctx, deviceID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list voice profiles", "error", err, "device_id", deviceID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list voice profiles"})
		return
	}

	resp := make([]dto.VoiceProfileResponse, len(profiles))
	for i := range profiles {
		resp[i] = dto.NewVoiceProfileResponse(&profiles[i])
	}
	c.JSON(http.StatusOK, resp)
}

// Link binds an external speaker ID to a profile and queues
// reconciliation of the sessions that heard that speaker.
func (h *VoiceHandler) Link(c *gin.Context) {
	ctx := c.Request.Context()

	profileID, err := strconv.ParseInt(c.Param("profile_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile id"})
		return
	}

	var req dto.LinkSpeakerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.service.LinkSpeaker(ctx, profileID, *req.SpeakerID)
	if err != nil {
		if errors.Is(err, speaker.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "voice profile not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to link speaker", "error", err, "profile_id", profileID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to link speaker"})
		return
	}

	c.JSON(http.StatusOK, dto.LinkSpeakerResponse{
		Profile:            dto.NewVoiceProfileResponse(out.Profile),
		ReconciliationJobs: jobIDs(out.Jobs),
	})
}

func (h *VoiceHandler) Identify(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IdentifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.service.IdentifySpeaker(ctx, req.DeviceID, *req.SpeakerID, req.Embedding.ToModel())
	if err != nil {
		if errors.Is(err, speaker.ErrInvalidEmbedding) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to identify speaker", "error", err, "device_id", req.DeviceID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to identify speaker"})
		return
	}

	resp := dto.IdentifyResponse{
		Accepted:           out.Match.Accepted,
		Scores:             make([]dto.MatchScore, len(out.Match.Scores)),
		ReconciliationJobs: jobIDs(out.Jobs),
	}
	for i, s := range out.Match.Scores {
		resp.Scores[i] = dto.MatchScore{ProfileID: s.ProfileID, Name: s.Name, Score: s.Score}
	}
	if out.Linked != nil {
		linked := dto.NewVoiceProfileResponse(out.Linked)
		resp.Linked = &linked
	}
	c.JSON(http.StatusOK, resp)
}

func jobIDs(jobs []*model.Job) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}
