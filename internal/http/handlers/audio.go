package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/services"
)

type AudioHandler struct {
	svc services.AudioService
}

func NewAudioHandler(svc services.AudioService) *AudioHandler {
	return &AudioHandler{svc: svc}
}

type createAudioRequest struct {
	AudioMethod string `json:"audio_method"`
	Title       string `json:"title"`
}

// POST /api/ebooks/:id/audio
func (h *AudioHandler) Create(c *gin.Context) {
	ebookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ebook id"})
		return
	}
	var req createAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	col, job, err := h.svc.Create(dbctx.Context{Ctx: c.Request.Context()}, services.CreateAudioInput{
		EbookID:     ebookID,
		AudioMethod: req.AudioMethod,
		Title:       req.Title,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"collection": col, "job": job})
}

// POST /api/audio-collections/:id/resume
func (h *AudioHandler) Resume(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection id"})
		return
	}
	job, err := h.svc.Resume(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// GET /api/audio-collections/:id/status
func (h *AudioHandler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection id"})
		return
	}
	status, err := h.svc.Status(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GET /api/audio-collections/:id
func (h *AudioHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection id"})
		return
	}
	col, audios, err := h.svc.Get(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collection": col, "audios": audios})
}
