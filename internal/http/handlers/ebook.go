package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/services"
)

type EbookHandler struct {
	svc services.EbookService
}

func NewEbookHandler(svc services.EbookService) *EbookHandler {
	return &EbookHandler{svc: svc}
}

// POST /api/ebooks  (multipart: file, title, owner_user_id?)
func (h *EbookHandler) Create(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return
	}
	defer file.Close()

	ownerID := uuid.New()
	if raw := c.PostForm("owner_user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner_user_id"})
			return
		}
		ownerID = parsed
	}

	title := c.PostForm("title")
	if title == "" {
		title = fileHeader.Filename
	}

	eb, job, err := h.svc.Create(dbctx.Context{Ctx: c.Request.Context()}, services.CreateEbookInput{
		OwnerUserID: ownerID,
		Title:       title,
		FileExt:     filepath.Ext(fileHeader.Filename),
		File:        file,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ebook": eb, "job": job})
}

// POST /api/ebooks/:id/resume
func (h *EbookHandler) Resume(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ebook id"})
		return
	}
	job, err := h.svc.Resume(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// GET /api/ebooks/:id/status
func (h *EbookHandler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ebook id"})
		return
	}
	status, err := h.svc.Status(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GET /api/ebooks/:id
func (h *EbookHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ebook id"})
		return
	}
	eb, chapters, err := h.svc.Get(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ebook": eb, "chapters": chapters})
}
