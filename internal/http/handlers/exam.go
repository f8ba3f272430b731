package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/services"
)

type ExamHandler struct {
	svc services.ExamService
}

func NewExamHandler(svc services.ExamService) *ExamHandler {
	return &ExamHandler{svc: svc}
}

type createExamRequest struct {
	Title             string `json:"title"`
	QuestionsPerChunk int    `json:"questions_per_chunk"`
}

// POST /api/ebooks/:id/exam
func (h *ExamHandler) Create(c *gin.Context) {
	ebookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ebook id"})
		return
	}
	// Body is optional; defaults cover everything.
	var req createExamRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ex, job, err := h.svc.Create(dbctx.Context{Ctx: c.Request.Context()}, services.CreateExamInput{
		EbookID:           ebookID,
		Title:             req.Title,
		QuestionsPerChunk: req.QuestionsPerChunk,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"exam": ex, "job": job})
}

// POST /api/exams/:id/resume
func (h *ExamHandler) Resume(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam id"})
		return
	}
	job, err := h.svc.Resume(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// GET /api/exams/:id/status
func (h *ExamHandler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam id"})
		return
	}
	status, err := h.svc.Status(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GET /api/exams/:id
func (h *ExamHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam id"})
		return
	}
	ex, questions, err := h.svc.Get(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exam": ex, "questions": questions})
}
