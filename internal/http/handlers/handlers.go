package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	platformerrors "github.com/yungbote/fablecast-backend/internal/platform/errors"
)

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, platformerrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, platformerrors.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, platformerrors.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
