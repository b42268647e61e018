package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/response"
)

// HandleError maps the typed domain errors onto the response envelope.
// ConfirmationRequired gets its own response class so UIs can show an
// "are you sure?" prompt instead of a hard failure.
func HandleError(c *gin.Context, logger internal.Logger, err error) {
	requestID := c.GetString("request_id")

	var confirm *internal.ConfirmationRequiredError
	switch {
	case internal.IsValidation(err):
		logger.Warnf("[request_id=%s] rejected: %v", requestID, err)
		c.JSON(http.StatusBadRequest, response.BadRequest(err.Error()))
	case internal.IsNotFound(err):
		logger.Warnf("[request_id=%s] not found: %v", requestID, err)
		c.JSON(http.StatusNotFound, response.NotFound(err.Error()))
	case internal.IsConflict(err), internal.IsConcurrentUpdate(err):
		logger.Warnf("[request_id=%s] conflict: %v", requestID, err)
		c.JSON(http.StatusConflict, response.Conflict(err.Error()))
	case errors.As(err, &confirm):
		logger.Infof("[request_id=%s] confirmation required: %v", requestID, err)
		c.JSON(http.StatusUnprocessableEntity, response.ConfirmationRequired(err.Error(), confirm.Minutes))
	default:
		logger.Errorf("[request_id=%s] internal error: %v", requestID, err)
		c.JSON(http.StatusInternalServerError, response.InternalError(err.Error()))
	}
}

func HandleSuccess(c *gin.Context, logger internal.Logger, data interface{}, meta map[string]any) {
	requestID := c.GetString("request_id")
	logger.Infof("[request_id=%s] Success", requestID)
	c.JSON(http.StatusOK, response.Success(data, meta))
}

func HandleCreated(c *gin.Context, logger internal.Logger, data interface{}) {
	requestID := c.GetString("request_id")
	logger.Infof("[request_id=%s] Created", requestID)
	c.JSON(http.StatusCreated, response.Success(data, nil))
}
