package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pos-platform/ledger-service/pkg/errors"
)

// APIErrorResponse is the standard error response body
type APIErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	Timestamp string            `json:"timestamp"`
	Path      string            `json:"path"`
}

// ErrorHandler middleware converts errors attached to the context into the
// standard error response. Handlers attach errors with c.Error and abort.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		appErr := errors.FromError(err)

		if c.Writer.Written() {
			return
		}

		c.JSON(appErr.HTTPStatus, buildErrorResponse(c, appErr))
	}
}

func buildErrorResponse(c *gin.Context, appErr *errors.AppError) APIErrorResponse {
	return APIErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
	}
}

// AbortWithError attaches an error and aborts request processing. The error
// is rendered by the ErrorHandler middleware.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// AbortWithAppError renders an AppError response immediately
func AbortWithAppError(c *gin.Context, appErr *errors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, buildErrorResponse(c, appErr))
}

// RespondNotFound renders a 404 response for an unknown resource
func RespondNotFound(c *gin.Context, resource string) {
	AbortWithAppError(c, errors.ErrNotFound(resource))
}

// RespondValidationError renders a 400 response with field details
func RespondValidationError(c *gin.Context, message string, fields map[string]string) {
	AbortWithAppError(c, errors.ErrValidationWithFields(message, fields))
}

// RespondInternalError renders a 500 response without leaking internals
func RespondInternalError(c *gin.Context) {
	AbortWithAppError(c, errors.ErrInternal(""))
}

// Respond writes a success response with the given status and payload
func Respond(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// RespondOK writes a 200 response
func RespondOK(c *gin.Context, payload interface{}) {
	Respond(c, http.StatusOK, payload)
}

// RespondCreated writes a 201 response
func RespondCreated(c *gin.Context, payload interface{}) {
	Respond(c, http.StatusCreated, payload)
}
