package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleettrack/backend/internal/apperr"
	"github.com/fleettrack/backend/internal/i18n"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    apperr.Code `json:"code,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Message sends a 200 response whose data is a localized message.
func Message(c *gin.Context, key string) {
	b := i18n.Default()
	tag := b.Match(c.GetHeader("Accept-Language"))
	OK(c, gin.H{"message": b.Sprintf(tag, key)})
}

// Error sends the status and localized message for err. Errors without a code
// are reported as internal and their text is not exposed.
func Error(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Wrap(apperr.CodeInternal, err)
	}
	b := i18n.Default()
	tag := b.Match(c.GetHeader("Accept-Language"))
	c.JSON(appErr.Code.HTTPStatus(), Body{
		Success: false,
		Error:   appErr.Localize(b, tag),
		Code:    appErr.Code,
	})
}

// Abort is Error followed by c.Abort, for guards.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// BadRequest sends 400 with an invalid-input message.
func BadRequest(c *gin.Context, detail string) {
	Error(c, apperr.New(apperr.CodeInvalidInput, detail))
}
