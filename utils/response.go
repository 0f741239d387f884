package utils

import (
	"github.com/gin-gonic/gin"
)

// Envelope is the body of every API response. Successful responses carry
// Data, failed ones carry Error.
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSONResponse writes a success envelope
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, Envelope{Status: status, Message: message, Data: data})
}

// JSONError writes a failure envelope. A nil err falls back to the message.
func JSONError(c *gin.Context, status int, err error, message string) {
	detail := message
	if err != nil {
		detail = err.Error()
	}
	c.JSON(status, Envelope{Status: status, Message: message, Error: detail})
}
