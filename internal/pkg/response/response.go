package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes shared with the web client.
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeResourceNotFound = 1003
	CodeServerError      = 5000
)

var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "invalid request",
	CodeResourceNotFound: "resource not found",
	CodeServerError:      "internal server error",
}

// Response is the uniform JSON envelope.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}
