package response

import "github.com/gin-gonic/gin"

const (
	CodeOK             = 0
	CodeBadRequest     = 40000
	CodeNotReady       = 40001
	CodeInvalidFile    = 40002
	CodeUnauthorized   = 40100
	CodeTaskNotFound   = 40401
	CodeBusy           = 40901
	CodeInternalServer = 50000
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type MessageBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

func Message(c *gin.Context, message string) {
	c.JSON(200, MessageBody{Success: true, Message: message})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, ErrorBody{
		Success: false,
		Code:    code,
		Message: message,
	})
}
