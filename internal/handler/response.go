package handler

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/account-security/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewMessageResponse(message string) *Response {
	return &Response{
		Status:  "success",
		Message: message,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// BindJSON binds the request body into obj. On failure the error is attached
// to the context for the validation and error middleware to render, and
// false is returned.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid request body", err))
		return false
	}
	return true
}

// BindQuery is BindJSON for query parameters.
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid query parameters", err))
		return false
	}
	return true
}

// Fail attaches err for the error middleware.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
}
