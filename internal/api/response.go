package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/vending-machine/internal/errors"
)

// Response 统一响应格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ok 成功响应
func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "ok",
		Data:    data,
	})
}

// fail 错误响应，HTTP状态码由错误码推导
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := int(errors.ErrUnknown)
	message := "内部错误"

	if appErr, ok := err.(*errors.AppError); ok {
		status = appErr.HTTPStatus()
		code = int(appErr.Code)
		message = appErr.Message
	} else if err != nil {
		message = err.Error()
	}

	c.JSON(status, Response{
		Code:    code,
		Message: message,
	})
}

// failParam 参数错误响应
func failParam(c *gin.Context, detail string) {
	fail(c, errors.New(errors.ErrInvalidParam, detail))
}
