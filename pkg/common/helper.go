package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"trude.com/pkg/logger"
	"trude.com/pkg/xerr"
)

// 定义http返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FailFromErr 对外只回 code + message（data=null），日志里记完整错误
func FailFromErr(c *gin.Context, err error) {
	code := xerr.CodeOf(err)
	msg := xerr.MapErrMsg(code)
	if ce, ok := err.(*xerr.CodeError); ok && ce.Msg != "" {
		msg = ce.Msg
	}
	logger.Warn(c, "http error",
		zap.String("request_id", RequestIDFromGin(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("biz_code", code),
		zap.Error(err),
	)
	Fail(c, mapBizToHTTP(code), code, msg)
}

func mapBizToHTTP(code int) int {
	switch code {
	case xerr.RequestParamsError:
		return http.StatusBadRequest
	case xerr.Forbidden:
		return http.StatusForbidden
	case xerr.RecordNotFound:
		return http.StatusNotFound
	case xerr.Unavailable, xerr.DbError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
