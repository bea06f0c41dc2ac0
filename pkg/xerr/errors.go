package xerr

import (
	"errors"
	"fmt"
)

// 业务错误码定义
// 4xx 对应调用方问题，5xx 对应服务端问题
const (
	OK                 = 200
	RequestParamsError = 400 // 参数/金额非法、低于阈值、重复注册等
	Forbidden          = 403 // 非资源所有者、暂停状态、策略/签名校验失败
	RecordNotFound     = 404
	ServerCommonError  = 500
	DbError            = 501
	Unavailable        = 503 // 底层存储不可用，调用方可提示"服务繁忙"
)

type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// CodeOf 提取业务错误码，非 CodeError 一律视为服务端错误
func CodeOf(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ServerCommonError
}

// IsCode 判断错误是否携带指定业务码
func IsCode(err error, code int) bool {
	return CodeOf(err) == code
}

func MapErrMsg(code int) string {
	switch code {
	case ServerCommonError:
		return "服务器开小差了"
	case RequestParamsError:
		return "参数错误"
	case Forbidden:
		return "无权限操作"
	case DbError:
		return "数据库繁忙"
	case RecordNotFound:
		return "记录不存在"
	case Unavailable:
		return "服务暂不可用"
	default:
		return "未知错误"
	}
}
