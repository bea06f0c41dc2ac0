package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"trude.com/pkg/common"
)

func ReqId() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(common.HeaderRequestID)
		if rid == "" {
			rid = common.New()
		}
		c.Set(common.CtxKeyRequestID, rid)
		// 写入 request context，方便 service 层日志读取
		ctx := context.WithValue(c.Request.Context(), common.CtxKeyRequestID, rid)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(common.HeaderRequestID, rid)
		c.Next()
	}
}
