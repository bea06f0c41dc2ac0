package handler

import (
	"github.com/gin-gonic/gin"
	"trude.com/internal/ledger/core/service"
	"trude.com/pkg/common"
	"trude.com/pkg/xerr"
)

type Affiliate struct {
	svc *service.AffiliateService
}

func NewAffiliate(svc *service.AffiliateService) *Affiliate {
	return &Affiliate{svc: svc}
}

type registerAffiliateReq struct {
	UserAddress     string `json:"userAddress" binding:"required"`
	ReferrerAddress string `json:"referrerAddress" binding:"required"`
}

func (h *Affiliate) Register(c *gin.Context) {
	var req registerAffiliateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.New(xerr.RequestParamsError, "请求体不合法"))
		return
	}
	a, err := h.svc.Register(c.Request.Context(), req.UserAddress, req.ReferrerAddress)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, a)
}
