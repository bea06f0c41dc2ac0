package handler

import (
	"github.com/gin-gonic/gin"
	"trude.com/internal/ledger/core/service"
	"trude.com/pkg/common"
	"trude.com/pkg/xerr"
)

type Revenue struct {
	svc *service.RevenueService
}

func NewRevenue(svc *service.RevenueService) *Revenue {
	return &Revenue{svc: svc}
}

func (h *Revenue) Metrics(c *gin.Context) {
	m, err := h.svc.Metrics(c.Request.Context())
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, m)
}

func (h *Revenue) ByVault(c *gin.Context) {
	rows, err := h.svc.ByVault(c.Request.Context())
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, gin.H{"vaults": rows})
}

func (h *Revenue) ByAffiliate(c *gin.Context) {
	rows, err := h.svc.ByAffiliate(c.Request.Context())
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, gin.H{"affiliates": rows})
}

type timeseriesQuery struct {
	Days       int    `form:"days,default=30"`
	VaultID    *int64 `form:"vaultId"`
	ReferrerID *int64 `form:"referrerId"`
}

func (h *Revenue) Timeseries(c *gin.Context) {
	var q timeseriesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		common.FailFromErr(c, xerr.New(xerr.RequestParamsError, "查询参数不合法"))
		return
	}
	res, err := h.svc.Timeseries(c.Request.Context(), q.Days, q.VaultID, q.ReferrerID)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, res)
}
