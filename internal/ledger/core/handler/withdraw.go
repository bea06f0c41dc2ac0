package handler

import (
	"github.com/gin-gonic/gin"
	"trude.com/internal/ledger/core/service"
	"trude.com/pkg/common"
	"trude.com/pkg/xerr"
)

type Withdraw struct {
	svc *service.WithdrawService
}

func NewWithdraw(svc *service.WithdrawService) *Withdraw {
	return &Withdraw{svc: svc}
}

type capitalRequestReq struct {
	Mode        string `json:"mode" binding:"required"`
	UserAddress string `json:"userAddress" binding:"required"`
	VaultID     int64  `json:"vaultId" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Signature   string `json:"signature"`
	Nonce       int64  `json:"nonce"`
	Deadline    int64  `json:"deadline"`
}

func (h *Withdraw) RequestCapital(c *gin.Context) {
	var req capitalRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.New(xerr.RequestParamsError, "请求体不合法"))
		return
	}
	res, err := h.svc.RequestCapital(c.Request.Context(), service.CapitalRequestInput{
		Mode:        req.Mode,
		UserAddress: req.UserAddress,
		VaultID:     req.VaultID,
		Amount:      req.Amount,
		Signature:   req.Signature,
		Nonce:       req.Nonce,
		Deadline:    req.Deadline,
	})
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, res)
}

type capitalFinalizeReq struct {
	UserAddress string `json:"userAddress" binding:"required"`
	RequestID   int64  `json:"requestId" binding:"required"`
	TxHash      string `json:"txHash" binding:"required"`
}

func (h *Withdraw) FinalizeCapital(c *gin.Context) {
	var req capitalFinalizeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.New(xerr.RequestParamsError, "请求体不合法"))
		return
	}
	res, err := h.svc.FinalizeCapital(c.Request.Context(), req.UserAddress, req.RequestID, req.TxHash)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, res)
}

type profitRequestReq struct {
	UserAddress string `json:"userAddress" binding:"required"`
	ProfitID    int64  `json:"profitId" binding:"required"`
}

func (h *Withdraw) RequestProfit(c *gin.Context) {
	var req profitRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.New(xerr.RequestParamsError, "请求体不合法"))
		return
	}
	res, err := h.svc.RequestProfit(c.Request.Context(), req.UserAddress, req.ProfitID)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, res)
}

type profitFinalizeReq struct {
	UserAddress string `json:"userAddress" binding:"required"`
	ProfitID    int64  `json:"profitId" binding:"required"`
	TxHash      string `json:"txHash" binding:"required"`
}

func (h *Withdraw) FinalizeProfit(c *gin.Context) {
	var req profitFinalizeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.New(xerr.RequestParamsError, "请求体不合法"))
		return
	}
	p, err := h.svc.FinalizeProfit(c.Request.Context(), req.UserAddress, req.ProfitID, req.TxHash)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, p)
}

type affiliateRequestReq struct {
	UserAddress    string  `json:"userAddress" binding:"required"`
	AmountSmallest *string `json:"amountSmallest"`
}

func (h *Withdraw) RequestAffiliate(c *gin.Context) {
	var req affiliateRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.New(xerr.RequestParamsError, "请求体不合法"))
		return
	}
	id, err := h.svc.RequestAffiliate(c.Request.Context(), req.UserAddress, req.AmountSmallest)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, gin.H{"requestId": id})
}

type affiliateFinalizeReq struct {
	UserAddress string `json:"userAddress" binding:"required"`
	RequestID   int64  `json:"requestId" binding:"required"`
}

func (h *Withdraw) FinalizeAffiliate(c *gin.Context) {
	var req affiliateFinalizeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.New(xerr.RequestParamsError, "请求体不合法"))
		return
	}
	if err := h.svc.FinalizeAffiliate(c.Request.Context(), req.UserAddress, req.RequestID); err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, gin.H{"success": true})
}
