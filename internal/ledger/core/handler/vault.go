package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"trude.com/internal/ledger/core/service"
	"trude.com/pkg/common"
	"trude.com/pkg/xerr"
)

type Vault struct {
	svc *service.VaultService
}

func NewVault(svc *service.VaultService) *Vault {
	return &Vault{svc: svc}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		common.FailFromErr(c, xerr.New(xerr.RequestParamsError, "路径参数不合法"))
		return 0, false
	}
	return id, true
}

type createVaultReq struct {
	TokenAddress  string `json:"tokenAddress" binding:"required"`
	TokenSymbol   string `json:"tokenSymbol" binding:"required"`
	OwnerAddress  string `json:"ownerAddress" binding:"required"`
	LedgerAddress string `json:"ledgerAddress" binding:"required"`
}

func (h *Vault) Create(c *gin.Context) {
	var req createVaultReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.New(xerr.RequestParamsError, "请求体不合法"))
		return
	}
	v, err := h.svc.CreateVault(c.Request.Context(), service.CreateVaultInput{
		TokenAddress:  req.TokenAddress,
		TokenSymbol:   req.TokenSymbol,
		OwnerAddress:  req.OwnerAddress,
		LedgerAddress: req.LedgerAddress,
	})
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, v)
}

func (h *Vault) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteVault(c.Request.Context(), id); err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, gin.H{"success": true})
}

type depositReq struct {
	UserAddress string `json:"userAddress" binding:"required"`
	VaultID     int64  `json:"vaultId" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
}

func (h *Vault) Deposit(c *gin.Context) {
	var req depositReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.New(xerr.RequestParamsError, "请求体不合法"))
		return
	}
	d, err := h.svc.ApplyDeposit(c.Request.Context(), req.UserAddress, req.VaultID, req.Amount)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, d)
}

func (h *Vault) RegisterProfit(c *gin.Context) {
	var req depositReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.New(xerr.RequestParamsError, "请求体不合法"))
		return
	}
	p, err := h.svc.RegisterProfit(c.Request.Context(), req.UserAddress, req.VaultID, req.Amount)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, p)
}

func (h *Vault) GetSettings(c *gin.Context) {
	s, err := h.svc.GetSettings(c.Request.Context())
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, s)
}

type updateSettingsReq struct {
	MinDeposit        *string `json:"minDeposit"`
	AffiliateShareBps *int64  `json:"affiliateShareBps"`
	MaxFeePercent     *int64  `json:"maxFeePercent"`
	IsPaused          *bool   `json:"isPaused"`
}

func (h *Vault) UpdateSettings(c *gin.Context) {
	var req updateSettingsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.New(xerr.RequestParamsError, "请求体不合法"))
		return
	}
	s, err := h.svc.UpdateSettings(c.Request.Context(), service.UpdateSettingsInput{
		MinDeposit:        req.MinDeposit,
		AffiliateShareBps: req.AffiliateShareBps,
		MaxFeePercent:     req.MaxFeePercent,
		IsPaused:          req.IsPaused,
	})
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, s)
}
