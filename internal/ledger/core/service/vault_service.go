package service

import (
	"context"
	"crypto/rand"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"trude.com/internal/ledger/audit"
	"trude.com/internal/ledger/domain"
	"trude.com/pkg/logger"
	"trude.com/pkg/xerr"
)

// normalizeAddress 校验并小写化 0x 地址，入库统一小写便于唯一索引
func normalizeAddress(s string) (string, error) {
	if !ethcommon.IsHexAddress(s) {
		return "", xerr.New(xerr.RequestParamsError, "地址格式不正确")
	}
	return strings.ToLower(ethcommon.HexToAddress(s).Hex()), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := domain.ParseAmount(s)
	if err != nil {
		return decimal.Zero, xerr.New(xerr.RequestParamsError, "金额必须是非负整数字符串")
	}
	return d, nil
}

type VaultService struct {
	repo     domain.Repository
	recorder *audit.Recorder
}

func NewVaultService(repo domain.Repository, recorder *audit.Recorder) *VaultService {
	return &VaultService{repo: repo, recorder: recorder}
}

type CreateVaultInput struct {
	TokenAddress  string
	TokenSymbol   string
	OwnerAddress  string
	LedgerAddress string
}

func (s *VaultService) CreateVault(ctx context.Context, in CreateVaultInput) (*domain.Vault, error) {
	token, err := normalizeAddress(in.TokenAddress)
	if err != nil {
		return nil, err
	}
	owner, err := normalizeAddress(in.OwnerAddress)
	if err != nil {
		return nil, err
	}
	ledgerAddr, err := normalizeAddress(in.LedgerAddress)
	if err != nil {
		return nil, err
	}
	if in.TokenSymbol == "" {
		return nil, xerr.New(xerr.RequestParamsError, "代币符号不能为空")
	}

	v := &domain.Vault{
		Address:          genVaultAddress(),
		TokenAddress:     token,
		TokenSymbol:      strings.ToUpper(in.TokenSymbol),
		OwnerAddress:     owner,
		LedgerAddress:    ledgerAddr,
		TotalValueLocked: decimal.Zero,
	}
	if err := s.repo.CreateVault(ctx, v); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:  "VAULT_CREATE",
		Status:  domain.AuditStatusExecuted,
		VaultID: v.ID,
		Details: map[string]interface{}{"address": v.Address, "symbol": v.TokenSymbol},
	})
	logger.Info(ctx, "vault created", zap.Int64("vault_id", v.ID), zap.String("address", v.Address))
	return v, nil
}

// genVaultAddress 金库标识地址，链下生成，仅作展示/索引用
func genVaultAddress() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return strings.ToLower(ethcommon.BytesToAddress(b[:]).Hex())
}

// DeleteVault 管理员操作，级联删除由仓储层完成
func (s *VaultService) DeleteVault(ctx context.Context, id int64) error {
	if err := s.repo.DeleteVault(ctx, id); err != nil {
		return err
	}
	s.recorder.Record(ctx, audit.Entry{
		Action:  "VAULT_DELETE",
		Status:  domain.AuditStatusExecuted,
		VaultID: id,
	})
	return nil
}

// ApplyDeposit 入金：创建 Deposit 行并累加 TVL，同一事务内完成
func (s *VaultService) ApplyDeposit(ctx context.Context, userAddr string, vaultID int64, amount string) (*domain.Deposit, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if settings.IsPaused {
		return nil, xerr.New(xerr.Forbidden, "系统已暂停")
	}

	amt, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	if !amt.IsPositive() {
		return nil, xerr.New(xerr.RequestParamsError, "金额必须大于 0")
	}
	if amt.Cmp(settings.MinDeposit) < 0 {
		return nil, xerr.New(xerr.RequestParamsError, "低于最小入金额")
	}

	vault, err := s.repo.FindVaultByID(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	if vault.IsPaused {
		return nil, xerr.New(xerr.Forbidden, "金库已暂停")
	}

	addr, err := normalizeAddress(userAddr)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetOrCreateUser(ctx, addr)
	if err != nil {
		return nil, err
	}

	d := &domain.Deposit{UserID: user.ID, VaultID: vaultID, Amount: amt}
	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateDeposit(ctx, d); err != nil {
			return err
		}
		return s.repo.AddVaultTVL(ctx, vaultID, amt)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:  "DEPOSIT",
		Status:  domain.AuditStatusExecuted,
		UserID:  user.ID,
		VaultID: vaultID,
		Details: map[string]interface{}{"amount": amt.String()},
	})
	return d, nil
}

// RegisterProfit 利润登记：运营侧调用，创建 Profit 行并累加 TVL
func (s *VaultService) RegisterProfit(ctx context.Context, userAddr string, vaultID int64, amount string) (*domain.Profit, error) {
	amt, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	if !amt.IsPositive() {
		return nil, xerr.New(xerr.RequestParamsError, "金额必须大于 0")
	}

	vault, err := s.repo.FindVaultByID(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	if vault.IsPaused {
		return nil, xerr.New(xerr.Forbidden, "金库已暂停")
	}

	addr, err := normalizeAddress(userAddr)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetOrCreateUser(ctx, addr)
	if err != nil {
		return nil, err
	}

	p := &domain.Profit{UserID: user.ID, VaultID: vaultID, Amount: amt}
	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateProfit(ctx, p); err != nil {
			return err
		}
		return s.repo.AddVaultTVL(ctx, vaultID, amt)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:  "PROFIT_REGISTER",
		Status:  domain.AuditStatusExecuted,
		UserID:  user.ID,
		VaultID: vaultID,
		Details: map[string]interface{}{"amount": amt.String(), "profit_id": p.ID},
	})
	return p, nil
}

func (s *VaultService) GetSettings(ctx context.Context) (*domain.FactorySettings, error) {
	return s.repo.GetSettings(ctx)
}

type UpdateSettingsInput struct {
	MinDeposit        *string
	AffiliateShareBps *int64
	MaxFeePercent     *int64
	IsPaused          *bool
}

// UpdateSettings 管理员更新全局配置，空字段保持原值
func (s *VaultService) UpdateSettings(ctx context.Context, in UpdateSettingsInput) (*domain.FactorySettings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	if in.MinDeposit != nil {
		amt, err := parseAmount(*in.MinDeposit)
		if err != nil {
			return nil, err
		}
		settings.MinDeposit = amt
	}
	if in.AffiliateShareBps != nil {
		if *in.AffiliateShareBps < 0 || *in.AffiliateShareBps > 10000 {
			return nil, xerr.New(xerr.RequestParamsError, "分成基点需在 0~10000 之间")
		}
		settings.AffiliateShareBps = *in.AffiliateShareBps
	}
	if in.MaxFeePercent != nil {
		if *in.MaxFeePercent < 0 || *in.MaxFeePercent > 100 {
			return nil, xerr.New(xerr.RequestParamsError, "费率上限需在 0~100 之间")
		}
		settings.MaxFeePercent = *in.MaxFeePercent
	}
	if in.IsPaused != nil {
		settings.IsPaused = *in.IsPaused
	}

	if err := s.repo.UpdateSettings(ctx, settings); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, audit.Entry{
		Action: "SETTINGS_UPDATE",
		Status: domain.AuditStatusExecuted,
		Details: map[string]interface{}{
			"min_deposit":         settings.MinDeposit.String(),
			"affiliate_share_bps": settings.AffiliateShareBps,
			"max_fee_percent":     settings.MaxFeePercent,
			"is_paused":           settings.IsPaused,
		},
	})
	return settings, nil
}
