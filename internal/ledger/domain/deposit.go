package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Deposit 入金记录，创建后不可变；同时增加 Vault TVL 与用户本金
type Deposit struct {
	ID        int64
	UserID    int64 `gorm:"index:idx_deposit_user_vault"`
	VaultID   int64 `gorm:"index:idx_deposit_user_vault"`
	Amount    decimal.Decimal `gorm:"type:decimal(65,0)"`
	CreatedAt time.Time
}

// Profit 利润登记，Withdrawn 只能 false→true 翻转一次
type Profit struct {
	ID        int64
	UserID    int64 `gorm:"index:idx_profit_user_vault"`
	VaultID   int64 `gorm:"index:idx_profit_user_vault"`
	Amount    decimal.Decimal `gorm:"type:decimal(65,0)"`
	Withdrawn bool
	CreatedAt time.Time
}

// CapitalWithdrawal 仅在资本提现 finalize 时创建，对应 TVL 递减
type CapitalWithdrawal struct {
	ID        int64
	UserID    int64 `gorm:"index:idx_capwd_user_vault"`
	VaultID   int64 `gorm:"index:idx_capwd_user_vault"`
	Amount    decimal.Decimal `gorm:"type:decimal(65,0)"`
	CreatedAt time.Time
}

type LedgerRepo interface {
	CreateDeposit(ctx context.Context, d *Deposit) error
	// SumDeposits 用户在某金库的本金合计
	SumDeposits(ctx context.Context, userID, vaultID int64) (decimal.Decimal, error)

	CreateProfit(ctx context.Context, p *Profit) error
	FindProfitByID(ctx context.Context, id int64) (*Profit, error)
	// MarkProfitWithdrawn 条件更新 withdrawn=false -> true，重复翻转返回影响行数 0
	MarkProfitWithdrawn(ctx context.Context, id int64) error
	ListWithdrawnProfits(ctx context.Context) ([]Profit, error)

	CreateCapitalWithdrawal(ctx context.Context, w *CapitalWithdrawal) error
	SumCapitalWithdrawals(ctx context.Context, userID, vaultID int64) (decimal.Decimal, error)
	ListCapitalWithdrawals(ctx context.Context) ([]CapitalWithdrawal, error)
}
