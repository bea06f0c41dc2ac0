package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Vault 金库实体
// TotalValueLocked 只允许三种变化：入金/利润登记累加、资本提现递减（最低 clamp 到 0）
type Vault struct {
	ID               int64
	Address          string          `gorm:"size:42"` // 创建时生成
	TokenAddress     string          `gorm:"size:42"`
	TokenSymbol      string          `gorm:"size:20"`
	OwnerAddress     string          `gorm:"size:42"`
	LedgerAddress    string          `gorm:"size:42"` // 链上账本合约地址，预构造交易的 to
	TotalValueLocked decimal.Decimal `gorm:"type:decimal(65,0);default:0"`
	IsPaused         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type VaultRepo interface {
	CreateVault(ctx context.Context, v *Vault) error
	FindVaultByID(ctx context.Context, id int64) (*Vault, error)
	ListVaults(ctx context.Context) ([]Vault, error)
	// DeleteVault 管理员删除，级联清掉该金库的 Deposit/Profit
	DeleteVault(ctx context.Context, id int64) error
	// AddVaultTVL 原子累加 TVL
	AddVaultTVL(ctx context.Context, id int64, amount decimal.Decimal) error
	// SubVaultTVL 原子递减 TVL，减到负数时 clamp 为 0（防御性下限，不是会计保证）
	SubVaultTVL(ctx context.Context, id int64, amount decimal.Decimal) error
}
