package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusExecuted RequestStatus = "EXECUTED" // 终态
	RequestStatusRejected RequestStatus = "REJECTED" // 终态（当前流程只审计不落行，保留枚举）
)

type WithdrawMode string

const (
	WithdrawModeAuto     WithdrawMode = "auto"     // 平台代发，走策略检查
	WithdrawModeEIP712   WithdrawMode = "eip712"   // 用户离线签名授权
	WithdrawModeCustomer WithdrawMode = "customer" // 用户自助广播，自付 gas
)

// WithdrawalRequest 提现请求
// 状态机：PENDING → EXECUTED（finalize）；策略失败不落行，只审计
// VaultID = 0 表示非金库维度的请求（推荐人收益提现）
type WithdrawalRequest struct {
	ID          int64
	UserID      int64 `gorm:"index"`
	VaultID     int64 `gorm:"index"`
	Amount      decimal.Decimal `gorm:"type:decimal(65,0)"`
	Mode        WithdrawMode    `gorm:"size:16"`
	Status      RequestStatus   `gorm:"size:16;index"`
	OnChain     bool
	RequestHash string `gorm:"size:66"`
	Signature   string `gorm:"size:132"`
	Deadline    int64  // unix 秒，eip712 模式有效
	TxHash      string `gorm:"size:66"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RequestRepo interface {
	CreateRequest(ctx context.Context, r *WithdrawalRequest) error
	FindRequestByID(ctx context.Context, id int64) (*WithdrawalRequest, error)
	// MarkRequestExecuted 条件更新 status=PENDING -> EXECUTED，并落 txHash/onChain
	// 幂等保证：已 EXECUTED 的请求影响行数为 0
	MarkRequestExecuted(ctx context.Context, id int64, txHash string) error
	// SumCapitalRequestedSince 某用户自某时刻起的资本提现请求金额合计（PENDING+EXECUTED），
	// 给 auto 模式的当日限额用
	SumCapitalRequestedSince(ctx context.Context, userID int64, since time.Time) (decimal.Decimal, error)
}
