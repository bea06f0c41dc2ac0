package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Affiliate 推荐关系，一个被推荐用户只允许绑定一次
// TotalEarnings 只通过利润费分成累加、通过 EXECUTED 的提现 finalize 递减
type Affiliate struct {
	ID            int64
	UserID        int64 `gorm:"uniqueIndex"` // 被推荐用户
	ReferrerID    int64 `gorm:"index"`       // 推荐人
	TotalEarnings decimal.Decimal `gorm:"type:decimal(65,0);default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type AffiliateRepo interface {
	// CreateAffiliate 依赖 user_id 唯一索引拒绝重复注册
	CreateAffiliate(ctx context.Context, a *Affiliate) error
	FindAffiliateByUserID(ctx context.Context, userID int64) (*Affiliate, error)
	ListAffiliates(ctx context.Context) ([]Affiliate, error)
	AddAffiliateEarnings(ctx context.Context, id int64, amount decimal.Decimal) error
	// SubAffiliateEarnings 条件更新 total_earnings >= amount 才扣，防止双花
	SubAffiliateEarnings(ctx context.Context, id int64, amount decimal.Decimal) error
}
