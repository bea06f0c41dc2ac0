package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// FactorySettings 全局单例配置，首次读取时惰性创建默认值
type FactorySettings struct {
	ID                int64           `gorm:"primaryKey"` // 恒为 1
	MinDeposit        decimal.Decimal `gorm:"type:decimal(65,0);default:0"`
	AffiliateShareBps int64           // 0~10000，费用分给推荐人的基点数
	MaxFeePercent     int64           // 0~100，动态利润费上限
	IsPaused          bool
	UpdatedAt         time.Time
}

const (
	DefaultAffiliateShareBps = 2000 // 默认 20% 分成
	DefaultMaxFeePercent     = 20
)

type SettingsRepo interface {
	// GetSettings 单行表，不存在则按默认值创建
	GetSettings(ctx context.Context) (*FactorySettings, error)
	UpdateSettings(ctx context.Context, s *FactorySettings) error
}
