package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"trude.com/internal/ledger/domain"
	"trude.com/pkg/xerr"
)

// GetSettings 单行配置，第一次读取时按默认值创建
func (r *Repo) GetSettings(ctx context.Context) (*domain.FactorySettings, error) {
	db := r.dbFrom(ctx)

	var s domain.FactorySettings
	err := db.WithContext(ctx).First(&s, 1).Error
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get settings failed: %v", err))
	}

	// 惰性创建。并发下靠主键冲突 DoNothing 保证单行
	s = domain.FactorySettings{
		ID:                1,
		MinDeposit:        decimal.Zero,
		AffiliateShareBps: domain.DefaultAffiliateShareBps,
		MaxFeePercent:     domain.DefaultMaxFeePercent,
		IsPaused:          false,
	}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&s).Error; err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("init settings failed: %v", err))
	}
	if err := db.WithContext(ctx).First(&s, 1).Error; err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get settings failed: %v", err))
	}
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *domain.FactorySettings) error {
	db := r.dbFrom(ctx)

	s.ID = 1
	updates := map[string]interface{}{
		"min_deposit":         s.MinDeposit,
		"affiliate_share_bps": s.AffiliateShareBps,
		"max_fee_percent":     s.MaxFeePercent,
		"is_paused":           s.IsPaused,
	}
	res := db.WithContext(ctx).Model(&domain.FactorySettings{}).Where("id = ?", 1).Updates(updates)
	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("update settings failed: %v", res.Error))
	}
	return nil
}
