package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"trude.com/internal/ledger/domain"
	"trude.com/pkg/xerr"
)

// CreateAffiliate 靠 user_id 唯一索引兜底拒绝二次绑定
func (r *Repo) CreateAffiliate(ctx context.Context, a *domain.Affiliate) error {
	db := r.dbFrom(ctx)

	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "Duplicate entry") {
			return xerr.New(xerr.RequestParamsError, "该用户已绑定推荐人")
		}
		return xerr.New(xerr.DbError, fmt.Sprintf("create affiliate failed: %v", err))
	}
	return nil
}

func (r *Repo) FindAffiliateByUserID(ctx context.Context, userID int64) (*domain.Affiliate, error) {
	db := r.dbFrom(ctx)

	var a domain.Affiliate
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.New(xerr.RecordNotFound, "推荐关系不存在")
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("find affiliate failed: %v", err))
	}
	return &a, nil
}

func (r *Repo) ListAffiliates(ctx context.Context) ([]domain.Affiliate, error) {
	db := r.dbFrom(ctx)

	var list []domain.Affiliate
	if err := db.WithContext(ctx).Order("id").Find(&list).Error; err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list affiliates failed: %v", err))
	}
	return list, nil
}

func (r *Repo) AddAffiliateEarnings(ctx context.Context, id int64, amount decimal.Decimal) error {
	db := r.dbFrom(ctx)

	res := db.WithContext(ctx).Model(&domain.Affiliate{}).
		Where("id = ?", id).
		Update("total_earnings", gorm.Expr("total_earnings + ?", amount))
	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("add earnings failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		return xerr.New(xerr.RecordNotFound, "推荐关系不存在")
	}
	return nil
}

// SubAffiliateEarnings 条件扣减，余额不足时影响行数为 0，防止双花
func (r *Repo) SubAffiliateEarnings(ctx context.Context, id int64, amount decimal.Decimal) error {
	db := r.dbFrom(ctx)

	res := db.WithContext(ctx).Model(&domain.Affiliate{}).
		Where("id = ? AND total_earnings >= ?", id, amount).
		Update("total_earnings", gorm.Expr("total_earnings - ?", amount))
	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("sub earnings failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		return xerr.New(xerr.RequestParamsError, "可提收益不足")
	}
	return nil
}
