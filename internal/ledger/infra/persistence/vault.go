package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"trude.com/internal/ledger/domain"
	"trude.com/pkg/xerr"
)

func (r *Repo) CreateVault(ctx context.Context, v *domain.Vault) error {
	db := r.dbFrom(ctx)

	if err := db.WithContext(ctx).Create(v).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create vault failed: %v", err))
	}
	return nil
}

func (r *Repo) FindVaultByID(ctx context.Context, id int64) (*domain.Vault, error) {
	db := r.dbFrom(ctx)

	var v domain.Vault
	err := db.WithContext(ctx).First(&v, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.New(xerr.RecordNotFound, "金库不存在")
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("find vault failed: %v", err))
	}
	return &v, nil
}

func (r *Repo) ListVaults(ctx context.Context) ([]domain.Vault, error) {
	db := r.dbFrom(ctx)

	var vaults []domain.Vault
	if err := db.WithContext(ctx).Order("id").Find(&vaults).Error; err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list vaults failed: %v", err))
	}
	return vaults, nil
}

// DeleteVault 级联删掉该金库的入金和利润记录
func (r *Repo) DeleteVault(ctx context.Context, id int64) error {
	db := r.dbFrom(ctx)

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("vault_id = ?", id).Delete(&domain.Deposit{}).Error; err != nil {
			return xerr.New(xerr.DbError, fmt.Sprintf("delete deposits failed: %v", err))
		}
		if err := tx.Where("vault_id = ?", id).Delete(&domain.Profit{}).Error; err != nil {
			return xerr.New(xerr.DbError, fmt.Sprintf("delete profits failed: %v", err))
		}
		res := tx.Delete(&domain.Vault{}, id)
		if res.Error != nil {
			return xerr.New(xerr.DbError, fmt.Sprintf("delete vault failed: %v", res.Error))
		}
		if res.RowsAffected == 0 {
			return xerr.New(xerr.RecordNotFound, "金库不存在")
		}
		return nil
	})
}

// AddVaultTVL 原子累加
func (r *Repo) AddVaultTVL(ctx context.Context, id int64, amount decimal.Decimal) error {
	db := r.dbFrom(ctx)

	res := db.WithContext(ctx).Model(&domain.Vault{}).
		Where("id = ?", id).
		Update("total_value_locked", gorm.Expr("total_value_locked + ?", amount))
	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("add tvl failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		return xerr.New(xerr.RecordNotFound, "金库不存在")
	}
	return nil
}

// SubVaultTVL 原子递减，余额不够时 clamp 到 0（不允许出现负 TVL）
func (r *Repo) SubVaultTVL(ctx context.Context, id int64, amount decimal.Decimal) error {
	db := r.dbFrom(ctx)

	res := db.WithContext(ctx).Model(&domain.Vault{}).
		Where("id = ? AND total_value_locked >= ?", id, amount).
		Update("total_value_locked", gorm.Expr("total_value_locked - ?", amount))
	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("sub tvl failed: %v", res.Error))
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// 条件没命中：要么金库不存在，要么 TVL 不足，直接归零
	res = db.WithContext(ctx).Model(&domain.Vault{}).
		Where("id = ?", id).
		Update("total_value_locked", decimal.Zero)
	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("clamp tvl failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		// MySQL 对未变化的行不计数（TVL 本来就是 0），这里只确认金库存在
		if _, err := r.FindVaultByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
