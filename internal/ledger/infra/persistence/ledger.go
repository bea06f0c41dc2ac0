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

func (r *Repo) CreateDeposit(ctx context.Context, d *domain.Deposit) error {
	db := r.dbFrom(ctx)

	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create deposit failed: %v", err))
	}
	return nil
}

// SumDeposits 用户在某金库的本金合计，无记录视为 0
func (r *Repo) SumDeposits(ctx context.Context, userID, vaultID int64) (decimal.Decimal, error) {
	return r.sumAmount(ctx, &domain.Deposit{}, userID, vaultID)
}

func (r *Repo) CreateProfit(ctx context.Context, p *domain.Profit) error {
	db := r.dbFrom(ctx)

	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create profit failed: %v", err))
	}
	return nil
}

func (r *Repo) FindProfitByID(ctx context.Context, id int64) (*domain.Profit, error) {
	db := r.dbFrom(ctx)

	var p domain.Profit
	err := db.WithContext(ctx).First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.New(xerr.RecordNotFound, "利润记录不存在")
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("find profit failed: %v", err))
	}
	return &p, nil
}

// MarkProfitWithdrawn 条件更新，withdrawn 只允许 false -> true 翻转一次
func (r *Repo) MarkProfitWithdrawn(ctx context.Context, id int64) error {
	db := r.dbFrom(ctx)

	res := db.WithContext(ctx).Model(&domain.Profit{}).
		Where("id = ? AND withdrawn = ?", id, false).
		Update("withdrawn", true)
	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("mark profit withdrawn failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		// 已被处理过（并发重复 finalize），视为业务错误
		return xerr.New(xerr.RequestParamsError, "利润已提取")
	}
	return nil
}

func (r *Repo) ListWithdrawnProfits(ctx context.Context) ([]domain.Profit, error) {
	db := r.dbFrom(ctx)

	var profits []domain.Profit
	err := db.WithContext(ctx).Where("withdrawn = ?", true).Order("id").Find(&profits).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list withdrawn profits failed: %v", err))
	}
	return profits, nil
}

func (r *Repo) CreateCapitalWithdrawal(ctx context.Context, w *domain.CapitalWithdrawal) error {
	db := r.dbFrom(ctx)

	if err := db.WithContext(ctx).Create(w).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create capital withdrawal failed: %v", err))
	}
	return nil
}

func (r *Repo) SumCapitalWithdrawals(ctx context.Context, userID, vaultID int64) (decimal.Decimal, error) {
	return r.sumAmount(ctx, &domain.CapitalWithdrawal{}, userID, vaultID)
}

func (r *Repo) ListCapitalWithdrawals(ctx context.Context) ([]domain.CapitalWithdrawal, error) {
	db := r.dbFrom(ctx)

	var list []domain.CapitalWithdrawal
	if err := db.WithContext(ctx).Order("id").Find(&list).Error; err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list capital withdrawals failed: %v", err))
	}
	return list, nil
}

func (r *Repo) sumAmount(ctx context.Context, model interface{}, userID, vaultID int64) (decimal.Decimal, error) {
	db := r.dbFrom(ctx)

	var sum decimal.Decimal
	row := db.WithContext(ctx).Model(model).
		Where("user_id = ? AND vault_id = ?", userID, vaultID).
		Select("COALESCE(SUM(amount), 0)").Row()
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, xerr.New(xerr.DbError, fmt.Sprintf("sum amount failed: %v", err))
	}
	return sum, nil
}
