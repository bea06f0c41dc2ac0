package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"trude.com/internal/ledger/domain"
	"trude.com/pkg/xerr"
)

func (r *Repo) CreateRequest(ctx context.Context, req *domain.WithdrawalRequest) error {
	db := r.dbFrom(ctx)

	if err := db.WithContext(ctx).Create(req).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create withdrawal request failed: %v", err))
	}
	return nil
}

func (r *Repo) FindRequestByID(ctx context.Context, id int64) (*domain.WithdrawalRequest, error) {
	db := r.dbFrom(ctx)

	var req domain.WithdrawalRequest
	err := db.WithContext(ctx).First(&req, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.New(xerr.RecordNotFound, "提现请求不存在")
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("find request failed: %v", err))
	}
	return &req, nil
}

// MarkRequestExecuted 条件更新 PENDING -> EXECUTED
// 幂等核心：第二次 finalize 影响行数为 0，转成业务错误
func (r *Repo) MarkRequestExecuted(ctx context.Context, id int64, txHash string) error {
	db := r.dbFrom(ctx)

	updates := map[string]interface{}{
		"status":   domain.RequestStatusExecuted,
		"on_chain": true,
		"tx_hash":  txHash,
	}
	res := db.WithContext(ctx).Model(&domain.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, domain.RequestStatusPending).
		Updates(updates)
	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("mark request executed failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		return xerr.New(xerr.RequestParamsError, "请求已执行")
	}
	return nil
}

// SumCapitalRequestedSince auto 模式当日限额用：统计资本提现请求（vault_id<>0）
// PENDING 也计入，防止并发请求绕过额度
func (r *Repo) SumCapitalRequestedSince(ctx context.Context, userID int64, since time.Time) (decimal.Decimal, error) {
	db := r.dbFrom(ctx)

	var sum decimal.Decimal
	row := db.WithContext(ctx).Model(&domain.WithdrawalRequest{}).
		Where("user_id = ? AND vault_id <> 0 AND status IN ? AND created_at >= ?",
			userID,
			[]domain.RequestStatus{domain.RequestStatusPending, domain.RequestStatusExecuted},
			since,
		).
		Select("COALESCE(SUM(amount), 0)").Row()
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, xerr.New(xerr.DbError, fmt.Sprintf("sum requested failed: %v", err))
	}
	return sum, nil
}
