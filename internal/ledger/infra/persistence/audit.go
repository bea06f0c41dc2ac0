package persistence

import (
	"context"
	"fmt"

	"trude.com/internal/ledger/domain"
	"trude.com/pkg/xerr"
)

// AppendAudit 审计只追加，永不更新和删除
func (r *Repo) AppendAudit(ctx context.Context, e *domain.AuditLog) error {
	db := r.dbFrom(ctx)

	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("append audit failed: %v", err))
	}
	return nil
}
