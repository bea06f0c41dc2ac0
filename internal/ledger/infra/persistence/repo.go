package persistence

import (
	"context"

	"gorm.io/gorm"
	"trude.com/internal/ledger/domain"
)

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// 确保 Repo 实现了聚合接口
var _ domain.Repository = (*Repo)(nil)

// Migrate 建表（开发/测试环境用，生产走 migration 脚本）
func (r *Repo) Migrate() error {
	return r.db.AutoMigrate(
		&domain.FactorySettings{},
		&domain.User{},
		&domain.Vault{},
		&domain.Deposit{},
		&domain.Profit{},
		&domain.CapitalWithdrawal{},
		&domain.WithdrawalRequest{},
		&domain.Affiliate{},
		&domain.AuditLog{},
	)
}

// Transaction 实现事务，把 tx 注入 context，repo 方法自动复用
func (r *Repo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, "tx_db", tx)
		return fn(txCtx)
	})
}

// dbFrom 事务传播：ctx 里有 tx 就用 tx
func (r *Repo) dbFrom(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value("tx_db").(*gorm.DB); ok {
		return tx
	}
	return r.db
}
