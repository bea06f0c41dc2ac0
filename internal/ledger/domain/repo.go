package domain

import "context"

// TxManager 事务边界：fn 内的 repo 调用复用同一个事务
type TxManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repository 聚合接口，按实体拆分的强类型方法，不做反射式 CRUD
type Repository interface {
	TxManager
	UserRepo
	SettingsRepo
	VaultRepo
	LedgerRepo
	RequestRepo
	AffiliateRepo
	AuditRepo
}
