package domain

import (
	"context"
	"time"
)

// AuditLog 只追加不修改；所有影响资金的拒绝在报错前先落审计
type AuditLog struct {
	ID        int64
	Action    string `gorm:"size:64;index"`
	Status    string `gorm:"size:32"`
	UserID    int64  `gorm:"index"`
	VaultID   int64
	RequestID int64
	Details   string `gorm:"type:text"` // 不透明 JSON
	CreatedAt time.Time
}

const (
	AuditStatusPending  = "PENDING"
	AuditStatusExecuted = "EXECUTED"
	AuditStatusRejected = "REJECTED"
)

type AuditRepo interface {
	AppendAudit(ctx context.Context, e *AuditLog) error
}
