package audit

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"trude.com/internal/ledger/domain"
	"trude.com/pkg/logger"
	"trude.com/pkg/metrics"
)

// Recorder 先落库再发事件
// 审计失败只记日志不反噬业务错误：拒绝路径上原始错误优先级更高
type Recorder struct {
	repo   domain.AuditRepo
	broker Broker
}

func NewRecorder(repo domain.AuditRepo, broker Broker) *Recorder {
	return &Recorder{repo: repo, broker: broker}
}

type Entry struct {
	Action    string
	Status    string
	UserID    int64
	VaultID   int64
	RequestID int64
	Details   map[string]interface{}
}

func (r *Recorder) Record(ctx context.Context, e Entry) {
	detail, _ := json.Marshal(e.Details)
	row := &domain.AuditLog{
		Action:    e.Action,
		Status:    e.Status,
		UserID:    e.UserID,
		VaultID:   e.VaultID,
		RequestID: e.RequestID,
		Details:   string(detail),
	}
	if err := r.repo.AppendAudit(ctx, row); err != nil {
		logger.Error(ctx, "append audit failed",
			zap.String("action", e.Action),
			zap.String("status", e.Status),
			zap.Error(err),
		)
		return
	}
	metrics.AuditAppendTotal.WithLabelValues(e.Action, e.Status).Inc()

	payload, _ := json.Marshal(row)
	subject := "audit." + strings.ToLower(e.Action)
	if err := r.broker.Publish(ctx, subject, payload); err != nil {
		// 发布失败可以容忍，审计真相以数据库行为准
		logger.Warn(ctx, "publish audit event failed",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}
