package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"trude.com/internal/ledger/domain"
)

// 策略拒绝原因，审计 action 为 "POLICY_" + reason
const (
	PolicyReasonNotAllowlisted = "NOT_ALLOWLISTED"
	PolicyReasonTxLimit        = "TX_LIMIT"
	PolicyReasonDailyLimit     = "DAILY_LIMIT"
)

type PolicyConfig struct {
	Allowlist []string        // 空列表 = 放行所有地址
	PerTxCap  decimal.Decimal // 零值 = 不限
	DailyCap  decimal.Decimal // 零值 = 不限，按 UTC 自然日滚动
}

// Policy auto 模式（平台代发）的风控闸门
type Policy struct {
	allow    map[string]bool
	perTxCap decimal.Decimal
	dailyCap decimal.Decimal
	repo     domain.RequestRepo
}

func NewPolicy(cfg PolicyConfig, repo domain.RequestRepo) *Policy {
	allow := make(map[string]bool, len(cfg.Allowlist))
	for _, a := range cfg.Allowlist {
		allow[strings.ToLower(a)] = true
	}
	return &Policy{
		allow:    allow,
		perTxCap: cfg.PerTxCap,
		dailyCap: cfg.DailyCap,
		repo:     repo,
	}
}

// CheckCapital 返回空 reason 表示放行
func (p *Policy) CheckCapital(ctx context.Context, user *domain.User, amount decimal.Decimal) (string, error) {
	if len(p.allow) > 0 && !p.allow[user.Address] {
		return PolicyReasonNotAllowlisted, nil
	}
	if p.perTxCap.IsPositive() && amount.Cmp(p.perTxCap) > 0 {
		return PolicyReasonTxLimit, nil
	}
	if p.dailyCap.IsPositive() {
		// PENDING 也计入，并发请求不能绕额度
		midnight := time.Now().UTC().Truncate(24 * time.Hour)
		used, err := p.repo.SumCapitalRequestedSince(ctx, user.ID, midnight)
		if err != nil {
			return "", err
		}
		if used.Add(amount).Cmp(p.dailyCap) > 0 {
			return PolicyReasonDailyLimit, nil
		}
	}
	return "", nil
}
