package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"trude.com/internal/ledger/audit"
	"trude.com/internal/ledger/domain"
	"trude.com/pkg/logger"
	"trude.com/pkg/xerr"
)

type AffiliateService struct {
	repo     domain.Repository
	recorder *audit.Recorder
}

func NewAffiliateService(repo domain.Repository, recorder *audit.Recorder) *AffiliateService {
	return &AffiliateService{repo: repo, recorder: recorder}
}

// Register 绑定推荐关系，一个用户只能绑定一次，不允许自荐
func (s *AffiliateService) Register(ctx context.Context, userAddr, referrerAddr string) (*domain.Affiliate, error) {
	ua, err := normalizeAddress(userAddr)
	if err != nil {
		return nil, err
	}
	ra, err := normalizeAddress(referrerAddr)
	if err != nil {
		return nil, err
	}
	if ua == ra {
		return nil, xerr.New(xerr.RequestParamsError, "不能推荐自己")
	}

	user, err := s.repo.GetOrCreateUser(ctx, ua)
	if err != nil {
		return nil, err
	}
	referrer, err := s.repo.GetOrCreateUser(ctx, ra)
	if err != nil {
		return nil, err
	}

	a := &domain.Affiliate{
		UserID:        user.ID,
		ReferrerID:    referrer.ID,
		TotalEarnings: decimal.Zero,
	}
	// 重复绑定由 user_id 唯一索引在仓储层拒绝
	if err := s.repo.CreateAffiliate(ctx, a); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		Action: "AFFILIATE_REGISTER",
		Status: domain.AuditStatusExecuted,
		UserID: user.ID,
		Details: map[string]interface{}{
			"referrer_id": referrer.ID,
		},
	})
	logger.Info(ctx, "affiliate registered",
		zap.Int64("user_id", user.ID),
		zap.Int64("referrer_id", referrer.ID),
	)
	return a, nil
}
