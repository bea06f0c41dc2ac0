package service

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"trude.com/internal/ledger/domain"
	"trude.com/internal/ledger/fee"
	"trude.com/pkg/metrics"
	"trude.com/pkg/xerr"
)

const metricsCacheKey = "ledger:revenue:metrics"

// RevenueService 收益报表
// 费用永远现算不落库：同一份账本在任何时刻重算都必须得到相同报表
type RevenueService struct {
	repo domain.Repository
	rdb  *redis.Client // 可为 nil，未配置缓存时每次现算
	ttl  time.Duration
	sf   singleflight.Group
}

func NewRevenueService(repo domain.Repository, rdb *redis.Client, ttl time.Duration) *RevenueService {
	return &RevenueService{repo: repo, rdb: rdb, ttl: ttl}
}

type OwnerFees struct {
	Capital string `json:"capital"`
	Profit  string `json:"profit"`
	Total   string `json:"total"`
}

type AffiliateFees struct {
	Profit string `json:"profit"`
	Total  string `json:"total"`
}

type RevenueFees struct {
	Owner     OwnerFees     `json:"owner"`
	Affiliate AffiliateFees `json:"affiliate"`
}

type RevenueCounts struct {
	Vaults             int `json:"vaults"`
	CapitalWithdrawals int `json:"capitalWithdrawals"`
	WithdrawnProfits   int `json:"withdrawnProfits"`
	Affiliates         int `json:"affiliates"`
}

type RevenueMetrics struct {
	TvlTotal string        `json:"tvlTotal"`
	Fees     RevenueFees   `json:"fees"`
	Counts   RevenueCounts `json:"counts"`
}

// Metrics 全局收益总览，redis 缓存 + singleflight 防击穿
func (s *RevenueService) Metrics(ctx context.Context) (*RevenueMetrics, error) {
	start := time.Now()
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, metricsCacheKey).Bytes(); err == nil {
			var m RevenueMetrics
			if json.Unmarshal(raw, &m) == nil {
				metrics.RevenueQueryDuration.WithLabelValues("metrics", "cache_hit").Observe(time.Since(start).Seconds())
				return &m, nil
			}
		}
	}

	v, err, _ := s.sf.Do(metricsCacheKey, func() (interface{}, error) {
		m, err := s.computeMetrics(ctx)
		if err != nil {
			return nil, err
		}
		if s.rdb != nil {
			if raw, err := json.Marshal(m); err == nil {
				s.rdb.Set(ctx, metricsCacheKey, raw, s.ttl)
			}
		}
		return m, nil
	})
	if err != nil {
		metrics.RevenueQueryDuration.WithLabelValues("metrics", "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	metrics.RevenueQueryDuration.WithLabelValues("metrics", "ok").Observe(time.Since(start).Seconds())
	return v.(*RevenueMetrics), nil
}

func (s *RevenueService) computeMetrics(ctx context.Context) (*RevenueMetrics, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	vaults, err := s.repo.ListVaults(ctx)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.repo.ListCapitalWithdrawals(ctx)
	if err != nil {
		return nil, err
	}
	profits, err := s.repo.ListWithdrawnProfits(ctx)
	if err != nil {
		return nil, err
	}
	affiliates, err := s.repo.ListAffiliates(ctx)
	if err != nil {
		return nil, err
	}
	affByUser := make(map[int64]bool, len(affiliates))
	for _, a := range affiliates {
		affByUser[a.UserID] = true
	}

	tvl := new(big.Int)
	for _, v := range vaults {
		tvl.Add(tvl, domain.AmountToBig(v.TotalValueLocked))
	}

	ownerCapital := new(big.Int)
	for _, w := range withdrawals {
		ownerCapital.Add(ownerCapital, fee.CapitalWithdrawalFee(domain.AmountToBig(w.Amount)))
	}

	ownerProfit := new(big.Int)
	affProfit := new(big.Int)
	for _, p := range profits {
		pct := fee.DynamicProfitFeePercent(domain.AmountToBig(p.Amount), settings.MaxFeePercent)
		f := fee.ProfitFee(domain.AmountToBig(p.Amount), pct)
		if affByUser[p.UserID] {
			a, o := fee.SplitFee(f, settings.AffiliateShareBps)
			affProfit.Add(affProfit, a)
			ownerProfit.Add(ownerProfit, o)
		} else {
			// 无推荐人，费用全归 owner
			ownerProfit.Add(ownerProfit, f)
		}
	}
	ownerTotal := new(big.Int).Add(ownerCapital, ownerProfit)

	return &RevenueMetrics{
		TvlTotal: tvl.String(),
		Fees: RevenueFees{
			Owner: OwnerFees{
				Capital: ownerCapital.String(),
				Profit:  ownerProfit.String(),
				Total:   ownerTotal.String(),
			},
			Affiliate: AffiliateFees{
				Profit: affProfit.String(),
				Total:  affProfit.String(),
			},
		},
		Counts: RevenueCounts{
			Vaults:             len(vaults),
			CapitalWithdrawals: len(withdrawals),
			WithdrawnProfits:   len(profits),
			Affiliates:         len(affiliates),
		},
	}, nil
}

type VaultRevenue struct {
	VaultID             int64  `json:"vaultId"`
	Tvl                 string `json:"tvl"`
	OwnerFeesCapital    string `json:"ownerFeesCapital"`
	OwnerFeesProfit     string `json:"ownerFeesProfit"`
	OwnerFeesTotal      string `json:"ownerFeesTotal"`
	AffiliateFeesProfit string `json:"affiliateFeesProfit"`
}

type vaultAcc struct {
	tvl          *big.Int
	ownerCapital *big.Int
	ownerProfit  *big.Int
	affProfit    *big.Int
}

func newVaultAcc() *vaultAcc {
	return &vaultAcc{
		tvl:          new(big.Int),
		ownerCapital: new(big.Int),
		ownerProfit:  new(big.Int),
		affProfit:    new(big.Int),
	}
}

// ByVault 按金库分组，owner 费用合计降序
func (s *RevenueService) ByVault(ctx context.Context) ([]VaultRevenue, error) {
	start := time.Now()
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	vaults, err := s.repo.ListVaults(ctx)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.repo.ListCapitalWithdrawals(ctx)
	if err != nil {
		return nil, err
	}
	profits, err := s.repo.ListWithdrawnProfits(ctx)
	if err != nil {
		return nil, err
	}
	affiliates, err := s.repo.ListAffiliates(ctx)
	if err != nil {
		return nil, err
	}
	affByUser := make(map[int64]bool, len(affiliates))
	for _, a := range affiliates {
		affByUser[a.UserID] = true
	}

	accs := make(map[int64]*vaultAcc)
	acc := func(vaultID int64) *vaultAcc {
		a, ok := accs[vaultID]
		if !ok {
			a = newVaultAcc()
			accs[vaultID] = a
		}
		return a
	}
	for _, v := range vaults {
		acc(v.ID).tvl.Set(domain.AmountToBig(v.TotalValueLocked))
	}
	// 已删金库的提现记录仍然计入（按 vault_id 分组即可）
	for _, w := range withdrawals {
		a := acc(w.VaultID)
		a.ownerCapital.Add(a.ownerCapital, fee.CapitalWithdrawalFee(domain.AmountToBig(w.Amount)))
	}
	for _, p := range profits {
		a := acc(p.VaultID)
		pct := fee.DynamicProfitFeePercent(domain.AmountToBig(p.Amount), settings.MaxFeePercent)
		f := fee.ProfitFee(domain.AmountToBig(p.Amount), pct)
		if affByUser[p.UserID] {
			ac, oc := fee.SplitFee(f, settings.AffiliateShareBps)
			a.affProfit.Add(a.affProfit, ac)
			a.ownerProfit.Add(a.ownerProfit, oc)
		} else {
			a.ownerProfit.Add(a.ownerProfit, f)
		}
	}

	out := make([]VaultRevenue, 0, len(accs))
	totals := make(map[int64]*big.Int, len(accs))
	for id, a := range accs {
		total := new(big.Int).Add(a.ownerCapital, a.ownerProfit)
		totals[id] = total
		out = append(out, VaultRevenue{
			VaultID:             id,
			Tvl:                 a.tvl.String(),
			OwnerFeesCapital:    a.ownerCapital.String(),
			OwnerFeesProfit:     a.ownerProfit.String(),
			OwnerFeesTotal:      total.String(),
			AffiliateFeesProfit: a.affProfit.String(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		c := totals[out[i].VaultID].Cmp(totals[out[j].VaultID])
		if c != 0 {
			return c > 0
		}
		return out[i].VaultID < out[j].VaultID
	})
	metrics.RevenueQueryDuration.WithLabelValues("by_vault", "ok").Observe(time.Since(start).Seconds())
	return out, nil
}

type AffiliateRevenue struct {
	ReferrerID          int64  `json:"referrerId"`
	UsersCount          int    `json:"usersCount"`
	AffiliateProfitFees string `json:"affiliateProfitFees"`
	OwnerProfitFees     string `json:"ownerProfitFees"`
}

// ByAffiliate 按推荐人分组，推荐人分成降序
// 无推荐关系的利润不在本报表出现（在全局/金库报表里全额计为 owner 费用）
func (s *RevenueService) ByAffiliate(ctx context.Context) ([]AffiliateRevenue, error) {
	start := time.Now()
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	profits, err := s.repo.ListWithdrawnProfits(ctx)
	if err != nil {
		return nil, err
	}
	affiliates, err := s.repo.ListAffiliates(ctx)
	if err != nil {
		return nil, err
	}
	affByUser := make(map[int64]*domain.Affiliate, len(affiliates))
	for i := range affiliates {
		affByUser[affiliates[i].UserID] = &affiliates[i]
	}

	type refAcc struct {
		users     map[int64]bool
		affFees   *big.Int
		ownerFees *big.Int
	}
	accs := make(map[int64]*refAcc)
	for _, p := range profits {
		aff, ok := affByUser[p.UserID]
		if !ok {
			continue
		}
		a, ok := accs[aff.ReferrerID]
		if !ok {
			a = &refAcc{users: make(map[int64]bool), affFees: new(big.Int), ownerFees: new(big.Int)}
			accs[aff.ReferrerID] = a
		}
		a.users[p.UserID] = true
		pct := fee.DynamicProfitFeePercent(domain.AmountToBig(p.Amount), settings.MaxFeePercent)
		f := fee.ProfitFee(domain.AmountToBig(p.Amount), pct)
		ac, oc := fee.SplitFee(f, settings.AffiliateShareBps)
		a.affFees.Add(a.affFees, ac)
		a.ownerFees.Add(a.ownerFees, oc)
	}

	out := make([]AffiliateRevenue, 0, len(accs))
	fees := make(map[int64]*big.Int, len(accs))
	for id, a := range accs {
		fees[id] = a.affFees
		out = append(out, AffiliateRevenue{
			ReferrerID:          id,
			UsersCount:          len(a.users),
			AffiliateProfitFees: a.affFees.String(),
			OwnerProfitFees:     a.ownerFees.String(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		c := fees[out[i].ReferrerID].Cmp(fees[out[j].ReferrerID])
		if c != 0 {
			return c > 0
		}
		return out[i].ReferrerID < out[j].ReferrerID
	})
	metrics.RevenueQueryDuration.WithLabelValues("by_affiliate", "ok").Observe(time.Since(start).Seconds())
	return out, nil
}

type TimeseriesPoint struct {
	Date            string `json:"date"`
	Owner           string `json:"owner"`
	Affiliate       string `json:"affiliate"`
	OwnerCapital    string `json:"ownerCapital"`
	OwnerProfit     string `json:"ownerProfit"`
	AffiliateProfit string `json:"affiliateProfit"`
}

type TimeseriesResult struct {
	Days   int               `json:"days"`
	Series []TimeseriesPoint `json:"series"`
}

type dayAcc struct {
	ownerCapital *big.Int
	ownerProfit  *big.Int
	affProfit    *big.Int
}

// Timeseries 按 UTC 自然日分桶的费用时序，窗口以今天收尾
// referrerID 过滤是间接的：只保留该推荐人名下用户产生的记录
func (s *RevenueService) Timeseries(ctx context.Context, days int, vaultID, referrerID *int64) (*TimeseriesResult, error) {
	if days < 1 || days > 90 {
		return nil, xerr.New(xerr.RequestParamsError, "days 需在 1~90 之间")
	}
	start := time.Now()

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.repo.ListCapitalWithdrawals(ctx)
	if err != nil {
		return nil, err
	}
	profits, err := s.repo.ListWithdrawnProfits(ctx)
	if err != nil {
		return nil, err
	}
	affiliates, err := s.repo.ListAffiliates(ctx)
	if err != nil {
		return nil, err
	}
	affByUser := make(map[int64]*domain.Affiliate, len(affiliates))
	for i := range affiliates {
		affByUser[affiliates[i].UserID] = &affiliates[i]
	}
	var member map[int64]bool
	if referrerID != nil {
		member = make(map[int64]bool)
		for _, a := range affiliates {
			if a.ReferrerID == *referrerID {
				member[a.UserID] = true
			}
		}
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	startDay := today.AddDate(0, 0, -(days - 1))
	buckets := make(map[string]*dayAcc, days)
	for d := 0; d < days; d++ {
		key := startDay.AddDate(0, 0, d).Format("2006-01-02")
		buckets[key] = &dayAcc{
			ownerCapital: new(big.Int),
			ownerProfit:  new(big.Int),
			affProfit:    new(big.Int),
		}
	}
	bucketOf := func(t time.Time) *dayAcc {
		return buckets[t.UTC().Format("2006-01-02")]
	}

	for _, w := range withdrawals {
		if vaultID != nil && w.VaultID != *vaultID {
			continue
		}
		if member != nil && !member[w.UserID] {
			continue
		}
		b := bucketOf(w.CreatedAt)
		if b == nil {
			continue // 窗口之外
		}
		b.ownerCapital.Add(b.ownerCapital, fee.CapitalWithdrawalFee(domain.AmountToBig(w.Amount)))
	}
	for _, p := range profits {
		if vaultID != nil && p.VaultID != *vaultID {
			continue
		}
		if member != nil && !member[p.UserID] {
			continue
		}
		b := bucketOf(p.CreatedAt)
		if b == nil {
			continue
		}
		pct := fee.DynamicProfitFeePercent(domain.AmountToBig(p.Amount), settings.MaxFeePercent)
		f := fee.ProfitFee(domain.AmountToBig(p.Amount), pct)
		if _, ok := affByUser[p.UserID]; ok {
			ac, oc := fee.SplitFee(f, settings.AffiliateShareBps)
			b.affProfit.Add(b.affProfit, ac)
			b.ownerProfit.Add(b.ownerProfit, oc)
		} else {
			b.ownerProfit.Add(b.ownerProfit, f)
		}
	}

	series := make([]TimeseriesPoint, 0, days)
	for d := 0; d < days; d++ {
		key := startDay.AddDate(0, 0, d).Format("2006-01-02")
		b := buckets[key]
		owner := new(big.Int).Add(b.ownerCapital, b.ownerProfit)
		series = append(series, TimeseriesPoint{
			Date:            key,
			Owner:           owner.String(),
			Affiliate:       b.affProfit.String(),
			OwnerCapital:    b.ownerCapital.String(),
			OwnerProfit:     b.ownerProfit.String(),
			AffiliateProfit: b.affProfit.String(),
		})
	}
	metrics.RevenueQueryDuration.WithLabelValues("timeseries", "ok").Observe(time.Since(start).Seconds())
	return &TimeseriesResult{Days: days, Series: series}, nil
}
