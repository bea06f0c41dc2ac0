package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"trude.com/internal/ledger/core/service"
	"trude.com/internal/ledger/domain"
	"trude.com/pkg/xerr"
)

// 固定账本：2 个金库、2 笔资本提现、3 笔已提取利润（其中 1 笔有推荐人）
// 默认配置 maxFeePercent=20、affiliateShareBps=2000
//
// 手工核算：
//   资本费   = floor(1000000*10/10000) + floor(2000000*10/10000) = 1000 + 2000 = 3000
//   利润费 p1 = 500000  (0.5 token -> 1%)  = 5000，有推荐人：aff 1000 / owner 4000
//   利润费 p2 = 10^12   (100 万 token -> 20%) = 2*10^11，无推荐人，全归 owner
//   利润费 p3 = 2000000 (2 token -> 1%)   = 20000，无推荐人
//   owner 利润费 = 4000 + 200000000000 + 20000 = 200000024000
//   owner 合计   = 200000027000；affiliate 合计 = 1000
func seedLedger(t *testing.T) (*memRepo, *service.RevenueService) {
	t.Helper()
	ctx := context.Background()
	repo := newMemRepo()

	v1 := &domain.Vault{TokenSymbol: "USDC", TotalValueLocked: decimal.NewFromInt(100)}
	v2 := &domain.Vault{TokenSymbol: "USDT", TotalValueLocked: decimal.NewFromInt(200)}
	require.NoError(t, repo.CreateVault(ctx, v1))
	require.NoError(t, repo.CreateVault(ctx, v2))

	alice, err := repo.GetOrCreateUser(ctx, "0xaaaa000000000000000000000000000000000001")
	require.NoError(t, err)
	bob, err := repo.GetOrCreateUser(ctx, "0xbbbb000000000000000000000000000000000002")
	require.NoError(t, err)
	carol, err := repo.GetOrCreateUser(ctx, "0xcccc000000000000000000000000000000000003")
	require.NoError(t, err)

	// alice 由 carol 推荐
	require.NoError(t, repo.CreateAffiliate(ctx, &domain.Affiliate{
		UserID: alice.ID, ReferrerID: carol.ID, TotalEarnings: decimal.Zero,
	}))

	require.NoError(t, repo.CreateCapitalWithdrawal(ctx, &domain.CapitalWithdrawal{
		UserID: alice.ID, VaultID: v1.ID, Amount: decimal.NewFromInt(1000000),
	}))
	require.NoError(t, repo.CreateCapitalWithdrawal(ctx, &domain.CapitalWithdrawal{
		UserID: bob.ID, VaultID: v2.ID, Amount: decimal.NewFromInt(2000000),
	}))

	profits := []*domain.Profit{
		{UserID: alice.ID, VaultID: v1.ID, Amount: decimal.NewFromInt(500000)},
		{UserID: bob.ID, VaultID: v2.ID, Amount: decimal.RequireFromString("1000000000000")},
		{UserID: bob.ID, VaultID: v1.ID, Amount: decimal.NewFromInt(2000000)},
	}
	for _, p := range profits {
		require.NoError(t, repo.CreateProfit(ctx, p))
		require.NoError(t, repo.MarkProfitWithdrawn(ctx, p.ID))
	}
	// 未提取的利润不计费
	unrealized := &domain.Profit{UserID: alice.ID, VaultID: v1.ID, Amount: decimal.NewFromInt(77777)}
	require.NoError(t, repo.CreateProfit(ctx, unrealized))

	return repo, service.NewRevenueService(repo, nil, time.Minute)
}

func TestRevenueMetrics(t *testing.T) {
	_, svc := seedLedger(t)
	m, err := svc.Metrics(context.Background())
	require.NoError(t, err)

	require.Equal(t, "300", m.TvlTotal)
	require.Equal(t, "3000", m.Fees.Owner.Capital)
	require.Equal(t, "200000024000", m.Fees.Owner.Profit)
	require.Equal(t, "200000027000", m.Fees.Owner.Total)
	require.Equal(t, "1000", m.Fees.Affiliate.Profit)
	require.Equal(t, "1000", m.Fees.Affiliate.Total)

	require.Equal(t, 2, m.Counts.Vaults)
	require.Equal(t, 2, m.Counts.CapitalWithdrawals)
	require.Equal(t, 3, m.Counts.WithdrawnProfits)
	require.Equal(t, 1, m.Counts.Affiliates)
}

func TestRevenueMetricsEmptyLedger(t *testing.T) {
	repo := newMemRepo()
	svc := service.NewRevenueService(repo, nil, time.Minute)

	m, err := svc.Metrics(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0", m.TvlTotal)
	require.Equal(t, "0", m.Fees.Owner.Total)
	require.Equal(t, "0", m.Fees.Affiliate.Total)
	require.Zero(t, m.Counts.Vaults)
}

func TestRevenueByVault(t *testing.T) {
	_, svc := seedLedger(t)
	rows, err := svc.ByVault(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// v2: owner = 2000 + 2*10^11，排第一
	require.Equal(t, int64(2), rows[0].VaultID)
	require.Equal(t, "200000002000", rows[0].OwnerFeesTotal)
	require.Equal(t, "0", rows[0].AffiliateFeesProfit)

	// v1: 资本费 1000 + owner 利润费 (4000 + 20000)
	require.Equal(t, int64(1), rows[1].VaultID)
	require.Equal(t, "1000", rows[1].OwnerFeesCapital)
	require.Equal(t, "24000", rows[1].OwnerFeesProfit)
	require.Equal(t, "25000", rows[1].OwnerFeesTotal)
	require.Equal(t, "1000", rows[1].AffiliateFeesProfit)
}

func TestRevenueByAffiliate(t *testing.T) {
	repo, svc := seedLedger(t)
	rows, err := svc.ByAffiliate(context.Background())
	require.NoError(t, err)

	// 只有 alice 有推荐人，bob 的两笔利润不出现在本报表
	require.Len(t, rows, 1)
	aff, err := repo.FindUserByAddress(context.Background(), "0xcccc000000000000000000000000000000000003")
	require.NoError(t, err)
	require.Equal(t, aff.ID, rows[0].ReferrerID)
	require.Equal(t, 1, rows[0].UsersCount)
	require.Equal(t, "1000", rows[0].AffiliateProfitFees)
	require.Equal(t, "4000", rows[0].OwnerProfitFees)
}

func TestRevenueTimeseries(t *testing.T) {
	_, svc := seedLedger(t)
	ctx := context.Background()

	t.Run("days_out_of_range", func(t *testing.T) {
		_, err := svc.Timeseries(ctx, 0, nil, nil)
		require.Error(t, err)
		require.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))
		_, err = svc.Timeseries(ctx, 91, nil, nil)
		require.Error(t, err)
	})

	t.Run("buckets_end_today", func(t *testing.T) {
		res, err := svc.Timeseries(ctx, 3, nil, nil)
		require.NoError(t, err)
		require.Equal(t, 3, res.Days)
		require.Len(t, res.Series, 3)

		today := time.Now().UTC().Format("2006-01-02")
		require.Equal(t, today, res.Series[2].Date)
		// 所有记录都是刚写入的，全落在今天
		require.Equal(t, "200000027000", res.Series[2].Owner)
		require.Equal(t, "1000", res.Series[2].AffiliateProfit)
		require.Equal(t, "3000", res.Series[2].OwnerCapital)
		// 前两天零填充
		require.Equal(t, "0", res.Series[0].Owner)
		require.Equal(t, "0", res.Series[1].Owner)
	})

	t.Run("vault_filter", func(t *testing.T) {
		vaultID := int64(1)
		res, err := svc.Timeseries(ctx, 1, &vaultID, nil)
		require.NoError(t, err)
		require.Equal(t, "25000", res.Series[0].Owner)
		require.Equal(t, "1000", res.Series[0].AffiliateProfit)
	})

	t.Run("referrer_filter", func(t *testing.T) {
		repo, svc := seedLedger(t)
		carol, err := repo.FindUserByAddress(ctx, "0xcccc000000000000000000000000000000000003")
		require.NoError(t, err)

		res, err := svc.Timeseries(ctx, 1, nil, &carol.ID)
		require.NoError(t, err)
		// 只剩 alice 的记录：资本费 1000 + owner 利润费 4000
		require.Equal(t, "1000", res.Series[0].OwnerCapital)
		require.Equal(t, "4000", res.Series[0].OwnerProfit)
		require.Equal(t, "1000", res.Series[0].AffiliateProfit)
	})
}
