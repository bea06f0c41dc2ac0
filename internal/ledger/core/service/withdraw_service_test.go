package service_test

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"trude.com/internal/ledger/audit"
	"trude.com/internal/ledger/core/service"
	"trude.com/internal/ledger/domain"
	"trude.com/internal/ledger/infra/ethereum"
	"trude.com/pkg/xerr"
)

const (
	testChainID = int64(31337)

	userAddr     = "0x1111111111111111111111111111111111111111"
	referrerAddr = "0x2222222222222222222222222222222222222222"
	tokenAddr    = "0x3333333333333333333333333333333333333333"
	ownerAddr    = "0x4444444444444444444444444444444444444444"
	ledgerAddr   = "0x5555555555555555555555555555555555555555"

	testTxHash = "0x" + "ab12" + "0000000000000000000000000000000000000000000000000000000000" + "cd"
)

type fixture struct {
	repo     *memRepo
	vaultSvc *service.VaultService
	affSvc   *service.AffiliateService
	wdSvc    *service.WithdrawService
}

func newFixture(t *testing.T, policyCfg service.PolicyConfig, minProfitUsd int64) *fixture {
	t.Helper()
	repo := newMemRepo()
	recorder := audit.NewRecorder(repo, audit.NewMemBroker())
	txb, err := ethereum.NewTxBuilder(testChainID)
	require.NoError(t, err)

	return &fixture{
		repo:     repo,
		vaultSvc: service.NewVaultService(repo, recorder),
		affSvc:   service.NewAffiliateService(repo, recorder),
		wdSvc: service.NewWithdrawService(
			repo,
			recorder,
			service.NewMutexLocker(),
			ethereum.NewVerifier(testChainID),
			txb,
			service.NewPolicy(policyCfg, repo),
			service.NewPricer([]string{"USDC"}, minProfitUsd),
		),
	}
}

func (f *fixture) mustCreateVault(t *testing.T) *domain.Vault {
	t.Helper()
	v, err := f.vaultSvc.CreateVault(context.Background(), service.CreateVaultInput{
		TokenAddress:  tokenAddr,
		TokenSymbol:   "USDC",
		OwnerAddress:  ownerAddr,
		LedgerAddress: ledgerAddr,
	})
	require.NoError(t, err)
	return v
}

func TestCapitalWithdrawEndToEnd(t *testing.T) {
	f := newFixture(t, service.PolicyConfig{}, 0)
	ctx := context.Background()
	v := f.mustCreateVault(t)

	_, err := f.vaultSvc.ApplyDeposit(ctx, userAddr, v.ID, "1000000")
	require.NoError(t, err)
	_, err = f.vaultSvc.RegisterProfit(ctx, userAddr, v.ID, "500000")
	require.NoError(t, err)

	got, err := f.repo.FindVaultByID(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, "1500000", got.TotalValueLocked.String())

	res, err := f.wdSvc.RequestCapital(ctx, service.CapitalRequestInput{
		Mode:        "customer",
		UserAddress: userAddr,
		VaultID:     v.ID,
		Amount:      "200000",
	})
	require.NoError(t, err)
	require.Equal(t, domain.RequestStatusPending, res.Request.Status)
	require.True(t, strings.HasPrefix(res.PreparedTx.Data, "0x"))
	require.Equal(t, testChainID, res.PreparedTx.ChainID)

	fin, err := f.wdSvc.FinalizeCapital(ctx, userAddr, res.Request.ID, testTxHash)
	require.NoError(t, err)
	require.Equal(t, domain.RequestStatusExecuted, fin.Request.Status)
	require.Equal(t, "200000", fin.Withdrawal.Amount.String())

	got, err = f.repo.FindVaultByID(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, "1300000", got.TotalValueLocked.String())
}

func TestFinalizeCapitalIdempotent(t *testing.T) {
	f := newFixture(t, service.PolicyConfig{}, 0)
	ctx := context.Background()
	v := f.mustCreateVault(t)
	_, err := f.vaultSvc.ApplyDeposit(ctx, userAddr, v.ID, "1000")
	require.NoError(t, err)

	res, err := f.wdSvc.RequestCapital(ctx, service.CapitalRequestInput{
		Mode: "customer", UserAddress: userAddr, VaultID: v.ID, Amount: "1000",
	})
	require.NoError(t, err)

	_, err = f.wdSvc.FinalizeCapital(ctx, userAddr, res.Request.ID, testTxHash)
	require.NoError(t, err)

	_, err = f.wdSvc.FinalizeCapital(ctx, userAddr, res.Request.ID, testTxHash)
	require.Error(t, err)
	require.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))
}

func TestOverdrawPrevention(t *testing.T) {
	f := newFixture(t, service.PolicyConfig{}, 0)
	ctx := context.Background()
	v := f.mustCreateVault(t)
	_, err := f.vaultSvc.ApplyDeposit(ctx, userAddr, v.ID, "1000")
	require.NoError(t, err)

	// 超出可提本金的请求直接拒绝
	_, err = f.wdSvc.RequestCapital(ctx, service.CapitalRequestInput{
		Mode: "customer", UserAddress: userAddr, VaultID: v.ID, Amount: "1001",
	})
	require.Error(t, err)
	require.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))

	// 两个全额 PENDING 请求都能创建，但只有一个能落账
	r1, err := f.wdSvc.RequestCapital(ctx, service.CapitalRequestInput{
		Mode: "customer", UserAddress: userAddr, VaultID: v.ID, Amount: "1000",
	})
	require.NoError(t, err)
	r2, err := f.wdSvc.RequestCapital(ctx, service.CapitalRequestInput{
		Mode: "customer", UserAddress: userAddr, VaultID: v.ID, Amount: "1000",
	})
	require.NoError(t, err)

	_, err = f.wdSvc.FinalizeCapital(ctx, userAddr, r1.Request.ID, testTxHash)
	require.NoError(t, err)
	_, err = f.wdSvc.FinalizeCapital(ctx, userAddr, r2.Request.ID, testTxHash)
	require.Error(t, err)
	require.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))

	sum, err := f.repo.SumCapitalWithdrawals(ctx, r1.Request.UserID, v.ID)
	require.NoError(t, err)
	require.Equal(t, "1000", sum.String())
}

func TestAutoModePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("allowlist", func(t *testing.T) {
		f := newFixture(t, service.PolicyConfig{Allowlist: []string{referrerAddr}}, 0)
		v := f.mustCreateVault(t)
		_, err := f.vaultSvc.ApplyDeposit(ctx, userAddr, v.ID, "1000")
		require.NoError(t, err)

		_, err = f.wdSvc.RequestCapital(ctx, service.CapitalRequestInput{
			Mode: "auto", UserAddress: userAddr, VaultID: v.ID, Amount: "100",
		})
		require.Error(t, err)
		require.Equal(t, xerr.Forbidden, xerr.CodeOf(err))
		require.Contains(t, f.repo.auditActions(), "POLICY_NOT_ALLOWLISTED:REJECTED")
	})

	t.Run("per_tx_cap", func(t *testing.T) {
		f := newFixture(t, service.PolicyConfig{PerTxCap: decimal.NewFromInt(500)}, 0)
		v := f.mustCreateVault(t)
		_, err := f.vaultSvc.ApplyDeposit(ctx, userAddr, v.ID, "1000")
		require.NoError(t, err)

		_, err = f.wdSvc.RequestCapital(ctx, service.CapitalRequestInput{
			Mode: "auto", UserAddress: userAddr, VaultID: v.ID, Amount: "501",
		})
		require.Error(t, err)
		require.Equal(t, xerr.Forbidden, xerr.CodeOf(err))

		_, err = f.wdSvc.RequestCapital(ctx, service.CapitalRequestInput{
			Mode: "auto", UserAddress: userAddr, VaultID: v.ID, Amount: "500",
		})
		require.NoError(t, err)
	})

	t.Run("daily_cap", func(t *testing.T) {
		f := newFixture(t, service.PolicyConfig{DailyCap: decimal.NewFromInt(600)}, 0)
		v := f.mustCreateVault(t)
		_, err := f.vaultSvc.ApplyDeposit(ctx, userAddr, v.ID, "1000")
		require.NoError(t, err)

		_, err = f.wdSvc.RequestCapital(ctx, service.CapitalRequestInput{
			Mode: "auto", UserAddress: userAddr, VaultID: v.ID, Amount: "400",
		})
		require.NoError(t, err)

		// PENDING 请求也占当日额度
		_, err = f.wdSvc.RequestCapital(ctx, service.CapitalRequestInput{
			Mode: "auto", UserAddress: userAddr, VaultID: v.ID, Amount: "300",
		})
		require.Error(t, err)
		require.Equal(t, xerr.Forbidden, xerr.CodeOf(err))
		require.Contains(t, f.repo.auditActions(), "POLICY_DAILY_LIMIT:REJECTED")
	})
}

func TestEIP712Mode(t *testing.T) {
	ctx := context.Background()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerAddr := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	f := newFixture(t, service.PolicyConfig{}, 0)
	v := f.mustCreateVault(t)
	_, err = f.vaultSvc.ApplyDeposit(ctx, signerAddr, v.ID, "1000")
	require.NoError(t, err)

	verifier := ethereum.NewVerifier(testChainID)
	deadline := time.Now().Add(10 * time.Minute).Unix()
	digest := verifier.WithdrawDigest(
		ethcommon.HexToAddress(v.LedgerAddress),
		ethcommon.HexToAddress(signerAddr),
		big.NewInt(v.ID),
		big.NewInt(400),
		big.NewInt(7),
		big.NewInt(deadline),
	)
	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)

	t.Run("valid_signature", func(t *testing.T) {
		res, err := f.wdSvc.RequestCapital(ctx, service.CapitalRequestInput{
			Mode:        "eip712",
			UserAddress: signerAddr,
			VaultID:     v.ID,
			Amount:      "400",
			Signature:   hexutil.Encode(sig),
			Nonce:       7,
			Deadline:    deadline,
		})
		require.NoError(t, err)
		require.Equal(t, digest.Hex(), res.Request.RequestHash)
		require.Equal(t, deadline, res.Request.Deadline)
	})

	t.Run("signer_mismatch", func(t *testing.T) {
		otherKey, err := crypto.GenerateKey()
		require.NoError(t, err)
		badSig, err := crypto.Sign(digest.Bytes(), otherKey)
		require.NoError(t, err)

		_, err = f.wdSvc.RequestCapital(ctx, service.CapitalRequestInput{
			Mode:        "eip712",
			UserAddress: signerAddr,
			VaultID:     v.ID,
			Amount:      "400",
			Signature:   hexutil.Encode(badSig),
			Nonce:       7,
			Deadline:    deadline,
		})
		require.Error(t, err)
		require.Equal(t, xerr.Forbidden, xerr.CodeOf(err))
		require.Contains(t, f.repo.auditActions(), "SIGNATURE_INVALID:REJECTED")
	})

	t.Run("expired_deadline", func(t *testing.T) {
		_, err := f.wdSvc.RequestCapital(ctx, service.CapitalRequestInput{
			Mode:        "eip712",
			UserAddress: signerAddr,
			VaultID:     v.ID,
			Amount:      "400",
			Signature:   hexutil.Encode(sig),
			Nonce:       7,
			Deadline:    time.Now().Add(-time.Minute).Unix(),
		})
		require.Error(t, err)
		require.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))
	})
}

func TestProfitThresholdGating(t *testing.T) {
	// 最低 100 美元，0.5 USDC 的利润过不了门槛
	f := newFixture(t, service.PolicyConfig{}, 100)
	ctx := context.Background()
	v := f.mustCreateVault(t)

	p, err := f.vaultSvc.RegisterProfit(ctx, userAddr, v.ID, "500000")
	require.NoError(t, err)

	_, err = f.wdSvc.RequestProfit(ctx, userAddr, p.ID)
	require.Error(t, err)
	require.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))
	require.Contains(t, f.repo.auditActions(), "WITHDRAW_PROFIT:REJECTED")

	// 无状态变化
	got, err := f.repo.FindProfitByID(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, got.Withdrawn)

	// 200 USDC 可以过
	p2, err := f.vaultSvc.RegisterProfit(ctx, userAddr, v.ID, "200000000")
	require.NoError(t, err)
	res, err := f.wdSvc.RequestProfit(ctx, userAddr, p2.ID)
	require.NoError(t, err)
	require.NotNil(t, res.PreparedTx)
	// request 阶段不翻转 withdrawn
	got2, err := f.repo.FindProfitByID(ctx, p2.ID)
	require.NoError(t, err)
	require.False(t, got2.Withdrawn)
}

func TestFinalizeProfitAccruesAffiliate(t *testing.T) {
	f := newFixture(t, service.PolicyConfig{}, 0)
	ctx := context.Background()
	v := f.mustCreateVault(t)

	_, err := f.affSvc.Register(ctx, userAddr, referrerAddr)
	require.NoError(t, err)

	p, err := f.vaultSvc.RegisterProfit(ctx, userAddr, v.ID, "500000")
	require.NoError(t, err)
	tvlBefore, err := f.repo.FindVaultByID(ctx, v.ID)
	require.NoError(t, err)

	got, err := f.wdSvc.FinalizeProfit(ctx, userAddr, p.ID, testTxHash)
	require.NoError(t, err)
	require.True(t, got.Withdrawn)

	// 1% 费率 -> 费 5000，默认 2000bps 分成 -> 推荐人得 1000
	user, err := f.repo.FindUserByAddress(ctx, userAddr)
	require.NoError(t, err)
	aff, err := f.repo.FindAffiliateByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "1000", aff.TotalEarnings.String())

	// 利润提取不动 TVL
	tvlAfter, err := f.repo.FindVaultByID(ctx, v.ID)
	require.NoError(t, err)
	require.True(t, tvlBefore.TotalValueLocked.Equal(tvlAfter.TotalValueLocked))

	// withdrawn 只翻一次
	_, err = f.wdSvc.FinalizeProfit(ctx, userAddr, p.ID, testTxHash)
	require.Error(t, err)
	require.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))
}

func TestAffiliateEarningsFlow(t *testing.T) {
	f := newFixture(t, service.PolicyConfig{}, 0)
	ctx := context.Background()
	v := f.mustCreateVault(t)

	_, err := f.affSvc.Register(ctx, userAddr, referrerAddr)
	require.NoError(t, err)
	p, err := f.vaultSvc.RegisterProfit(ctx, userAddr, v.ID, "500000")
	require.NoError(t, err)
	_, err = f.wdSvc.FinalizeProfit(ctx, userAddr, p.ID, testTxHash)
	require.NoError(t, err)

	// 空金额 = 全额提取
	reqID, err := f.wdSvc.RequestAffiliate(ctx, userAddr, nil)
	require.NoError(t, err)

	req, err := f.repo.FindRequestByID(ctx, reqID)
	require.NoError(t, err)
	require.Equal(t, int64(0), req.VaultID)
	require.Equal(t, "1000", req.Amount.String())

	require.NoError(t, f.wdSvc.FinalizeAffiliate(ctx, userAddr, reqID))

	user, err := f.repo.FindUserByAddress(ctx, userAddr)
	require.NoError(t, err)
	aff, err := f.repo.FindAffiliateByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, aff.TotalEarnings.IsZero())

	// 再 finalize：余额已扣光
	err = f.wdSvc.FinalizeAffiliate(ctx, userAddr, reqID)
	require.Error(t, err)
	require.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))
}

func TestAffiliateUniqueness(t *testing.T) {
	f := newFixture(t, service.PolicyConfig{}, 0)
	ctx := context.Background()

	_, err := f.affSvc.Register(ctx, userAddr, referrerAddr)
	require.NoError(t, err)

	_, err = f.affSvc.Register(ctx, userAddr, ownerAddr)
	require.Error(t, err)
	require.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))

	// 自荐拒绝
	_, err = f.affSvc.Register(ctx, ownerAddr, ownerAddr)
	require.Error(t, err)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t, service.PolicyConfig{}, 0)
	ctx := context.Background()
	v := f.mustCreateVault(t)
	_, err := f.vaultSvc.ApplyDeposit(ctx, userAddr, v.ID, "1000")
	require.NoError(t, err)

	cases := []struct {
		name string
		in   service.CapitalRequestInput
	}{
		{"bad_mode", service.CapitalRequestInput{Mode: "magic", UserAddress: userAddr, VaultID: v.ID, Amount: "1"}},
		{"bad_address", service.CapitalRequestInput{Mode: "customer", UserAddress: "not-an-address", VaultID: v.ID, Amount: "1"}},
		{"zero_amount", service.CapitalRequestInput{Mode: "customer", UserAddress: userAddr, VaultID: v.ID, Amount: "0"}},
		{"negative_amount", service.CapitalRequestInput{Mode: "customer", UserAddress: userAddr, VaultID: v.ID, Amount: "-5"}},
		{"fractional_amount", service.CapitalRequestInput{Mode: "customer", UserAddress: userAddr, VaultID: v.ID, Amount: "1.5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.wdSvc.RequestCapital(ctx, tc.in)
			require.Error(t, err)
			require.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))
		})
	}

	// 非法 txHash
	res, err := f.wdSvc.RequestCapital(ctx, service.CapitalRequestInput{
		Mode: "customer", UserAddress: userAddr, VaultID: v.ID, Amount: "10",
	})
	require.NoError(t, err)
	_, err = f.wdSvc.FinalizeCapital(ctx, userAddr, res.Request.ID, "deadbeef")
	require.Error(t, err)
	require.Equal(t, xerr.RequestParamsError, xerr.CodeOf(err))
}
