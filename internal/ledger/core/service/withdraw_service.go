package service

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"trude.com/internal/ledger/audit"
	"trude.com/internal/ledger/domain"
	"trude.com/internal/ledger/fee"
	"trude.com/internal/ledger/infra/ethereum"
	"trude.com/pkg/logger"
	"trude.com/pkg/metrics"
	"trude.com/pkg/xerr"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// WithdrawService 提现工作流
// 三条流水线共用同一套纪律：锁内查余额、校验、落账；条件更新兜底幂等
type WithdrawService struct {
	repo     domain.Repository
	recorder *audit.Recorder
	locker   Locker
	verifier *ethereum.Verifier
	txb      *ethereum.TxBuilder
	policy   *Policy
	pricer   *Pricer
}

func NewWithdrawService(
	repo domain.Repository,
	recorder *audit.Recorder,
	locker Locker,
	verifier *ethereum.Verifier,
	txb *ethereum.TxBuilder,
	policy *Policy,
	pricer *Pricer,
) *WithdrawService {
	return &WithdrawService{
		repo:     repo,
		recorder: recorder,
		locker:   locker,
		verifier: verifier,
		txb:      txb,
		policy:   policy,
		pricer:   pricer,
	}
}

type CapitalRequestInput struct {
	Mode        string
	UserAddress string
	VaultID     int64
	Amount      string
	Signature   string
	Nonce       int64
	Deadline    int64 // unix 秒
}

type CapitalRequestResult struct {
	Request    *domain.WithdrawalRequest `json:"request"`
	PreparedTx *ethereum.PreparedTx      `json:"preparedTx"`
}

// RequestCapital 资本提现请求
// auto 走策略闸门，eip712 验离线签名，customer 自助不设闸门
// 三种模式都落 PENDING 请求行并返回预构造交易；闸门失败只审计不落行
func (s *WithdrawService) RequestCapital(ctx context.Context, in CapitalRequestInput) (*CapitalRequestResult, error) {
	mode := domain.WithdrawMode(in.Mode)
	switch mode {
	case domain.WithdrawModeAuto, domain.WithdrawModeEIP712, domain.WithdrawModeCustomer:
	default:
		return nil, xerr.New(xerr.RequestParamsError, "不支持的提现模式")
	}

	addr, err := normalizeAddress(in.UserAddress)
	if err != nil {
		return nil, err
	}
	amt, err := parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	if !amt.IsPositive() {
		return nil, xerr.New(xerr.RequestParamsError, "金额必须大于 0")
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if settings.IsPaused {
		return nil, xerr.New(xerr.Forbidden, "系统已暂停")
	}
	vault, err := s.repo.FindVaultByID(ctx, in.VaultID)
	if err != nil {
		return nil, err
	}
	if vault.IsPaused {
		return nil, xerr.New(xerr.Forbidden, "金库已暂停")
	}
	user, err := s.repo.FindUserByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}

	var result *CapitalRequestResult
	lockKey := fmt.Sprintf("capital:%d:%s", in.VaultID, addr)
	err = s.locker.WithLock(ctx, lockKey, func(ctx context.Context) error {
		deposits, err := s.repo.SumDeposits(ctx, user.ID, in.VaultID)
		if err != nil {
			return err
		}
		withdrawn, err := s.repo.SumCapitalWithdrawals(ctx, user.ID, in.VaultID)
		if err != nil {
			return err
		}
		available := deposits.Sub(withdrawn)
		if amt.Cmp(available) > 0 {
			s.recorder.Record(ctx, audit.Entry{
				Action:  "WITHDRAW_CAPITAL_REQUEST",
				Status:  domain.AuditStatusRejected,
				UserID:  user.ID,
				VaultID: in.VaultID,
				Details: map[string]interface{}{
					"reason":    "INSUFFICIENT_PRINCIPAL",
					"amount":    amt.String(),
					"available": available.String(),
				},
			})
			metrics.WithdrawRequestTotal.WithLabelValues("capital", in.Mode, "rejected").Inc()
			return xerr.New(xerr.RequestParamsError, "可提本金不足")
		}

		req := &domain.WithdrawalRequest{
			UserID:  user.ID,
			VaultID: in.VaultID,
			Amount:  amt,
			Mode:    mode,
			Status:  domain.RequestStatusPending,
		}

		switch mode {
		case domain.WithdrawModeAuto:
			reason, err := s.policy.CheckCapital(ctx, user, amt)
			if err != nil {
				return err
			}
			if reason != "" {
				s.recorder.Record(ctx, audit.Entry{
					Action:  "POLICY_" + reason,
					Status:  domain.AuditStatusRejected,
					UserID:  user.ID,
					VaultID: in.VaultID,
					Details: map[string]interface{}{"amount": amt.String()},
				})
				metrics.PolicyRejectTotal.WithLabelValues(reason).Inc()
				metrics.WithdrawRequestTotal.WithLabelValues("capital", in.Mode, "rejected").Inc()
				return xerr.New(xerr.Forbidden, "策略检查未通过")
			}

		case domain.WithdrawModeEIP712:
			if in.Signature == "" {
				return xerr.New(xerr.RequestParamsError, "缺少签名")
			}
			if in.Deadline <= time.Now().Unix() {
				s.recorder.Record(ctx, audit.Entry{
					Action:  "SIGNATURE_INVALID",
					Status:  domain.AuditStatusRejected,
					UserID:  user.ID,
					VaultID: in.VaultID,
					Details: map[string]interface{}{"reason": "DEADLINE_EXPIRED", "deadline": in.Deadline},
				})
				metrics.WithdrawRequestTotal.WithLabelValues("capital", in.Mode, "rejected").Inc()
				return xerr.New(xerr.RequestParamsError, "签名已过期")
			}
			sig, err := hexutil.Decode(in.Signature)
			if err != nil {
				return xerr.New(xerr.RequestParamsError, "签名格式不正确")
			}
			digest := s.verifier.WithdrawDigest(
				ethcommon.HexToAddress(vault.LedgerAddress),
				ethcommon.HexToAddress(addr),
				big.NewInt(in.VaultID),
				domain.AmountToBig(amt),
				big.NewInt(in.Nonce),
				big.NewInt(in.Deadline),
			)
			signer, err := s.verifier.RecoverSigner(digest, sig)
			if err != nil || !strings.EqualFold(signer.Hex(), addr) {
				s.recorder.Record(ctx, audit.Entry{
					Action:  "SIGNATURE_INVALID",
					Status:  domain.AuditStatusRejected,
					UserID:  user.ID,
					VaultID: in.VaultID,
					Details: map[string]interface{}{"reason": "SIGNER_MISMATCH"},
				})
				metrics.WithdrawRequestTotal.WithLabelValues("capital", in.Mode, "rejected").Inc()
				return xerr.New(xerr.Forbidden, "签名校验失败")
			}
			req.RequestHash = digest.Hex()
			req.Signature = in.Signature
			req.Deadline = in.Deadline

		case domain.WithdrawModeCustomer:
			// 用户自助广播、自付 gas，不设闸门
		}

		if req.RequestHash == "" {
			req.RequestHash = genRequestHash(user.ID, in.VaultID, amt.String())
		}
		if err := s.repo.CreateRequest(ctx, req); err != nil {
			return err
		}

		tx, err := s.txb.WithdrawCapital(vault.LedgerAddress, addr, in.VaultID, domain.AmountToBig(amt))
		if err != nil {
			return xerr.New(xerr.ServerCommonError, "构造交易失败")
		}

		s.recorder.Record(ctx, audit.Entry{
			Action:    "WITHDRAW_CAPITAL_REQUEST",
			Status:    domain.AuditStatusPending,
			UserID:    user.ID,
			VaultID:   in.VaultID,
			RequestID: req.ID,
			Details: map[string]interface{}{
				"mode":   in.Mode,
				"amount": amt.String(),
			},
		})
		metrics.WithdrawRequestTotal.WithLabelValues("capital", in.Mode, "ok").Inc()
		result = &CapitalRequestResult{Request: req, PreparedTx: tx}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "capital withdrawal requested",
		zap.Int64("request_id", result.Request.ID),
		zap.Int64("vault_id", in.VaultID),
		zap.String("mode", in.Mode),
		zap.String("amount", amt.String()),
	)
	return result, nil
}

// 非 eip712 模式的请求哈希：仅作外部引用标识，uuid 保证唯一
func genRequestHash(userID, vaultID int64, amount string) string {
	seed := fmt.Sprintf("%d:%d:%s:%s", userID, vaultID, amount, uuid.New().String())
	return crypto.Keccak256Hash([]byte(seed)).Hex()
}

type CapitalFinalizeResult struct {
	Request    *domain.WithdrawalRequest `json:"request"`
	Withdrawal *domain.CapitalWithdrawal `json:"withdrawal"`
	TxHash     string                    `json:"txHash"`
}

// FinalizeCapital 资本提现落账：客户端广播确认后回调
// 原子效果：请求置 EXECUTED、创建 CapitalWithdrawal、TVL 递减
func (s *WithdrawService) FinalizeCapital(ctx context.Context, userAddr string, requestID int64, txHash string) (*CapitalFinalizeResult, error) {
	if !txHashPattern.MatchString(txHash) {
		return nil, xerr.New(xerr.RequestParamsError, "交易哈希格式不正确")
	}
	addr, err := normalizeAddress(userAddr)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindUserByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}
	req, err := s.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.UserID != user.ID {
		return nil, xerr.New(xerr.Forbidden, "无权操作该请求")
	}
	if req.VaultID == 0 {
		return nil, xerr.New(xerr.RequestParamsError, "请求类型不匹配")
	}
	if req.Status == domain.RequestStatusExecuted {
		return nil, xerr.New(xerr.RequestParamsError, "请求已执行")
	}
	// eip712 的 deadline 在 finalize 再查一次，过期的授权不允许落账
	if req.Mode == domain.WithdrawModeEIP712 && req.Deadline > 0 && time.Now().Unix() > req.Deadline {
		s.recorder.Record(ctx, audit.Entry{
			Action:    "WITHDRAW_CAPITAL_FINALIZE",
			Status:    domain.AuditStatusRejected,
			UserID:    user.ID,
			VaultID:   req.VaultID,
			RequestID: req.ID,
			Details:   map[string]interface{}{"reason": "DEADLINE_EXPIRED"},
		})
		metrics.WithdrawFinalizeTotal.WithLabelValues("capital", "rejected").Inc()
		return nil, xerr.New(xerr.RequestParamsError, "签名已过期")
	}

	w := &domain.CapitalWithdrawal{UserID: req.UserID, VaultID: req.VaultID, Amount: req.Amount}
	lockKey := fmt.Sprintf("capital:%d:%s", req.VaultID, addr)
	err = s.locker.WithLock(ctx, lockKey, func(ctx context.Context) error {
		// 请求时的余额检查拦不住两个 PENDING 请求，落账前必须再查一次
		deposits, err := s.repo.SumDeposits(ctx, user.ID, req.VaultID)
		if err != nil {
			return err
		}
		withdrawn, err := s.repo.SumCapitalWithdrawals(ctx, user.ID, req.VaultID)
		if err != nil {
			return err
		}
		if req.Amount.Cmp(deposits.Sub(withdrawn)) > 0 {
			s.recorder.Record(ctx, audit.Entry{
				Action:    "WITHDRAW_CAPITAL_FINALIZE",
				Status:    domain.AuditStatusRejected,
				UserID:    user.ID,
				VaultID:   req.VaultID,
				RequestID: req.ID,
				Details:   map[string]interface{}{"reason": "INSUFFICIENT_PRINCIPAL"},
			})
			return xerr.New(xerr.RequestParamsError, "可提本金不足")
		}
		return s.repo.Transaction(ctx, func(ctx context.Context) error {
			// 条件更新：并发/重复 finalize 在这里被拦掉
			if err := s.repo.MarkRequestExecuted(ctx, req.ID, txHash); err != nil {
				return err
			}
			if err := s.repo.CreateCapitalWithdrawal(ctx, w); err != nil {
				return err
			}
			return s.repo.SubVaultTVL(ctx, req.VaultID, req.Amount)
		})
	})
	if err != nil {
		metrics.WithdrawFinalizeTotal.WithLabelValues("capital", "rejected").Inc()
		return nil, err
	}

	req.Status = domain.RequestStatusExecuted
	req.OnChain = true
	req.TxHash = txHash

	s.recorder.Record(ctx, audit.Entry{
		Action:    "WITHDRAW_CAPITAL_FINALIZE",
		Status:    domain.AuditStatusExecuted,
		UserID:    user.ID,
		VaultID:   req.VaultID,
		RequestID: req.ID,
		Details: map[string]interface{}{
			"amount":  req.Amount.String(),
			"tx_hash": txHash,
		},
	})
	metrics.WithdrawFinalizeTotal.WithLabelValues("capital", "ok").Inc()
	logger.Info(ctx, "capital withdrawal finalized",
		zap.Int64("request_id", req.ID),
		zap.String("tx_hash", txHash),
	)
	return &CapitalFinalizeResult{Request: req, Withdrawal: w, TxHash: txHash}, nil
}

type ProfitRequestResult struct {
	Profit     *domain.Profit       `json:"profit"`
	PreparedTx *ethereum.PreparedTx `json:"preparedTx"`
}

// RequestProfit 利润提取请求：过美元门槛后返回预构造交易
// 这里不翻转 withdrawn，链上确认后由 FinalizeProfit 落账
func (s *WithdrawService) RequestProfit(ctx context.Context, userAddr string, profitID int64) (*ProfitRequestResult, error) {
	addr, err := normalizeAddress(userAddr)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindUserByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.FindProfitByID(ctx, profitID)
	if err != nil {
		return nil, err
	}
	if p.UserID != user.ID {
		return nil, xerr.New(xerr.Forbidden, "无权操作该利润记录")
	}
	if p.Withdrawn {
		return nil, xerr.New(xerr.RequestParamsError, "利润已提取")
	}
	vault, err := s.repo.FindVaultByID(ctx, p.VaultID)
	if err != nil {
		return nil, err
	}

	if !s.pricer.MeetsMinimum(vault.TokenSymbol, p.Amount) {
		s.recorder.Record(ctx, audit.Entry{
			Action:  "WITHDRAW_PROFIT",
			Status:  domain.AuditStatusRejected,
			UserID:  user.ID,
			VaultID: p.VaultID,
			Details: map[string]interface{}{
				"reason":    "BELOW_MIN_USD",
				"profit_id": p.ID,
				"amount":    p.Amount.String(),
			},
		})
		metrics.WithdrawRequestTotal.WithLabelValues("profit", "none", "rejected").Inc()
		return nil, xerr.New(xerr.RequestParamsError, "低于最小提取额度")
	}

	tx, err := s.txb.WithdrawProfit(vault.LedgerAddress, p.ID)
	if err != nil {
		return nil, xerr.New(xerr.ServerCommonError, "构造交易失败")
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:  "WITHDRAW_PROFIT",
		Status:  domain.AuditStatusPending,
		UserID:  user.ID,
		VaultID: p.VaultID,
		Details: map[string]interface{}{
			"profit_id": p.ID,
			"amount":    p.Amount.String(),
		},
	})
	metrics.WithdrawRequestTotal.WithLabelValues("profit", "none", "ok").Inc()
	return &ProfitRequestResult{Profit: p, PreparedTx: tx}, nil
}

// FinalizeProfit 利润提取落账：withdrawn 翻转一次，推荐人分成在此刻计提
// TVL 不变：利润提取走的是链上账本合约，不动金库托管余额
func (s *WithdrawService) FinalizeProfit(ctx context.Context, userAddr string, profitID int64, txHash string) (*domain.Profit, error) {
	if !txHashPattern.MatchString(txHash) {
		return nil, xerr.New(xerr.RequestParamsError, "交易哈希格式不正确")
	}
	addr, err := normalizeAddress(userAddr)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindUserByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.FindProfitByID(ctx, profitID)
	if err != nil {
		return nil, err
	}
	if p.UserID != user.ID {
		return nil, xerr.New(xerr.Forbidden, "无权操作该利润记录")
	}
	if p.Withdrawn {
		return nil, xerr.New(xerr.RequestParamsError, "利润已提取")
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	pct := fee.DynamicProfitFeePercent(domain.AmountToBig(p.Amount), settings.MaxFeePercent)
	feeAmt := fee.ProfitFee(domain.AmountToBig(p.Amount), pct)
	affCut, ownerCut := fee.SplitFee(feeAmt, settings.AffiliateShareBps)

	lockKey := fmt.Sprintf("profit:%d:%s", p.VaultID, addr)
	err = s.locker.WithLock(ctx, lockKey, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(ctx context.Context) error {
			// 条件翻转，第二次 finalize 在这里失败
			if err := s.repo.MarkProfitWithdrawn(ctx, p.ID); err != nil {
				return err
			}
			aff, err := s.repo.FindAffiliateByUserID(ctx, p.UserID)
			if err != nil {
				if xerr.IsCode(err, xerr.RecordNotFound) {
					return nil // 无推荐人，分成全归 owner，报表现算
				}
				return err
			}
			if affCut.Sign() > 0 {
				return s.repo.AddAffiliateEarnings(ctx, aff.ID, domain.AmountFromBig(affCut))
			}
			return nil
		})
	})
	if err != nil {
		metrics.WithdrawFinalizeTotal.WithLabelValues("profit", "rejected").Inc()
		return nil, err
	}

	p.Withdrawn = true
	s.recorder.Record(ctx, audit.Entry{
		Action:  "WITHDRAW_PROFIT_FINALIZE",
		Status:  domain.AuditStatusExecuted,
		UserID:  user.ID,
		VaultID: p.VaultID,
		Details: map[string]interface{}{
			"profit_id":     p.ID,
			"amount":        p.Amount.String(),
			"fee_percent":   pct,
			"fee":           feeAmt.String(),
			"affiliate_cut": affCut.String(),
			"owner_cut":     ownerCut.String(),
			"tx_hash":       txHash,
		},
	})
	metrics.WithdrawFinalizeTotal.WithLabelValues("profit", "ok").Inc()
	logger.Info(ctx, "profit withdrawal finalized",
		zap.Int64("profit_id", p.ID),
		zap.Int64("fee_percent", pct),
		zap.String("tx_hash", txHash),
	)
	return p, nil
}

// RequestAffiliate 推荐人收益提现请求
// amountSmallest 为空表示全额；VaultID=0 哨兵标记非金库维度请求
func (s *WithdrawService) RequestAffiliate(ctx context.Context, userAddr string, amountSmallest *string) (int64, error) {
	addr, err := normalizeAddress(userAddr)
	if err != nil {
		return 0, err
	}
	user, err := s.repo.FindUserByAddress(ctx, addr)
	if err != nil {
		return 0, err
	}
	aff, err := s.repo.FindAffiliateByUserID(ctx, user.ID)
	if err != nil {
		return 0, err
	}

	amt := aff.TotalEarnings
	if amountSmallest != nil {
		amt, err = parseAmount(*amountSmallest)
		if err != nil {
			return 0, err
		}
	}
	if !amt.IsPositive() {
		return 0, xerr.New(xerr.RequestParamsError, "无可提收益")
	}
	if amt.Cmp(aff.TotalEarnings) > 0 {
		return 0, xerr.New(xerr.RequestParamsError, "可提收益不足")
	}
	// 推荐收益以稳定币最小单位计
	if !s.pricer.MeetsMinimum("", amt) {
		s.recorder.Record(ctx, audit.Entry{
			Action:  "WITHDRAW_AFFILIATE_REQUEST",
			Status:  domain.AuditStatusRejected,
			UserID:  user.ID,
			Details: map[string]interface{}{"reason": "BELOW_MIN_USD", "amount": amt.String()},
		})
		metrics.WithdrawRequestTotal.WithLabelValues("affiliate", "auto", "rejected").Inc()
		return 0, xerr.New(xerr.RequestParamsError, "低于最小提取额度")
	}

	req := &domain.WithdrawalRequest{
		UserID:      user.ID,
		VaultID:     0,
		Amount:      amt,
		Mode:        domain.WithdrawModeAuto,
		Status:      domain.RequestStatusPending,
		RequestHash: genRequestHash(user.ID, 0, amt.String()),
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return 0, err
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:    "WITHDRAW_AFFILIATE_REQUEST",
		Status:    domain.AuditStatusPending,
		UserID:    user.ID,
		RequestID: req.ID,
		Details:   map[string]interface{}{"amount": amt.String()},
	})
	metrics.WithdrawRequestTotal.WithLabelValues("affiliate", "auto", "ok").Inc()
	return req.ID, nil
}

// FinalizeAffiliate 推荐人收益落账：条件扣减 totalEarnings，防双花
func (s *WithdrawService) FinalizeAffiliate(ctx context.Context, userAddr string, requestID int64) error {
	addr, err := normalizeAddress(userAddr)
	if err != nil {
		return err
	}
	user, err := s.repo.FindUserByAddress(ctx, addr)
	if err != nil {
		return err
	}
	req, err := s.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.UserID != user.ID {
		return xerr.New(xerr.Forbidden, "无权操作该请求")
	}
	if req.VaultID != 0 {
		return xerr.New(xerr.RequestParamsError, "请求类型不匹配")
	}
	if req.Status == domain.RequestStatusExecuted {
		return xerr.New(xerr.RequestParamsError, "请求已执行")
	}
	aff, err := s.repo.FindAffiliateByUserID(ctx, user.ID)
	if err != nil {
		return err
	}

	err = s.locker.WithLock(ctx, "affiliate:"+addr, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(ctx context.Context) error {
			if err := s.repo.SubAffiliateEarnings(ctx, aff.ID, req.Amount); err != nil {
				return err
			}
			// 链下结转，没有交易哈希
			return s.repo.MarkRequestExecuted(ctx, req.ID, "")
		})
	})
	if err != nil {
		metrics.WithdrawFinalizeTotal.WithLabelValues("affiliate", "rejected").Inc()
		return err
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:    "WITHDRAW_AFFILIATE_FINALIZE",
		Status:    domain.AuditStatusExecuted,
		UserID:    user.ID,
		RequestID: req.ID,
		Details:   map[string]interface{}{"amount": req.Amount.String()},
	})
	metrics.WithdrawFinalizeTotal.WithLabelValues("affiliate", "ok").Inc()
	return nil
}
