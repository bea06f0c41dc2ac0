package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"trude.com/internal/ledger/domain"
	"trude.com/pkg/xerr"
)

// memRepo 进程内账本，错误码与 gorm 仓储实现保持一致，
// 服务层测试不依赖 MySQL
type memRepo struct {
	mu sync.Mutex

	nextID      int64
	settings    *domain.FactorySettings
	users       map[int64]*domain.User
	vaults      map[int64]*domain.Vault
	deposits    []*domain.Deposit
	profits     map[int64]*domain.Profit
	withdrawals []*domain.CapitalWithdrawal
	requests    map[int64]*domain.WithdrawalRequest
	affiliates  map[int64]*domain.Affiliate
	audits      []*domain.AuditLog
}

var _ domain.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		users:      make(map[int64]*domain.User),
		vaults:     make(map[int64]*domain.Vault),
		profits:    make(map[int64]*domain.Profit),
		requests:   make(map[int64]*domain.WithdrawalRequest),
		affiliates: make(map[int64]*domain.Affiliate),
	}
}

func (r *memRepo) id() int64 {
	r.nextID++
	return r.nextID
}

// Transaction 单机内存版，写入本身就是串行的
func (r *memRepo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *memRepo) GetOrCreateUser(ctx context.Context, address string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Address == address {
			cp := *u
			return &cp, nil
		}
	}
	u := &domain.User{ID: r.id(), Address: address, CreatedAt: time.Now()}
	r.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (r *memRepo) FindUserByAddress(ctx context.Context, address string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Address == address {
			cp := *u
			return &cp, nil
		}
	}
	return nil, xerr.New(xerr.RecordNotFound, "用户不存在")
}

func (r *memRepo) FindUserByID(ctx context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, xerr.New(xerr.RecordNotFound, "用户不存在")
	}
	cp := *u
	return &cp, nil
}

func (r *memRepo) GetSettings(ctx context.Context) (*domain.FactorySettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settings == nil {
		r.settings = &domain.FactorySettings{
			ID:                1,
			MinDeposit:        decimal.Zero,
			AffiliateShareBps: domain.DefaultAffiliateShareBps,
			MaxFeePercent:     domain.DefaultMaxFeePercent,
		}
	}
	cp := *r.settings
	return &cp, nil
}

func (r *memRepo) UpdateSettings(ctx context.Context, s *domain.FactorySettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	cp.ID = 1
	r.settings = &cp
	return nil
}

func (r *memRepo) CreateVault(ctx context.Context, v *domain.Vault) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v.ID = r.id()
	v.CreatedAt = time.Now()
	cp := *v
	r.vaults[v.ID] = &cp
	return nil
}

func (r *memRepo) FindVaultByID(ctx context.Context, id int64) (*domain.Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vaults[id]
	if !ok {
		return nil, xerr.New(xerr.RecordNotFound, "金库不存在")
	}
	cp := *v
	return &cp, nil
}

func (r *memRepo) ListVaults(ctx context.Context) ([]domain.Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Vault, 0, len(r.vaults))
	for id := int64(1); id <= r.nextID; id++ {
		if v, ok := r.vaults[id]; ok {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (r *memRepo) DeleteVault(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vaults[id]; !ok {
		return xerr.New(xerr.RecordNotFound, "金库不存在")
	}
	delete(r.vaults, id)
	kept := r.deposits[:0]
	for _, d := range r.deposits {
		if d.VaultID != id {
			kept = append(kept, d)
		}
	}
	r.deposits = kept
	for pid, p := range r.profits {
		if p.VaultID == id {
			delete(r.profits, pid)
		}
	}
	return nil
}

func (r *memRepo) AddVaultTVL(ctx context.Context, id int64, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vaults[id]
	if !ok {
		return xerr.New(xerr.RecordNotFound, "金库不存在")
	}
	v.TotalValueLocked = v.TotalValueLocked.Add(amount)
	return nil
}

func (r *memRepo) SubVaultTVL(ctx context.Context, id int64, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vaults[id]
	if !ok {
		return xerr.New(xerr.RecordNotFound, "金库不存在")
	}
	next := v.TotalValueLocked.Sub(amount)
	if next.IsNegative() {
		next = decimal.Zero
	}
	v.TotalValueLocked = next
	return nil
}

func (r *memRepo) CreateDeposit(ctx context.Context, d *domain.Deposit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.ID = r.id()
	d.CreatedAt = time.Now()
	cp := *d
	r.deposits = append(r.deposits, &cp)
	return nil
}

func (r *memRepo) SumDeposits(ctx context.Context, userID, vaultID int64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, d := range r.deposits {
		if d.UserID == userID && d.VaultID == vaultID {
			sum = sum.Add(d.Amount)
		}
	}
	return sum, nil
}

func (r *memRepo) CreateProfit(ctx context.Context, p *domain.Profit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.id()
	p.CreatedAt = time.Now()
	cp := *p
	r.profits[p.ID] = &cp
	return nil
}

func (r *memRepo) FindProfitByID(ctx context.Context, id int64) (*domain.Profit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profits[id]
	if !ok {
		return nil, xerr.New(xerr.RecordNotFound, "利润记录不存在")
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) MarkProfitWithdrawn(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profits[id]
	if !ok || p.Withdrawn {
		return xerr.New(xerr.RequestParamsError, "利润已提取")
	}
	p.Withdrawn = true
	return nil
}

func (r *memRepo) ListWithdrawnProfits(ctx context.Context) ([]domain.Profit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Profit
	for id := int64(1); id <= r.nextID; id++ {
		if p, ok := r.profits[id]; ok && p.Withdrawn {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memRepo) CreateCapitalWithdrawal(ctx context.Context, w *domain.CapitalWithdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w.ID = r.id()
	w.CreatedAt = time.Now()
	cp := *w
	r.withdrawals = append(r.withdrawals, &cp)
	return nil
}

func (r *memRepo) SumCapitalWithdrawals(ctx context.Context, userID, vaultID int64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, w := range r.withdrawals {
		if w.UserID == userID && w.VaultID == vaultID {
			sum = sum.Add(w.Amount)
		}
	}
	return sum, nil
}

func (r *memRepo) ListCapitalWithdrawals(ctx context.Context) ([]domain.CapitalWithdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.CapitalWithdrawal, 0, len(r.withdrawals))
	for _, w := range r.withdrawals {
		out = append(out, *w)
	}
	return out, nil
}

func (r *memRepo) CreateRequest(ctx context.Context, req *domain.WithdrawalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req.ID = r.id()
	req.CreatedAt = time.Now()
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *memRepo) FindRequestByID(ctx context.Context, id int64) (*domain.WithdrawalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, xerr.New(xerr.RecordNotFound, "提现请求不存在")
	}
	cp := *req
	return &cp, nil
}

func (r *memRepo) MarkRequestExecuted(ctx context.Context, id int64, txHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != domain.RequestStatusPending {
		return xerr.New(xerr.RequestParamsError, "请求已执行")
	}
	req.Status = domain.RequestStatusExecuted
	req.OnChain = true
	req.TxHash = txHash
	req.UpdatedAt = time.Now()
	return nil
}

func (r *memRepo) SumCapitalRequestedSince(ctx context.Context, userID int64, since time.Time) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, req := range r.requests {
		if req.UserID != userID || req.VaultID == 0 || req.CreatedAt.Before(since) {
			continue
		}
		if req.Status == domain.RequestStatusPending || req.Status == domain.RequestStatusExecuted {
			sum = sum.Add(req.Amount)
		}
	}
	return sum, nil
}

func (r *memRepo) CreateAffiliate(ctx context.Context, a *domain.Affiliate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, exist := range r.affiliates {
		if exist.UserID == a.UserID {
			return xerr.New(xerr.RequestParamsError, "该用户已绑定推荐人")
		}
	}
	a.ID = r.id()
	a.CreatedAt = time.Now()
	cp := *a
	r.affiliates[a.ID] = &cp
	return nil
}

func (r *memRepo) FindAffiliateByUserID(ctx context.Context, userID int64) (*domain.Affiliate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.affiliates {
		if a.UserID == userID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, xerr.New(xerr.RecordNotFound, "推荐关系不存在")
}

func (r *memRepo) ListAffiliates(ctx context.Context) ([]domain.Affiliate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Affiliate
	for id := int64(1); id <= r.nextID; id++ {
		if a, ok := r.affiliates[id]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) AddAffiliateEarnings(ctx context.Context, id int64, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.affiliates[id]
	if !ok {
		return xerr.New(xerr.RecordNotFound, "推荐关系不存在")
	}
	a.TotalEarnings = a.TotalEarnings.Add(amount)
	return nil
}

func (r *memRepo) SubAffiliateEarnings(ctx context.Context, id int64, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.affiliates[id]
	if !ok || a.TotalEarnings.Cmp(amount) < 0 {
		return xerr.New(xerr.RequestParamsError, "可提收益不足")
	}
	a.TotalEarnings = a.TotalEarnings.Sub(amount)
	return nil
}

func (r *memRepo) AppendAudit(ctx context.Context, e *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = r.id()
	e.CreatedAt = time.Now()
	cp := *e
	r.audits = append(r.audits, &cp)
	return nil
}

// auditActions 测试断言用：某动作是否落了审计
func (r *memRepo) auditActions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.audits))
	for _, a := range r.audits {
		out = append(out, a.Action+":"+a.Status)
	}
	return out
}
