package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"trude.com/internal/ledger/audit"
	ledgercfg "trude.com/internal/ledger/config"
	"trude.com/internal/ledger/core/handler"
	"trude.com/internal/ledger/core/service"
	ledgerhttp "trude.com/internal/ledger/http"
	"trude.com/internal/ledger/infra/ethereum"
	"trude.com/internal/ledger/infra/persistence"
	"trude.com/pkg/config"
	"trude.com/pkg/logger"
	"trude.com/pkg/metrics"
	"trude.com/pkg/orm"
	"trude.com/pkg/ratelimit"
	"trude.com/pkg/safe"
	"trude.com/pkg/xredis"
)

func main() {
	// 全局生命周期：收到 SIGINT/SIGTERM 统一触发优雅退出
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &ledgercfg.Config{}
	if _, err := config.LoadAndWatch("ledger-service", cfg); err != nil {
		panic(fmt.Sprintf("load config failed: %+v", err))
	}

	logger.Init(cfg.Name, cfg.Log.Level)
	defer logger.Sync()
	logger.Info(ctx, "服务开始启动")

	// ===== MySQL =====
	db := orm.NewMySQL(&orm.Config{
		DSN:         cfg.Mysql.DataSource,
		MaxIdle:     cfg.Mysql.MaxIdle,
		MaxOpen:     cfg.Mysql.MaxOpen,
		MaxLifetime: cfg.Mysql.MaxLifetime,
	})
	repo := persistence.New(db)
	if err := repo.Migrate(); err != nil {
		panic(fmt.Sprintf("migrate failed: %+v", err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	defer func() { _ = sqlDB.Close() }()
	// 连接池指标
	safe.GoCtx(ctx, func(ctx context.Context) {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				st := sqlDB.Stats()
				metrics.DbPoolOpen.Set(float64(st.OpenConnections))
				metrics.DbPoolIdle.Set(float64(st.Idle))
				metrics.DbPoolInuse.Set(float64(st.InUse))
			}
		}
	})

	// ===== Redis：分布式锁 + 报表缓存 =====
	rdb := xredis.NewRedis(&xredis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()
	safe.GoCtx(ctx, func(ctx context.Context) {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				st := rdb.PoolStats()
				metrics.RedisPoolOpen.Set(float64(st.TotalConns))
				metrics.RedisPoolIdle.Set(float64(st.IdleConns))
				metrics.RedisPoolWaitCount.Set(float64(st.WaitCount))
			}
		}
	})

	// ===== 审计事件出口：配了 NATS 用 NATS，否则进程内兜底 =====
	var broker audit.Broker
	if cfg.Nats.Url != "" {
		broker, err = audit.NewNatsBroker(cfg.Nats.Url)
		if err != nil {
			panic(fmt.Sprintf("connect nats failed: %+v", err))
		}
	} else {
		logger.Warn(ctx, "nats url 未配置，审计事件只在进程内广播")
		broker = audit.NewMemBroker()
	}
	defer func() { _ = broker.Close() }()
	recorder := audit.NewRecorder(repo, broker)

	// ===== 业务装配 =====
	txb, err := ethereum.NewTxBuilder(cfg.Chain.ChainID)
	if err != nil {
		panic(fmt.Sprintf("init tx builder failed: %+v", err))
	}
	policy := service.NewPolicy(service.PolicyConfig{
		Allowlist: cfg.Policy.Allowlist,
		PerTxCap:  parseCap(cfg.Policy.PerTxCap),
		DailyCap:  parseCap(cfg.Policy.DailyCap),
	}, repo)
	pricer := service.NewPricer(cfg.Chain.StableSymbols, cfg.Chain.MinProfitUsd)

	vaultSvc := service.NewVaultService(repo, recorder)
	affSvc := service.NewAffiliateService(repo, recorder)
	wdSvc := service.NewWithdrawService(
		repo, recorder,
		service.NewRedisLocker(rdb),
		ethereum.NewVerifier(cfg.Chain.ChainID),
		txb, policy, pricer,
	)
	revSvc := service.NewRevenueService(repo, rdb, time.Duration(cfg.Revenue.CacheTTLSeconds)*time.Second)

	// ===== HTTP =====
	store := ratelimit.NewStore(rate.Limit(cfg.RateLimit.Rps), cfg.RateLimit.Burst, 10*time.Minute)
	store.StartJanitor(time.Minute)
	defer store.Stop()

	srv := ledgerhttp.NewServer(cfg.Http.Addr, store, ledgerhttp.Handlers{
		Revenue:   handler.NewRevenue(revSvc),
		Vault:     handler.NewVault(vaultSvc),
		Affiliate: handler.NewAffiliate(affSvc),
		Withdraw:  handler.NewWithdraw(wdSvc),
	})
	safe.Go(func() {
		logger.Info(ctx, "http server listening", zap.String("addr", cfg.Http.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server exited", zap.Error(err))
			stop()
		}
	})

	<-ctx.Done()
	logger.Info(context.Background(), "收到退出信号，开始优雅关闭")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "http shutdown error", zap.Error(err))
	}
	logger.Info(context.Background(), "服务已退出")
}

// parseCap 配置里的限额字符串，空串/非法值一律当不限处理
func parseCap(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}
