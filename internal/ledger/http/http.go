package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"trude.com/internal/ledger/core/handler"
	"trude.com/pkg/middleware"
	"trude.com/pkg/ratelimit"
)

type Handlers struct {
	Revenue   *handler.Revenue
	Vault     *handler.Vault
	Affiliate *handler.Affiliate
	Withdraw  *handler.Withdraw
}

// NewServer 组装中间件与路由
func NewServer(addr string, store *ratelimit.Store, h Handlers) *http.Server {
	r := gin.New()
	// /metrics 暴露给 Prometheus 抓取
	p := ginprom.NewPrometheus("trude")
	p.Use(r)
	r.Use(
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
		middleware.RateLimit(store),
	)

	api := r.Group("/api/ledger")
	{
		revenue := api.Group("/revenue")
		revenue.GET("/metrics", h.Revenue.Metrics)
		revenue.GET("/vaults", h.Revenue.ByVault)
		revenue.GET("/affiliates", h.Revenue.ByAffiliate)
		revenue.GET("/timeseries", h.Revenue.Timeseries)

		api.POST("/vaults", h.Vault.Create)
		api.DELETE("/vaults/:id", h.Vault.Delete)
		api.POST("/deposits", h.Vault.Deposit)
		api.POST("/profits", h.Vault.RegisterProfit)
		api.GET("/settings", h.Vault.GetSettings)
		api.PUT("/settings", h.Vault.UpdateSettings)

		api.POST("/affiliates", h.Affiliate.Register)

		wd := api.Group("/withdrawals")
		wd.POST("/capital/request", h.Withdraw.RequestCapital)
		wd.POST("/capital/finalize", h.Withdraw.FinalizeCapital)
		wd.POST("/profit/request", h.Withdraw.RequestProfit)
		wd.POST("/profit/finalize", h.Withdraw.FinalizeProfit)
		wd.POST("/affiliate/request", h.Withdraw.RequestAffiliate)
		wd.POST("/affiliate/finalize", h.Withdraw.FinalizeAffiliate)
	}

	return &http.Server{
		Addr:           addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}
