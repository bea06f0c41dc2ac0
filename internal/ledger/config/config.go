package config

// Config ledger-service 配置，由 pkg/config.LoadAndWatch 填充并支持热更新
type Config struct {
	Name string `mapstructure:"name"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Http struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	Mysql struct {
		DataSource  string `mapstructure:"datasource"`
		MaxIdle     int    `mapstructure:"max_idle"`
		MaxOpen     int    `mapstructure:"max_open"`
		MaxLifetime int    `mapstructure:"max_lifetime"` // 秒
	} `mapstructure:"mysql"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	// Url 为空时审计事件走进程内 MemBroker
	Nats struct {
		Url string `mapstructure:"url"`
	} `mapstructure:"nats"`

	Chain struct {
		ChainID       int64    `mapstructure:"chain_id"`
		StableSymbols []string `mapstructure:"stable_symbols"`
		MinProfitUsd  int64    `mapstructure:"min_profit_usd"` // 整美元
	} `mapstructure:"chain"`

	// auto 模式风控，零值/空值表示不限
	Policy struct {
		Allowlist []string `mapstructure:"allowlist"`
		PerTxCap  string   `mapstructure:"per_tx_cap"`
		DailyCap  string   `mapstructure:"daily_cap"`
	} `mapstructure:"policy"`

	Revenue struct {
		CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
	} `mapstructure:"revenue"`

	RateLimit struct {
		Rps   float64 `mapstructure:"rps"`
		Burst int     `mapstructure:"burst"`
	} `mapstructure:"ratelimit"`
}
