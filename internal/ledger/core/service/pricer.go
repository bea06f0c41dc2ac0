package service

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Pricer 把最小单位金额折算成美元，卡最小提现阈值
// 小额利润在 L2 上不值一笔 gas，攒够了再提
type Pricer struct {
	stable       map[string]bool
	minProfitUsd decimal.Decimal // 整美元
}

func NewPricer(stableSymbols []string, minProfitUsd int64) *Pricer {
	stable := make(map[string]bool, len(stableSymbols))
	for _, s := range stableSymbols {
		stable[strings.ToUpper(s)] = true
	}
	return &Pricer{
		stable:       stable,
		minProfitUsd: decimal.NewFromInt(minProfitUsd),
	}
}

// MeetsMinimum 金额（6 位小数最小单位）是否达到最小提现美元阈值
// 稳定币 1:1；其它币种暂时也按 1:1 兜底
// TODO: 非稳定币接入预言机价，链下喂价服务就绪后替换
func (p *Pricer) MeetsMinimum(tokenSymbol string, amount decimal.Decimal) bool {
	if !p.minProfitUsd.IsPositive() {
		return true
	}
	_ = p.stable[strings.ToUpper(tokenSymbol)] // 估值目前与币种无关，保留判断入口
	minSmallest := p.minProfitUsd.Mul(decimal.New(1, 6))
	return amount.Cmp(minSmallest) >= 0
}
