// Package fee 是纯函数费率引擎：同样输入必须得到逐字节相同的 big.Int 输出，
// 收益报表全靠现算（费用不落库），所以这里不允许任何 I/O 和浮点
package fee

import "math/big"

var (
	bpsDenom     = big.NewInt(10_000)
	hundred      = big.NewInt(100)
	capitalBps   = big.NewInt(10) // 0.10% 固定资本提现费
	rampSlope    = big.NewInt(19) // 1% ~ 20% 线性爬坡的斜率分子
	scale6to18   = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil) // 6 位小数 -> 18 位参照
	oneToken18   = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil) // 1 token
	millionToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil) // 1,000,000 token
)

// CapitalWithdrawalFee 资本提现固定费：floor(amount * 10 / 10000)，归属 owner
func CapitalWithdrawalFee(amount *big.Int) *big.Int {
	f := new(big.Int).Mul(amount, capitalBps)
	return f.Quo(f, bpsDenom)
}

// DynamicProfitFeePercent 按利润绝对规模算业绩费率
// profit 为 6 位小数最小单位，对齐到 18 位参照后：
//   <= 1 token  -> 1%
//   >= 1M token -> 20%
//   中间段      -> 1 + floor(profit18 * 19 / 1M token)
// 结果 clamp 到 [1, max(1, maxFeePercent)]
func DynamicProfitFeePercent(profit *big.Int, maxFeePercent int64) int64 {
	upper := maxFeePercent
	if upper < 1 {
		upper = 1
	}

	p18 := new(big.Int).Mul(profit, scale6to18)

	var pct int64
	switch {
	case p18.Cmp(oneToken18) <= 0:
		pct = 1
	case p18.Cmp(millionToken) >= 0:
		pct = 20
	default:
		step := new(big.Int).Mul(p18, rampSlope)
		step.Quo(step, millionToken)
		pct = 1 + step.Int64()
	}

	if pct < 1 {
		pct = 1
	}
	if pct > upper {
		pct = upper
	}
	return pct
}

// ProfitFee 利润费金额：floor(profit * percent / 100)
func ProfitFee(profit *big.Int, percent int64) *big.Int {
	f := new(big.Int).Mul(profit, big.NewInt(percent))
	return f.Quo(f, hundred)
}

// SplitFee 推荐人分成拆分：affiliate = floor(fee * bps / 10000)，owner 取补
// 恒等式 affiliate + owner == fee，除两次整除外无舍入损失
func SplitFee(feeAmount *big.Int, affiliateShareBps int64) (affiliate, owner *big.Int) {
	affiliate = new(big.Int).Mul(feeAmount, big.NewInt(affiliateShareBps))
	affiliate.Quo(affiliate, bpsDenom)
	owner = new(big.Int).Sub(feeAmount, affiliate)
	return affiliate, owner
}
