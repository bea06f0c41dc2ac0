package domain

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// 金额统一为代币最小单位的十进制整数字符串（如 6 位小数稳定币的 1 USDC = "1000000"）
// 存储用 decimal(65,0)，运算一律走 big.Int，绝不碰浮点

var (
	ErrAmountInvalid  = errors.New("amount is not a valid decimal integer")
	ErrAmountNegative = errors.New("amount must not be negative")
)

// ParseAmount 解析最小单位金额字符串
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrAmountInvalid
	}
	if !d.IsInteger() {
		return decimal.Zero, ErrAmountInvalid
	}
	if d.IsNegative() {
		return decimal.Zero, ErrAmountNegative
	}
	return d, nil
}

// AmountToBig 金额进入费率运算前转 big.Int
func AmountToBig(d decimal.Decimal) *big.Int {
	return d.BigInt()
}

// AmountFromBig 运算结果转回存储/传输形态
func AmountFromBig(b *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(b, 0)
}
