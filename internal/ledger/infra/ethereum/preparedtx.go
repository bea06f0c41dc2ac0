package ethereum

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// 账本合约里和提现相关的函数签名，Pack 出 calldata 即可，广播由客户端完成
const ledgerABI = `[
  {"name":"withdrawCapital","type":"function","inputs":[
    {"name":"user","type":"address"},
    {"name":"vaultId","type":"uint256"},
    {"name":"amount","type":"uint256"}]},
  {"name":"withdrawProfit","type":"function","inputs":[
    {"name":"profitId","type":"uint256"}]}
]`

// PreparedTx 预构造的未签名调用，value 恒为 0（纯合约调用）
type PreparedTx struct {
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
	ChainID int64  `json:"chainId"`
}

type TxBuilder struct {
	abi     abi.ABI
	chainID int64
}

func NewTxBuilder(chainID int64) (*TxBuilder, error) {
	parsed, err := abi.JSON(strings.NewReader(ledgerABI))
	if err != nil {
		return nil, err
	}
	return &TxBuilder{abi: parsed, chainID: chainID}, nil
}

func (b *TxBuilder) WithdrawCapital(ledgerAddr, user string, vaultID int64, amount *big.Int) (*PreparedTx, error) {
	data, err := b.abi.Pack("withdrawCapital", common.HexToAddress(user), big.NewInt(vaultID), amount)
	if err != nil {
		return nil, err
	}
	return b.prepared(ledgerAddr, data), nil
}

func (b *TxBuilder) WithdrawProfit(ledgerAddr string, profitID int64) (*PreparedTx, error) {
	data, err := b.abi.Pack("withdrawProfit", big.NewInt(profitID))
	if err != nil {
		return nil, err
	}
	return b.prepared(ledgerAddr, data), nil
}

func (b *TxBuilder) prepared(to string, data []byte) *PreparedTx {
	return &PreparedTx{
		To:      to,
		Data:    hexutil.Encode(data),
		Value:   "0",
		ChainID: b.chainID,
	}
}
