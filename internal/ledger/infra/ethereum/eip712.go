// Package ethereum 封装账本服务需要的链侧能力：
// EIP-712 典型数据签名校验，以及给客户端广播用的预构造交易
package ethereum

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	DomainName    = "TruDeLedger"
	DomainVersion = "1"
)

var (
	eip712DomainTypehash = crypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	withdrawTypehash = crypto.Keccak256(
		[]byte("Withdraw(address user,uint256 vaultId,uint256 amount,uint256 nonce,uint256 deadline)"))

	ErrBadSignatureLen = errors.New("signature must be 65 bytes")
)

// Verifier 校验 eip712 模式提现请求的离线签名
type Verifier struct {
	chainID *big.Int
}

func NewVerifier(chainID int64) *Verifier {
	return &Verifier{chainID: big.NewInt(chainID)}
}

// WithdrawDigest 计算 Withdraw 消息的签名摘要
// verifyingContract 用金库的链上账本合约地址
func (v *Verifier) WithdrawDigest(ledger, user common.Address, vaultID, amount, nonce, deadline *big.Int) common.Hash {
	domainSep := crypto.Keccak256(
		eip712DomainTypehash,
		crypto.Keccak256([]byte(DomainName)),
		crypto.Keccak256([]byte(DomainVersion)),
		word(v.chainID),
		addrWord(ledger),
	)
	structHash := crypto.Keccak256(
		withdrawTypehash,
		addrWord(user),
		word(vaultID),
		word(amount),
		word(nonce),
		word(deadline),
	)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSep, structHash)
}

// RecoverSigner 从签名恢复地址，v 允许 0/1 或 27/28 两种写法
func (v *Verifier) RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, ErrBadSignatureLen
	}
	s := make([]byte, 65)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// abi.encode 的 32 字节字
func word(x *big.Int) []byte {
	return common.LeftPadBytes(x.Bytes(), 32)
}

func addrWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}
