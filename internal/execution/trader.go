package execution

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Swapper 抽象兑换执行器，方便在交易循环中替换为测试实现。
type Swapper interface {
	Execute(ctx context.Context, dir Direction, signer Signer, amountIn *big.Int) (SwapResult, error)
}

// Signer 为发起兑换的钱包。
type Signer interface {
	Address() common.Address
	PrivateKey() *ecdsa.PrivateKey
}

var _ Swapper = (*Executor)(nil)
