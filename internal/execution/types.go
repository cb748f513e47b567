package execution

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrSwapFailed 表示重试次数耗尽后兑换仍未成功。
var ErrSwapFailed = errors.New("execution: 兑换失败")

// Direction 表示兑换方向。
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Tokens 描述兑换路径上的三个代币。
type Tokens struct {
	Native       common.Address
	Intermediate common.Address
	Target       common.Address
}

// Path 返回指定方向的兑换路径。
// 买入: native -> intermediate -> target；卖出为其逆序。
func (t Tokens) Path(dir Direction) []common.Address {
	if dir == DirectionSell {
		return []common.Address{t.Target, t.Intermediate, t.Native}
	}
	return []common.Address{t.Native, t.Intermediate, t.Target}
}

// SwapRequest 为单次尝试构造的兑换参数。
type SwapRequest struct {
	Direction    Direction
	AmountIn     *big.Int
	Path         []common.Address
	SlippageBps  int64
	ExpectedOut  *big.Int
	AmountOutMin *big.Int
	Deadline     time.Time
}

// SwapResult 为成功兑换的摘要。
type SwapResult struct {
	Direction    Direction        `json:"direction"`
	Wallet       common.Address   `json:"wallet"`
	AmountIn     *big.Int         `json:"amount_in"`
	AmountOutMin *big.Int         `json:"amount_out_min"`
	Path         []common.Address `json:"path"`
	TxHash       common.Hash      `json:"tx_hash"`
	TxURL        string           `json:"tx_url"`
	Attempts     int              `json:"attempts"`
}

// AmountOutMin 按滑点基点计算最小输出，整数截断。
func AmountOutMin(expected *big.Int, slippageBps int64) *big.Int {
	cut := new(big.Int).Mul(expected, big.NewInt(slippageBps))
	cut.Quo(cut, big.NewInt(bpsDenominator))
	return new(big.Int).Sub(expected, cut)
}

const bpsDenominator = 10_000
