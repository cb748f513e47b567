package engine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Phase 表示交易循环当前所处阶段。
type Phase string

const (
	PhaseBuy  Phase = "buy"
	PhaseSell Phase = "sell"
)

// Outcome 为单个 tick 的结果。
type Outcome string

const (
	OutcomeError               Outcome = "error"
	OutcomeSkippedLowBalance   Outcome = "skipped_low_balance"
	OutcomeSkippedInsufficient Outcome = "skipped_insufficient"
	OutcomeBought              Outcome = "bought"
	OutcomeBuyFailed           Outcome = "buy_failed"
	OutcomeSold                Outcome = "sold"
	OutcomeSellFailed          Outcome = "sell_failed"
	OutcomeSellEmpty           Outcome = "sell_empty"
)

// TradeState 记录钱包在一个买卖周期内的进度。
// BuyCount < BuyTarget 时处于买入阶段，相等时下一次 tick 卖出。
type TradeState struct {
	BuyTarget int `json:"buy_target"`
	BuyCount  int `json:"buy_count"`
}

// Phase 返回当前阶段。
func (s TradeState) Phase() Phase {
	if s.BuyCount >= s.BuyTarget {
		return PhaseSell
	}
	return PhaseBuy
}

// Snapshot 为监控使用的循环状态副本。
type Snapshot struct {
	Wallet      common.Address `json:"wallet"`
	State       TradeState     `json:"state"`
	Phase       Phase          `json:"phase"`
	Ticks       int64          `json:"ticks"`
	LastOutcome Outcome        `json:"last_outcome,omitempty"`
	LastTickAt  time.Time      `json:"last_tick_at,omitempty"`
}
