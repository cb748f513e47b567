package monitor

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"volumebot/internal/execution"
	"volumebot/internal/funding"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventWallets     EventType = "wallets"
	EventFunding     EventType = "funding"
	EventSwap        EventType = "swap"
	EventSwapFailure EventType = "swap_failure"
	EventCollection  EventType = "collection"
	EventError       EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	RunID     string      `json:"run_id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// WalletsPayload 记录本次运行使用的钱包集合。
type WalletsPayload struct {
	Created   bool             `json:"created"`
	StorePath string           `json:"store_path"`
	Addresses []common.Address `json:"addresses"`
}

// TransferPayload 记录一次注资或回收的结果。
type TransferPayload struct {
	Report funding.Report `json:"report"`
	Error  string         `json:"error,omitempty"`
}

// SwapPayload 记录成功的兑换。
type SwapPayload struct {
	Result execution.SwapResult `json:"result"`
}

// SwapFailurePayload 记录重试耗尽的兑换。
type SwapFailurePayload struct {
	Direction execution.Direction `json:"direction"`
	Wallet    common.Address      `json:"wallet"`
	AmountIn  string              `json:"amount_in"`
	Error     string              `json:"error"`
}

// ErrorPayload 记录异常信息。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
