// Package metrics 定义机器人对外暴露的 Prometheus 指标：
//
//	volumebot_swaps_total{direction,result}       兑换结果（success|failed）
//	volumebot_swap_attempts_total{direction}      兑换尝试次数（含重试）
//	volumebot_ticks_total{outcome}                交易循环每个 tick 的结果
//	volumebot_transfers_total{kind,result}        注资/回收转账结果
//	volumebot_transferred_ether_total{kind}       注资/回收累计金额（ether）
//	volumebot_wallet_balance_ether{wallet}        钱包最近一次读取的原生币余额
//
// 指标在 init() 中注册到默认 Registry，由监控接口的 /metrics 输出。
package metrics

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	swaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volumebot_swaps_total",
			Help: "Swaps by direction and final result",
		},
		[]string{"direction", "result"},
	)

	swapAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volumebot_swap_attempts_total",
			Help: "Individual swap attempts including retries",
		},
		[]string{"direction"},
	)

	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volumebot_ticks_total",
			Help: "Trade loop ticks by outcome",
		},
		[]string{"outcome"},
	)

	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volumebot_transfers_total",
			Help: "Treasury transfers by kind (fund|collect) and result",
		},
		[]string{"kind", "result"},
	)

	transferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volumebot_transferred_ether_total",
			Help: "Ether moved by funding and collection",
		},
		[]string{"kind"},
	)

	walletBalance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "volumebot_wallet_balance_ether",
			Help: "Last observed native balance per wallet",
		},
		[]string{"wallet"},
	)
)

func init() {
	prometheus.MustRegister(swaps, swapAttempts, ticks, transfers, transferred, walletBalance)
}

// Handler 返回 Prometheus 文本格式输出。
func Handler() http.Handler {
	return promhttp.Handler()
}

// SwapAttempt 记录一次兑换尝试。
func SwapAttempt(direction string) {
	swapAttempts.WithLabelValues(direction).Inc()
}

// SwapResult 记录一次兑换的最终结果。
func SwapResult(direction string, ok bool) {
	swaps.WithLabelValues(direction, result(ok)).Inc()
}

// Tick 记录一次循环结果。
func Tick(outcome string) {
	ticks.WithLabelValues(outcome).Inc()
}

// Transfer 记录一次注资或回收转账。
func Transfer(kind string, ok bool, wei *big.Int) {
	transfers.WithLabelValues(kind, result(ok)).Inc()
	if ok && wei != nil {
		transferred.WithLabelValues(kind).Add(toEther(wei))
	}
}

// WalletBalance 更新钱包余额。
func WalletBalance(addr common.Address, wei *big.Int) {
	walletBalance.WithLabelValues(addr.Hex()).Set(toEther(wei))
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}

func toEther(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(wei, -18).Float64()
	return f
}
