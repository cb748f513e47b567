package chain

import (
	"context"
	"errors"
	"net"
	"strings"
)

var (
	// ErrReverted 表示交易已上链但执行失败（receipt.status = 0）。
	ErrReverted = errors.New("transaction reverted")
	// ErrReceiptTimeout 表示在限定时间内未等到交易回执。
	ErrReceiptTimeout = errors.New("transaction receipt timeout")
	// ErrEmptyResult 表示合约调用没有返回预期的值。
	ErrEmptyResult = errors.New("empty contract call result")
)

// 节点以字符串形式返回的可重试错误片段。
var retryableMessages = []string{
	"nonce too low",
	"replacement transaction underpriced",
	"already known",
	"transaction underpriced",
	"timeout",
	"connection reset",
	"too many requests",
	"header not found",
}

// IsRetryable 判断链上调用错误是否值得重试。
// 上下文取消与超时不可重试，其余网络、回滚与回执超时错误均可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, ErrReverted) || errors.Is(err, ErrReceiptTimeout) || errors.Is(err, ErrEmptyResult) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableMessages {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}
