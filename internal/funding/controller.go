package funding

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"volumebot/internal/config"
	applog "volumebot/internal/log"
	"volumebot/internal/metrics"
	"volumebot/internal/wallet"
)

// ErrFundingFailed 与 ErrCollectFailed 标记注资与回收阶段的失败。
var (
	ErrFundingFailed = errors.New("funding: 注资失败")
	ErrCollectFailed = errors.New("funding: 回收失败")
)

type transferClient interface {
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	Transfer(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value *big.Int) (*types.Receipt, error)
}

// Options 控制注资策略与回收阈值。
type Options struct {
	Policy config.FundingPolicy
	// MinTransfer 以上的余额才会被回收。
	MinTransfer *big.Int
	// FeeBuffer 为回收时留给手续费的余额。
	FeeBuffer *big.Int
	TxURL     func(hash string) string
}

// Controller 负责资金库与钱包之间的转账。
type Controller struct {
	client   transferClient
	treasury *wallet.Wallet
	opts     Options
	logger   *zap.Logger
}

// NewController 创建资金控制器。
func NewController(client transferClient, treasury *wallet.Wallet, opts Options, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Policy == "" {
		opts.Policy = config.FundingFailFast
	}
	if opts.MinTransfer == nil {
		opts.MinTransfer = new(big.Int)
	}
	if opts.FeeBuffer == nil {
		opts.FeeBuffer = new(big.Int)
	}
	if opts.TxURL == nil {
		opts.TxURL = func(hash string) string { return hash }
	}
	return &Controller{
		client:   client,
		treasury: treasury,
		opts:     opts,
		logger:   logger,
	}
}

// Treasury 返回资金库地址。
func (c *Controller) Treasury() common.Address {
	return c.treasury.Address()
}

// Fund 依次从资金库向每个钱包转账 amount，每笔等待确认。
// fail_fast 策略下首个失败立即返回；best_effort 继续处理并合并所有错误。
func (c *Controller) Fund(ctx context.Context, wallets []common.Address, amount *big.Int) (Report, error) {
	report := newReport(KindFund)
	if amount == nil || amount.Sign() <= 0 {
		return report, fmt.Errorf("%w: 注资金额无效", ErrFundingFailed)
	}

	var errs error
	for i, to := range wallets {
		t, err := c.send(ctx, c.treasury.PrivateKey(), c.treasury.Address(), to, amount)
		if err != nil {
			metrics.Transfer(string(KindFund), false, nil)
			report.Failed = append(report.Failed, to)
			err = fmt.Errorf("%w: %s: %w", ErrFundingFailed, to.Hex(), err)

			if c.opts.Policy != config.FundingBestEffort || ctx.Err() != nil {
				c.logger.Error("注资失败，停止后续钱包",
					applog.Wallet(to),
					zap.Int("index", i),
					zap.Int("remaining", len(wallets)-i-1),
					zap.Error(err),
				)
				return report, err
			}
			c.logger.Warn("注资失败，继续下一个钱包", applog.Wallet(to), zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}

		metrics.Transfer(string(KindFund), true, amount)
		report.add(t)
		c.logger.Info("注资完成",
			applog.Wallet(to),
			applog.Ether("amount", amount),
			zap.String("tx", t.TxURL),
		)
	}

	return report, errs
}

// Collect 将每个钱包余额扣除手续费缓冲后转回资金库。
// 余额不超过 MinTransfer 的钱包不处理；首个失败中止剩余钱包。
func (c *Controller) Collect(ctx context.Context, wallets []*wallet.Wallet) (Report, error) {
	report := newReport(KindCollect)
	treasury := c.treasury.Address()

	for _, w := range wallets {
		addr := w.Address()

		balance, err := c.client.Balance(ctx, addr)
		if err != nil {
			metrics.Transfer(string(KindCollect), false, nil)
			report.Failed = append(report.Failed, addr)
			return report, fmt.Errorf("%w: %s: %w", ErrCollectFailed, addr.Hex(), err)
		}

		if balance.Cmp(c.opts.MinTransfer) <= 0 {
			c.logger.Debug("余额低于回收阈值，跳过", applog.Wallet(addr), applog.Ether("balance", balance))
			report.Skipped = append(report.Skipped, addr)
			continue
		}

		value := new(big.Int).Sub(balance, c.opts.FeeBuffer)
		if value.Sign() <= 0 {
			c.logger.Warn("余额不足以覆盖手续费缓冲，跳过",
				applog.Wallet(addr),
				applog.Ether("balance", balance),
				applog.Ether("fee_buffer", c.opts.FeeBuffer),
			)
			report.Skipped = append(report.Skipped, addr)
			continue
		}

		t, err := c.send(ctx, w.PrivateKey(), addr, treasury, value)
		if err != nil {
			metrics.Transfer(string(KindCollect), false, nil)
			report.Failed = append(report.Failed, addr)
			return report, fmt.Errorf("%w: %s: %w", ErrCollectFailed, addr.Hex(), err)
		}

		metrics.Transfer(string(KindCollect), true, value)
		report.add(t)
		c.logger.Info("回收完成",
			applog.Wallet(addr),
			applog.Ether("amount", value),
			zap.String("tx", t.TxURL),
		)
	}

	return report, nil
}

func (c *Controller) send(ctx context.Context, key *ecdsa.PrivateKey, from, to common.Address, value *big.Int) (Transfer, error) {
	receipt, err := c.client.Transfer(ctx, key, to, value)
	if err != nil {
		return Transfer{}, err
	}
	if receipt == nil {
		return Transfer{}, errors.New("缺少交易回执")
	}
	return Transfer{
		From:   from,
		To:     to,
		Amount: new(big.Int).Set(value),
		TxHash: receipt.TxHash,
		TxURL:  c.opts.TxURL(receipt.TxHash.Hex()),
	}, nil
}
