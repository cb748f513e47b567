package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"volumebot/internal/execution"
	applog "volumebot/internal/log"
	"volumebot/internal/metrics"
)

type balanceReader interface {
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// Sampler 提供交易数量与买入目标次数。
type Sampler interface {
	Sample(min, max *big.Int) *big.Int
	BuyTarget() int
}

// Journal 记录兑换结果。
type Journal interface {
	RecordSwap(ctx context.Context, result execution.SwapResult)
	RecordSwapFailure(ctx context.Context, dir execution.Direction, wallet common.Address, amountIn *big.Int, err error)
}

// Config 为交易循环参数。
type Config struct {
	Interval    time.Duration
	MinTrade    *big.Int
	MaxTrade    *big.Int
	TargetToken common.Address
}

// Loop 驱动单个钱包的买卖状态机。状态只在 Run 所在的 goroutine 内修改。
type Loop struct {
	signer  execution.Signer
	chain   balanceReader
	swapper execution.Swapper
	sampler Sampler
	journal Journal
	cfg     Config
	logger  *zap.Logger

	mu          sync.Mutex
	state       TradeState
	ticks       int64
	lastOutcome Outcome
	lastTickAt  time.Time
}

// NewLoop 创建交易循环并抽取首个买入目标。
func NewLoop(signer execution.Signer, chain balanceReader, swapper execution.Swapper, sampler Sampler, journal Journal, cfg Config, logger *zap.Logger) (*Loop, error) {
	if signer == nil || chain == nil || swapper == nil || sampler == nil {
		return nil, errors.New("engine: 依赖不能为空")
	}
	if cfg.MinTrade == nil || cfg.MaxTrade == nil || cfg.MinTrade.Cmp(cfg.MaxTrade) > 0 {
		return nil, fmt.Errorf("engine: 交易数量区间无效")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("engine: 交易间隔必须大于 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Loop{
		signer:  signer,
		chain:   chain,
		swapper: swapper,
		sampler: sampler,
		journal: journal,
		cfg:     cfg,
		logger:  logger.With(applog.Wallet(signer.Address())),
		state:   TradeState{BuyTarget: sampler.BuyTarget()},
	}, nil
}

// Run 循环执行 tick，每次 tick 结束后等待一个完整间隔。
// 交易失败不会结束循环，ctx 取消时返回 nil。
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("交易循环启动",
		zap.Duration("interval", l.cfg.Interval),
		zap.Int("buy_target", l.State().BuyTarget),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("交易循环已停止")
			return nil
		case <-timer.C:
		}

		l.Tick(ctx)
		timer.Reset(l.cfg.Interval)
	}
}

// Tick 执行一次状态机步进。
func (l *Loop) Tick(ctx context.Context) Outcome {
	outcome := l.tick(ctx)

	l.mu.Lock()
	l.ticks++
	l.lastOutcome = outcome
	l.lastTickAt = time.Now().UTC()
	l.mu.Unlock()

	metrics.Tick(string(outcome))
	return outcome
}

func (l *Loop) tick(ctx context.Context) Outcome {
	addr := l.signer.Address()

	balance, err := l.chain.Balance(ctx, addr)
	if err != nil {
		l.logger.Warn("读取余额失败", zap.Error(err))
		return OutcomeError
	}
	metrics.WalletBalance(addr, balance)

	if balance.Cmp(l.cfg.MinTrade) < 0 {
		l.logger.Info("余额低于最小交易额，跳过",
			applog.Ether("balance", balance),
			applog.Ether("min_trade", l.cfg.MinTrade),
		)
		return OutcomeSkippedLowBalance
	}

	amount := l.sampler.Sample(l.cfg.MinTrade, l.cfg.MaxTrade)
	if balance.Cmp(amount) < 0 {
		l.logger.Info("余额不足以支付本次交易，跳过",
			applog.Ether("balance", balance),
			applog.Ether("amount", amount),
		)
		return OutcomeSkippedInsufficient
	}

	state := l.State()
	if state.Phase() == PhaseBuy {
		return l.buy(ctx, amount)
	}
	return l.sell(ctx)
}

func (l *Loop) buy(ctx context.Context, amount *big.Int) Outcome {
	res, err := l.swapper.Execute(ctx, execution.DirectionBuy, l.signer, amount)
	if err != nil {
		l.recordFailure(ctx, execution.DirectionBuy, amount, err)
		return OutcomeBuyFailed
	}
	l.recordSwap(ctx, res)

	l.mu.Lock()
	l.state.BuyCount++
	state := l.state
	l.mu.Unlock()

	l.logger.Info("买入完成",
		zap.Int("buy_count", state.BuyCount),
		zap.Int("buy_target", state.BuyTarget),
	)
	return OutcomeBought
}

func (l *Loop) sell(ctx context.Context) Outcome {
	tokens, err := l.chain.TokenBalance(ctx, l.cfg.TargetToken, l.signer.Address())
	if err != nil {
		l.logger.Warn("读取代币余额失败", zap.Error(err))
		return OutcomeError
	}

	outcome := OutcomeSold
	if tokens.Sign() == 0 {
		l.logger.Warn("代币余额为 0，直接进入下一周期")
		outcome = OutcomeSellEmpty
	} else if res, err := l.swapper.Execute(ctx, execution.DirectionSell, l.signer, tokens); err != nil {
		l.recordFailure(ctx, execution.DirectionSell, tokens, err)
		outcome = OutcomeSellFailed
	} else {
		l.recordSwap(ctx, res)
	}

	// 无论卖出结果如何都开始新周期。
	target := l.sampler.BuyTarget()
	l.mu.Lock()
	l.state = TradeState{BuyTarget: target}
	l.mu.Unlock()

	l.logger.Info("周期结束",
		zap.String("outcome", string(outcome)),
		zap.Int("next_buy_target", target),
	)
	return outcome
}

func (l *Loop) recordSwap(ctx context.Context, res execution.SwapResult) {
	if l.journal != nil {
		l.journal.RecordSwap(context.WithoutCancel(ctx), res)
	}
}

func (l *Loop) recordFailure(ctx context.Context, dir execution.Direction, amount *big.Int, err error) {
	if ctx.Err() != nil {
		l.logger.Info("交易循环停止，兑换中断", zap.String("direction", string(dir)))
		return
	}
	l.logger.Error("兑换失败",
		zap.String("direction", string(dir)),
		applog.Ether("amount_in", amount),
		zap.Error(err),
	)
	if l.journal != nil {
		l.journal.RecordSwapFailure(ctx, dir, l.signer.Address(), amount, err)
	}
}

// State 返回交易状态副本。
func (l *Loop) State() TradeState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Snapshot 返回监控用的状态副本。
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Wallet:      l.signer.Address(),
		State:       l.state,
		Phase:       l.state.Phase(),
		Ticks:       l.ticks,
		LastOutcome: l.lastOutcome,
		LastTickAt:  l.lastTickAt,
	}
}
