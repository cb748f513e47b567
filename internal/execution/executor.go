package execution

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"volumebot/internal/chain"
	"volumebot/internal/config"
	applog "volumebot/internal/log"
	"volumebot/internal/metrics"
)

type routerClient interface {
	Router() common.Address
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, key *ecdsa.PrivateKey, token, spender common.Address, amount *big.Int) (*types.Receipt, error)
	AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	SwapExactETHForTokens(ctx context.Context, key *ecdsa.PrivateKey, value, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Receipt, error)
	SwapExactTokensForETH(ctx context.Context, key *ecdsa.PrivateKey, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Receipt, error)
}

// Options 控制兑换参数。
type Options struct {
	MaxAttempts int
	RetryDelay  time.Duration
	SlippageBps int64
	Deadline    time.Duration
	// TxURL 将交易哈希转换为浏览器链接，为空时直接使用哈希。
	TxURL func(hash string) string
}

// OptionsFromConfig 由执行与链配置生成 Options。
func OptionsFromConfig(exec config.ExecutionConfig, ch config.ChainConfig) Options {
	return Options{
		MaxAttempts: exec.MaxAttempts,
		RetryDelay:  exec.RetryDelay,
		SlippageBps: exec.SlippageBps,
		Deadline:    exec.Deadline,
		TxURL:       ch.TxURL,
	}
}

// Executor 通过路由合约执行单次买入或卖出，失败时有限次重试。
type Executor struct {
	client routerClient
	tokens Tokens
	logger *zap.Logger
	opts   Options
	now    func() time.Time
}

// NewExecutor 创建执行器。
func NewExecutor(client routerClient, tokens Tokens, opts Options, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Deadline <= 0 {
		opts.Deadline = 480 * time.Second
	}
	if opts.TxURL == nil {
		opts.TxURL = func(hash string) string { return hash }
	}
	return &Executor{
		client: client,
		tokens: tokens,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

// Execute 执行一次兑换。每次尝试都重新构造路径、报价与截止时间；
// 卖出前若授权不足会先授权。重试耗尽返回包裹 ErrSwapFailed 的错误。
func (e *Executor) Execute(ctx context.Context, dir Direction, signer Signer, amountIn *big.Int) (SwapResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return SwapResult{}, fmt.Errorf("%w: 兑换数量无效", ErrSwapFailed)
	}

	logger := e.logger.With(
		applog.Wallet(signer.Address()),
		zap.String("direction", string(dir)),
	)

	var err error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		metrics.SwapAttempt(string(dir))

		var result SwapResult
		result, err = e.attempt(ctx, dir, signer, amountIn, logger)
		if err == nil {
			result.Attempts = attempt
			metrics.SwapResult(string(dir), true)
			logger.Info("兑换成功",
				zap.Int("attempt", attempt),
				applog.Ether("amount_in", amountIn),
				zap.String("tx", result.TxURL),
			)
			return result, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.SwapResult(string(dir), false)
			return SwapResult{}, ctxErr
		}

		if attempt == e.opts.MaxAttempts {
			logger.Warn("兑换失败",
				zap.Int("attempt", attempt),
				zap.Bool("retryable", chain.IsRetryable(err)),
				zap.Error(err),
			)
			break
		}

		wait := time.Duration(attempt) * e.opts.RetryDelay
		logger.Warn("兑换失败，准备重试",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Bool("retryable", chain.IsRetryable(err)),
			zap.Error(err),
		)

		if wait > 0 {
			select {
			case <-ctx.Done():
				metrics.SwapResult(string(dir), false)
				return SwapResult{}, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	metrics.SwapResult(string(dir), false)
	return SwapResult{}, fmt.Errorf("%w: 尝试 %d 次: %w", ErrSwapFailed, e.opts.MaxAttempts, err)
}

func (e *Executor) attempt(ctx context.Context, dir Direction, signer Signer, amountIn *big.Int, logger *zap.Logger) (SwapResult, error) {
	req := SwapRequest{
		Direction:   dir,
		AmountIn:    amountIn,
		Path:        e.tokens.Path(dir),
		SlippageBps: e.opts.SlippageBps,
	}

	if dir == DirectionSell {
		if err := e.ensureAllowance(ctx, signer, amountIn, logger); err != nil {
			return SwapResult{}, err
		}
	}

	amounts, err := e.client.AmountsOut(ctx, req.AmountIn, req.Path)
	if err != nil {
		return SwapResult{}, fmt.Errorf("报价失败: %w", err)
	}
	if len(amounts) == 0 {
		return SwapResult{}, fmt.Errorf("报价失败: %w", chain.ErrEmptyResult)
	}
	req.ExpectedOut = amounts[len(amounts)-1]
	req.AmountOutMin = AmountOutMin(req.ExpectedOut, req.SlippageBps)

	// 截止时间在提交前才计算。
	req.Deadline = e.now().Add(e.opts.Deadline)
	deadline := big.NewInt(req.Deadline.Unix())

	logger.Debug("提交兑换",
		applog.Ether("amount_in", req.AmountIn),
		zap.String("expected_out", req.ExpectedOut.String()),
		zap.String("amount_out_min", req.AmountOutMin.String()),
		zap.Time("deadline", req.Deadline),
	)

	var receipt *types.Receipt
	switch dir {
	case DirectionBuy:
		receipt, err = e.client.SwapExactETHForTokens(ctx, signer.PrivateKey(), req.AmountIn, req.AmountOutMin, req.Path, signer.Address(), deadline)
	case DirectionSell:
		receipt, err = e.client.SwapExactTokensForETH(ctx, signer.PrivateKey(), req.AmountIn, req.AmountOutMin, req.Path, signer.Address(), deadline)
	default:
		return SwapResult{}, fmt.Errorf("execution: 不支持的兑换方向 %s", dir)
	}
	if err != nil {
		return SwapResult{}, err
	}
	if receipt == nil {
		return SwapResult{}, errors.New("execution: 缺少交易回执")
	}

	return SwapResult{
		Direction:    dir,
		Wallet:       signer.Address(),
		AmountIn:     new(big.Int).Set(req.AmountIn),
		AmountOutMin: req.AmountOutMin,
		Path:         req.Path,
		TxHash:       receipt.TxHash,
		TxURL:        e.opts.TxURL(receipt.TxHash.Hex()),
	}, nil
}

func (e *Executor) ensureAllowance(ctx context.Context, signer Signer, amount *big.Int, logger *zap.Logger) error {
	router := e.client.Router()
	allowance, err := e.client.Allowance(ctx, e.tokens.Target, signer.Address(), router)
	if err != nil {
		return fmt.Errorf("查询授权失败: %w", err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	logger.Info("授权路由合约",
		zap.String("allowance", allowance.String()),
		zap.String("amount", amount.String()),
	)
	if _, err := e.client.Approve(ctx, signer.PrivateKey(), e.tokens.Target, router, amount); err != nil {
		return fmt.Errorf("授权失败: %w", err)
	}
	return nil
}
