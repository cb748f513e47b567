package app

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"volumebot/internal/config"
	"volumebot/internal/engine"
	"volumebot/internal/funding"
	applog "volumebot/internal/log"
	"volumebot/internal/wallet"
)

type walletSource interface {
	LoadOrCreate(n int) ([]*wallet.Wallet, bool, error)
}

type funder interface {
	Fund(ctx context.Context, wallets []common.Address, amount *big.Int) (funding.Report, error)
	Collect(ctx context.Context, wallets []*wallet.Wallet) (funding.Report, error)
}

type journal interface {
	engine.Journal
	RecordWallets(ctx context.Context, addresses []common.Address, created bool, storePath string)
	RecordFunding(ctx context.Context, report funding.Report, err error)
	RecordCollection(ctx context.Context, report funding.Report, err error)
	RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{})
}

type tradeLoop interface {
	Run(ctx context.Context) error
	Snapshot() engine.Snapshot
}

type loopFactory func(w *wallet.Wallet) (tradeLoop, error)

type orchestratorConfig struct {
	walletCount    int
	storePath      string
	fundingEnabled bool
	fundAmount     *big.Int
	fundingPolicy  config.FundingPolicy
	collectMode    config.CollectMode
	collectTimeout time.Duration
	duration       time.Duration
}

// orchestrator 串联钱包加载、注资、交易循环与回收。
type orchestrator struct {
	cfg     orchestratorConfig
	wallets walletSource
	funds   funder
	journal journal
	newLoop loopFactory
	logger  *zap.Logger

	mu    sync.RWMutex
	loops []tradeLoop
}

func newOrchestrator(cfg orchestratorConfig, wallets walletSource, funds funder, jr journal, newLoop loopFactory, logger *zap.Logger) *orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.collectTimeout <= 0 {
		cfg.collectTimeout = 5 * time.Minute
	}
	return &orchestrator{
		cfg:     cfg,
		wallets: wallets,
		funds:   funds,
		journal: jr,
		newLoop: newLoop,
		logger:  logger,
	}
}

// Run 依次完成：加载或创建钱包 -> 注资 -> 启动交易循环 -> 按模式回收。
// 交易在 ctx 取消或到达 trading.duration 后停止。
func (o *orchestrator) Run(ctx context.Context) error {
	ws, created, err := o.wallets.LoadOrCreate(o.cfg.walletCount)
	if err != nil {
		return fmt.Errorf("加载钱包失败: %w", err)
	}
	addrs := wallet.Addresses(ws)
	o.journal.RecordWallets(ctx, addrs, created, o.cfg.storePath)

	if err := o.fund(ctx, addrs); err != nil {
		return err
	}

	loops := make([]tradeLoop, 0, len(ws))
	for _, w := range ws {
		l, err := o.newLoop(w)
		if err != nil {
			return fmt.Errorf("创建交易循环失败 %s: %w", w.Address().Hex(), err)
		}
		loops = append(loops, l)
	}
	o.mu.Lock()
	o.loops = loops
	o.mu.Unlock()

	var (
		tradeCtx context.Context
		cancel   context.CancelFunc
	)
	if o.cfg.duration > 0 {
		tradeCtx, cancel = context.WithTimeout(ctx, o.cfg.duration)
	} else {
		tradeCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	g, gctx := errgroup.WithContext(tradeCtx)
	for _, l := range loops {
		g.Go(func() error {
			return l.Run(gctx)
		})
	}
	o.logger.Info("交易循环已全部启动",
		zap.Int("wallets", len(loops)),
		zap.String("collect_mode", string(o.cfg.collectMode)),
		zap.Duration("duration", o.cfg.duration),
	)

	if o.cfg.collectMode == config.CollectConcurrent {
		o.logger.Warn("回收与交易并行执行，同一钱包的转账与兑换可能争用 nonce",
			zap.Int("wallets", len(ws)),
		)
		o.collect(ctx, ws)
	}

	runErr := g.Wait()
	o.logger.Info("交易循环已停止")

	if o.cfg.collectMode == config.CollectAfterStop {
		o.collect(ctx, ws)
	}

	if runErr != nil {
		return fmt.Errorf("交易循环异常退出: %w", runErr)
	}
	return nil
}

func (o *orchestrator) fund(ctx context.Context, addrs []common.Address) error {
	if !o.cfg.fundingEnabled {
		o.logger.Info("注资已关闭，直接开始交易")
		return nil
	}

	report, err := o.funds.Fund(ctx, addrs, o.cfg.fundAmount)
	o.journal.RecordFunding(ctx, report, err)
	if err == nil {
		o.logger.Info("注资完成",
			zap.Int("transfers", len(report.Transfers)),
			applog.Ether("total", report.Total),
		)
		return nil
	}

	if o.cfg.fundingPolicy == config.FundingBestEffort && ctx.Err() == nil {
		o.logger.Warn("部分钱包注资失败，继续交易",
			zap.Int("failed", len(report.Failed)),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("注资失败，终止运行: %w", err)
}

// collect 使用独立且有超时的 context，交易停止后仍能完成回收。
func (o *orchestrator) collect(ctx context.Context, ws []*wallet.Wallet) {
	collectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.collectTimeout)
	defer cancel()

	o.logger.Info("开始回收资金", zap.Int("wallets", len(ws)))
	report, err := o.funds.Collect(collectCtx, ws)
	o.journal.RecordCollection(collectCtx, report, err)
	if err != nil {
		o.logger.Error("回收资金失败",
			zap.Int("transfers", len(report.Transfers)),
			zap.Error(err),
		)
		o.journal.RecordError(collectCtx, "回收资金失败", err, map[string]interface{}{
			"transfers": len(report.Transfers),
		})
		return
	}
	o.logger.Info("回收完成",
		zap.Int("transfers", len(report.Transfers)),
		zap.Int("skipped", len(report.Skipped)),
		applog.Ether("total", report.Total),
	)
}

// Snapshots 返回所有交易循环的状态。
func (o *orchestrator) Snapshots() []engine.Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]engine.Snapshot, 0, len(o.loops))
	for _, l := range o.loops {
		out = append(out, l.Snapshot())
	}
	return out
}
