package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"volumebot/internal/chain"
	"volumebot/internal/config"
	"volumebot/internal/engine"
	"volumebot/internal/execution"
	"volumebot/internal/funding"
	"volumebot/internal/monitor"
	"volumebot/internal/sampler"
	"volumebot/internal/store"
	"volumebot/internal/wallet"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 连接链节点并运行一次完整的注资、交易、回收流程，ctx 取消时停止交易。
func (a *App) Run(ctx context.Context) error {
	amounts, err := a.cfg.ParseAmounts()
	if err != nil {
		return fmt.Errorf("解析金额配置失败: %w", err)
	}

	treasury, err := wallet.FromHex(a.cfg.Treasury.PrivateKey)
	if err != nil {
		return fmt.Errorf("解析资金库私钥失败: %w", err)
	}

	a.logger.Info("刷量机器人已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("treasury", treasury.Address().Hex()),
		zap.String("target", a.cfg.Tokens.Target),
		zap.Int("wallets", a.cfg.Wallets.Count),
	)

	client, err := chain.Dial(ctx, a.cfg.Chain, common.HexToAddress(a.cfg.Router.Address), a.logger)
	if err != nil {
		return fmt.Errorf("初始化链客户端失败: %w", err)
	}
	defer client.Close()

	monitorSvc, err := monitor.NewService(ctx, a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化监控服务失败: %w", err)
	}

	tokens := execution.Tokens{
		Native:       common.HexToAddress(a.cfg.Tokens.Native),
		Intermediate: common.HexToAddress(a.cfg.Tokens.Intermediate),
		Target:       common.HexToAddress(a.cfg.Tokens.Target),
	}
	executor := execution.NewExecutor(client, tokens, execution.OptionsFromConfig(a.cfg.Execution, a.cfg.Chain), a.logger)

	funds := funding.NewController(client, treasury, funding.Options{
		Policy:      a.cfg.Funding.Policy,
		MinTransfer: amounts.MinTransfer,
		FeeBuffer:   amounts.FeeBuffer,
		TxURL:       a.cfg.Chain.TxURL,
	}, a.logger)

	amountSampler := sampler.New(nil)
	loopCfg := engine.Config{
		Interval:    a.cfg.Trading.Interval,
		MinTrade:    amounts.MinTrade,
		MaxTrade:    amounts.MaxTrade,
		TargetToken: tokens.Target,
	}
	newLoop := func(w *wallet.Wallet) (tradeLoop, error) {
		return engine.NewLoop(w, client, executor, amountSampler, monitorSvc, loopCfg, a.logger)
	}

	pool := wallet.NewPool(wallet.NewFileStore(a.cfg.Wallets.StorePath), a.logger)

	orch := newOrchestrator(orchestratorConfig{
		walletCount:    a.cfg.Wallets.Count,
		storePath:      a.cfg.Wallets.StorePath,
		fundingEnabled: a.cfg.Funding.Enabled,
		fundAmount:     amounts.Fund,
		fundingPolicy:  a.cfg.Funding.Policy,
		collectMode:    a.cfg.Collect.Mode,
		collectTimeout: a.cfg.Collect.Timeout,
		duration:       a.cfg.Trading.Duration,
	}, pool, funds, monitorSvc, newLoop, a.logger)

	if port := a.cfg.Monitor.Port; port > 0 {
		if err := startMonitorServer(ctx, monitorSvc, orch.Snapshots, port, a.logger); err != nil {
			a.logger.Warn("监控接口启动失败", zap.Error(err))
		}
	}

	if err := orch.Run(ctx); err != nil {
		monitorSvc.RecordError(context.WithoutCancel(ctx), "运行失败", err, nil)
		return err
	}

	a.logger.Info("运行结束")
	return nil
}
