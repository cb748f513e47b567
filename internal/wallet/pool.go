package wallet

import (
	"go.uber.org/zap"
)

// Store 为钱包持久化抽象。
type Store interface {
	Exists() (bool, error)
	Persist(wallets []*Wallet) error
	Load() ([]*Wallet, error)
}

// Pool 负责在启动时加载或创建钱包集合，两条路径在一次运行中互斥。
type Pool struct {
	store  Store
	logger *zap.Logger
}

// NewPool 创建钱包池。
func NewPool(store Store, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{store: store, logger: logger}
}

// LoadOrCreate 存储存在则加载，否则生成 n 个钱包并持久化。created 表示本次是否新建。
func (p *Pool) LoadOrCreate(n int) (wallets []*Wallet, created bool, err error) {
	exists, err := p.store.Exists()
	if err != nil {
		return nil, false, err
	}

	if exists {
		wallets, err = p.store.Load()
		if err != nil {
			return nil, false, err
		}
		p.logger.Info("已加载钱包", zap.Int("count", len(wallets)))
		return wallets, false, nil
	}

	wallets, err = Generate(n)
	if err != nil {
		return nil, false, err
	}
	if err := p.store.Persist(wallets); err != nil {
		return nil, false, err
	}
	p.logger.Info("已创建并保存钱包", zap.Int("count", len(wallets)))
	return wallets, true, nil
}
