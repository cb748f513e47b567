package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"
)

// FundingPolicy 决定注资失败时的处理方式。
type FundingPolicy string

const (
	// FundingFailFast 首笔失败即终止整批注资。
	FundingFailFast FundingPolicy = "fail_fast"
	// FundingBestEffort 继续向其余钱包注资并汇总失败。
	FundingBestEffort FundingPolicy = "best_effort"
)

// CollectMode 决定回收资金与交易循环之间的时序关系。
type CollectMode string

const (
	// CollectAfterStop 等待交易循环全部停止后再回收。
	CollectAfterStop CollectMode = "after_stop"
	// CollectConcurrent 启动交易循环后立即回收，与交易并行。
	CollectConcurrent CollectMode = "concurrent"
	// CollectDisabled 不回收。
	CollectDisabled CollectMode = "disabled"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Treasury  TreasuryConfig  `mapstructure:"treasury"`
	Tokens    TokensConfig    `mapstructure:"tokens"`
	Router    RouterConfig    `mapstructure:"router"`
	Wallets   WalletsConfig   `mapstructure:"wallets"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Funding   FundingConfig   `mapstructure:"funding"`
	Collect   CollectConfig   `mapstructure:"collect"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ChainConfig 描述 EVM 节点连接信息。
type ChainConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	ChainID        int64         `mapstructure:"chain_id"`
	ReceiptTimeout time.Duration `mapstructure:"receipt_timeout"`
	ExplorerTxURL  string        `mapstructure:"explorer_tx_url"`
}

// TreasuryConfig 描述资金主钱包。
type TreasuryConfig struct {
	PrivateKey string `mapstructure:"private_key"`
}

// TokensConfig 列出兑换路径上的代币合约。
type TokensConfig struct {
	Native       string `mapstructure:"native"`
	Intermediate string `mapstructure:"intermediate"`
	Target       string `mapstructure:"target"`
}

// RouterConfig 描述 AMM 路由合约。
type RouterConfig struct {
	Address string `mapstructure:"address"`
}

// WalletsConfig 控制临时钱包池。
type WalletsConfig struct {
	Count     int    `mapstructure:"count"`
	StorePath string `mapstructure:"store_path"`
}

// TradingConfig 控制交易循环节奏与单笔金额区间（单位 ether）。
type TradingConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	MinAmount string        `mapstructure:"min_amount"`
	MaxAmount string        `mapstructure:"max_amount"`
	Duration  time.Duration `mapstructure:"duration"`
}

// ExecutionConfig 控制兑换下单行为。
type ExecutionConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	SlippageBps int64         `mapstructure:"slippage_bps"`
	Deadline    time.Duration `mapstructure:"deadline"`
}

// FundingConfig 控制资金下发。
type FundingConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Amount  string        `mapstructure:"amount"`
	Policy  FundingPolicy `mapstructure:"policy"`
}

// CollectConfig 控制资金回收。
type CollectConfig struct {
	Mode        CollectMode   `mapstructure:"mode"`
	MinTransfer string        `mapstructure:"min_transfer"`
	FeeBuffer   string        `mapstructure:"fee_buffer"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制监控接口，端口为 0 时不启动。
type MonitorConfig struct {
	Port int `mapstructure:"port"`
}

// Amounts 为解析后的 wei 金额。
type Amounts struct {
	MinTrade    *big.Int
	MaxTrade    *big.Int
	Fund        *big.Int
	MinTransfer *big.Int
	FeeBuffer   *big.Int
}

// ParseAmounts 将配置中的 ether 金额转换为 wei。
func (c *Config) ParseAmounts() (Amounts, error) {
	var (
		out Amounts
		err error
	)
	parse := func(field, raw string) *big.Int {
		v, parseErr := EtherToWei(raw)
		if parseErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", field, parseErr))
			return nil
		}
		return v
	}

	out.MinTrade = parse("trading.min_amount", c.Trading.MinAmount)
	out.MaxTrade = parse("trading.max_amount", c.Trading.MaxAmount)
	out.Fund = parse("funding.amount", c.Funding.Amount)
	out.MinTransfer = parse("collect.min_transfer", c.Collect.MinTransfer)
	out.FeeBuffer = parse("collect.fee_buffer", c.Collect.FeeBuffer)
	if err != nil {
		return Amounts{}, err
	}
	return out, nil
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Chain.RPCURL == "" {
		err = multierr.Append(err, errors.New("chain.rpc_url 不能为空"))
	}
	if c.Chain.ChainID < 0 {
		err = multierr.Append(err, errors.New("chain.chain_id 不能为负"))
	}
	if c.Chain.ReceiptTimeout <= 0 {
		err = multierr.Append(err, errors.New("chain.receipt_timeout 必须大于0"))
	}
	if c.Treasury.PrivateKey == "" {
		err = multierr.Append(err, errors.New("treasury.private_key 不能为空"))
	}
	for field, addr := range map[string]string{
		"tokens.native":       c.Tokens.Native,
		"tokens.intermediate": c.Tokens.Intermediate,
		"tokens.target":       c.Tokens.Target,
		"router.address":      c.Router.Address,
	} {
		if !common.IsHexAddress(addr) {
			err = multierr.Append(err, fmt.Errorf("%s 不是合法地址: %q", field, addr))
		}
	}
	if c.Wallets.Count <= 0 {
		err = multierr.Append(err, errors.New("wallets.count 必须大于0"))
	}
	if c.Wallets.StorePath == "" {
		err = multierr.Append(err, errors.New("wallets.store_path 不能为空"))
	}
	if c.Trading.Interval <= 0 {
		err = multierr.Append(err, errors.New("trading.interval 必须大于0"))
	}
	if c.Trading.Duration < 0 {
		err = multierr.Append(err, errors.New("trading.duration 不能为负"))
	}
	if c.Execution.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("execution.max_attempts 必须大于0"))
	}
	if c.Execution.RetryDelay < 0 {
		err = multierr.Append(err, errors.New("execution.retry_delay 不能为负"))
	}
	if c.Execution.SlippageBps < 0 || c.Execution.SlippageBps >= 10000 {
		err = multierr.Append(err, errors.New("execution.slippage_bps 应位于[0,10000)"))
	}
	if c.Execution.Deadline <= 0 {
		err = multierr.Append(err, errors.New("execution.deadline 必须大于0"))
	}
	switch c.Funding.Policy {
	case FundingFailFast, FundingBestEffort:
	default:
		err = multierr.Append(err, fmt.Errorf("funding.policy 不支持: %q", c.Funding.Policy))
	}
	switch c.Collect.Mode {
	case CollectAfterStop, CollectConcurrent, CollectDisabled:
	default:
		err = multierr.Append(err, fmt.Errorf("collect.mode 不支持: %q", c.Collect.Mode))
	}
	if c.Collect.Timeout <= 0 {
		err = multierr.Append(err, errors.New("collect.timeout 必须大于0"))
	}

	amounts, amountErr := c.ParseAmounts()
	if amountErr != nil {
		err = multierr.Append(err, amountErr)
	} else {
		if amounts.MinTrade.Sign() <= 0 {
			err = multierr.Append(err, errors.New("trading.min_amount 必须大于0"))
		}
		if amounts.MinTrade.Cmp(amounts.MaxTrade) > 0 {
			err = multierr.Append(err, errors.New("trading.min_amount 不能大于 max_amount"))
		}
		if c.Funding.Enabled && amounts.Fund.Sign() <= 0 {
			err = multierr.Append(err, errors.New("funding.amount 必须大于0"))
		}
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		err = multierr.Append(err, errors.New("monitor.port 应位于[0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

// TxURL 拼接区块浏览器交易链接。
func (c ChainConfig) TxURL(hash string) string {
	if c.ExplorerTxURL == "" {
		return hash
	}
	return strings.TrimRight(c.ExplorerTxURL, "/") + "/" + hash
}
