package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "volumebot"
	etherDecimals     = 18
)

// Load 读取配置文件并结合环境变量返回 Config。
// 工作目录下的 .env 会先被载入环境变量，不存在时忽略。
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("chain.chain_id", 0)
	v.SetDefault("chain.receipt_timeout", "3m")
	v.SetDefault("chain.explorer_tx_url", "https://etherscan.io/tx/")

	// 私钥仅通过环境变量提供时 AutomaticEnv 需要一个已知键才能参与 Unmarshal。
	v.SetDefault("treasury.private_key", "")

	v.SetDefault("wallets.count", 3)
	v.SetDefault("wallets.store_path", "data/wallets.json")

	v.SetDefault("trading.interval", "1m")
	v.SetDefault("trading.min_amount", "0.005")
	v.SetDefault("trading.max_amount", "0.02")
	v.SetDefault("trading.duration", "0s")

	v.SetDefault("execution.max_attempts", 3)
	v.SetDefault("execution.retry_delay", "1s")
	v.SetDefault("execution.slippage_bps", 1000)
	v.SetDefault("execution.deadline", "8m")

	v.SetDefault("funding.enabled", true)
	v.SetDefault("funding.amount", "0.01")
	v.SetDefault("funding.policy", string(FundingFailFast))

	v.SetDefault("collect.mode", string(CollectAfterStop))
	v.SetDefault("collect.min_transfer", "0.001")
	v.SetDefault("collect.fee_buffer", "0.002")
	v.SetDefault("collect.timeout", "5m")

	v.SetDefault("database.path", "data/volumebot.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("monitor.port", 0)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// EtherToWei 将十进制 ether 字符串转换为 wei，拒绝负数与超出精度的小数。
func EtherToWei(raw string) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, errors.New("金额不能为空")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("金额格式无效 %q: %w", raw, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("金额不能为负: %q", raw)
	}
	wei := d.Shift(etherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("金额精度超过 %d 位小数: %q", etherDecimals, raw)
	}
	return wei.BigInt(), nil
}

// FormatEther 将 wei 格式化为 ether 字符串，用于日志。
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}
