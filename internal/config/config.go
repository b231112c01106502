package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述守护进程在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	Log     LogConfig     `json:"log"`
	Storage StorageConfig `json:"storage"`
	Queue   QueueConfig   `json:"queue"`
	Chain   ChainConfig   `json:"chain"`
	Backend BackendConfig `json:"backend"`
	Payment PaymentConfig `json:"payment"`
	Wallet  WalletConfig  `json:"wallet"`
	Runtime RuntimeConfig `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// LogConfig 控制应用日志与支付审计日志的输出。
type LogConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	Audit       struct {
		Enabled    bool   `json:"enabled"`
		Path       string `json:"path"`
		MaxSizeMB  int    `json:"max_size_mb"`
		MaxBackups int    `json:"max_backups"`
		MaxAgeDays int    `json:"max_age_days"`
	} `json:"audit"`
}

// StorageConfig 描述支付台账的持久化方式。
type StorageConfig struct {
	Ledger LedgerConfig `json:"ledger"`
}

// LedgerConfig 支持内存 (JSON 行文件) 与 MySQL 两种驱动。
type LedgerConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 描述待确认签名队列的实现方式。
type QueueConfig struct {
	Driver  string         `json:"driver"`
	Workers int            `json:"workers"`
	Redis   RedisConfig    `json:"redis"`
	Rabbit  RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Queue    string `json:"queue"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL     string `json:"url"`
	Queue   string `json:"queue"`
	Durable bool   `json:"durable"`
}

// ChainConfig 包含访问链节点所需的端点信息。集群定义文件可以声明
// 多个端点；未提供时退回到单个 rpc_url。
type ChainConfig struct {
	ClusterConfig  string `json:"cluster_config"`
	RPCURL         string `json:"rpc_url"`
	DefaultCluster string `json:"default_cluster"`
}

// BackendConfig 描述智能体后端的接入地址。
type BackendConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// PaymentConfig 汇总支付相关的业务常量。金额以原生单位书写，
// 载入后换算为最小单位使用。
type PaymentConfig struct {
	BankWallet            string  `json:"bank_wallet"`
	MessageCost           float64 `json:"message_cost"`
	PlatformFee           float64 `json:"platform_fee"`
	MinPrizePool          float64 `json:"min_prize_pool"`
	ConfirmTimeoutSeconds int     `json:"confirm_timeout_seconds"`
	PollIntervalSeconds   int     `json:"poll_interval_seconds"`
}

// WalletConfig 描述守护进程自持钱包的私钥来源。私钥本身只允许
// 通过环境变量注入，不落配置文件。
type WalletConfig struct {
	SecretEnv string `json:"secret_env"`
}

// RuntimeConfig 放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.Ledger.Driver == "" {
		c.Storage.Ledger.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 1
	}

	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = 30
	}

	if c.Payment.MessageCost <= 0 {
		c.Payment.MessageCost = 0.01
	}
	if c.Payment.PlatformFee <= 0 {
		c.Payment.PlatformFee = 0.01
	}
	if c.Payment.MinPrizePool <= 0 {
		c.Payment.MinPrizePool = 0.1
	}
	if c.Payment.ConfirmTimeoutSeconds <= 0 {
		c.Payment.ConfirmTimeoutSeconds = 30
	}
	if c.Payment.PollIntervalSeconds <= 0 {
		c.Payment.PollIntervalSeconds = 1
	}

	if c.Wallet.SecretEnv == "" {
		c.Wallet.SecretEnv = "AGENTPAY_WALLET_SECRET"
	}

	if c.Chain.ClusterConfig != "" && !filepath.IsAbs(c.Chain.ClusterConfig) {
		c.Chain.ClusterConfig = filepath.Join(baseDir, c.Chain.ClusterConfig)
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
