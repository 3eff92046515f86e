package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Config 描述了 DexAI 在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	Web3    Web3Config    `json:"web3"`
	Bridge  BridgeConfig  `json:"bridge"`
	Storage StorageConfig `json:"storage"`
	Notify  NotifyConfig  `json:"notify"`
	Alert   AlertConfig   `json:"alert"`
	Log     LogConfig     `json:"log"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// Web3Config 包含访问区块链节点与账户所需的信息。私钥不写入配置文件，
// 通过 PrivateKeyEnv 指定的环境变量注入。
type Web3Config struct {
	// ChainsFile 为链定义 YAML 文件路径，相对路径以配置文件所在目录为基准。
	ChainsFile string `json:"chains_file"`
	// Chain 为账户所在链的名称，RPC 地址从链定义中随机选取。
	Chain string `json:"chain"`
	// RPCURL 可直接指定节点地址，覆盖链定义中的选择。
	RPCURL string `json:"rpc_url"`
	// PrivateKeyEnv 为保存账户私钥的环境变量名。
	PrivateKeyEnv string `json:"private_key_env"`
}

// BridgeConfig 控制桥接适配器的报价、时限与会话存储。
type BridgeConfig struct {
	QuoteBaseURL        string             `json:"quote_base_url"`
	QuoteTimeout        Duration           `json:"quote_timeout"`
	ConfirmWindow       Duration           `json:"confirm_window"`
	AbandonWindow       Duration           `json:"abandon_window"`
	TokenCacheSize      int                `json:"token_cache_size"`
	TokenCacheTTL       Duration           `json:"token_cache_ttl"`
	AffiliateAddress    string             `json:"affiliate_address"`
	AffiliateFeePercent float64            `json:"affiliate_fee_percent"`
	SessionStore        SessionStoreConfig `json:"session_store"`
}

// SessionStoreConfig 选择会话存储后端，memory 或 redis。
type SessionStoreConfig struct {
	Driver   string `json:"driver"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// StorageConfig 统一描述订单历史等后端的连接信息。
type StorageConfig struct {
	OrderStore OrderStoreConfig `json:"order_store"`
}

// OrderStoreConfig 选择订单历史存储：none 表示不记录，memory 写本地
// JSON 文件，mysql 写入数据库。
type OrderStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	// DataDir 为 memory 驱动的数据目录，默认当前目录。
	DataDir string `json:"data_dir"`
}

// NotifyConfig 描述订单事件通知的消息队列连接。
type NotifyConfig struct {
	Enabled bool   `json:"enabled"`
	AMQPURL string `json:"amqp_url"`
	Queue   string `json:"queue"`
}

// AlertConfig 配置链上失败等严重错误的告警渠道，全部留空时不启用告警。
type AlertConfig struct {
	Email    EmailAlertConfig    `json:"email"`
	DingTalk DingTalkAlertConfig `json:"dingtalk"`
	Slack    SlackAlertConfig    `json:"slack"`
}

// EmailAlertConfig 描述邮件告警的 SMTP 参数，密码通过环境变量注入。
type EmailAlertConfig struct {
	// SMTPAddress 为 host:port 形式的 SMTP 地址，为空时不启用邮件告警。
	SMTPAddress   string   `json:"smtp_address"`
	Username      string   `json:"username"`
	PasswordEnv   string   `json:"password_env"`
	From          string   `json:"from"`
	To            []string `json:"to"`
	SubjectPrefix string   `json:"subject_prefix"`
}

// DingTalkAlertConfig 描述钉钉机器人告警，webhook 为空时不启用。
type DingTalkAlertConfig struct {
	Webhook string `json:"webhook"`
}

// SlackAlertConfig 描述 Slack 告警，webhook 为空时不启用。
type SlackAlertConfig struct {
	Webhook string `json:"webhook"`
	Channel string `json:"channel"`
}

// LogConfig 控制日志级别与输出格式。
type LogConfig struct {
	Level       string         `json:"level"`
	Format      string         `json:"format"`
	OutputPaths []string       `json:"output_paths"`
	Audit       AuditLogConfig `json:"audit"`
}

// AuditLogConfig 控制订单提交审计日志的落盘与滚动策略。
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Duration 让 JSON 配置支持 "30s"、"5m" 这样的时长写法。
type Duration time.Duration

// UnmarshalJSON 实现 json.Unmarshaler。
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("解析时长失败: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

// Std 返回标准库时长。
func (d Duration) Std() time.Duration {
	return time.Duration(d)
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

	if c.Web3.ChainsFile == "" {
		c.Web3.ChainsFile = filepath.Join(baseDir, "chains.yaml")
	} else if !filepath.IsAbs(c.Web3.ChainsFile) {
		c.Web3.ChainsFile = filepath.Join(baseDir, c.Web3.ChainsFile)
	}

	if c.Web3.Chain == "" {
		c.Web3.Chain = "bsc"
	}

	if c.Web3.PrivateKeyEnv == "" {
		c.Web3.PrivateKeyEnv = "DEXAI_PRIVATE_KEY"
	}

	if c.Bridge.SessionStore.Driver == "" {
		c.Bridge.SessionStore.Driver = "memory"
	}

	if c.Storage.OrderStore.Driver == "" {
		c.Storage.OrderStore.Driver = "none"
	}

	if c.Notify.Queue == "" {
		c.Notify.Queue = "dexai:orders"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if len(c.Log.OutputPaths) == 0 {
		c.Log.OutputPaths = []string{"stdout"}
	}
}
