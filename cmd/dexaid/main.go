package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"DexAI-Chain/internal/adapter"
	"DexAI-Chain/internal/api"
	"DexAI-Chain/internal/bridge"
	"DexAI-Chain/internal/config"
	"DexAI-Chain/internal/lending"
	"DexAI-Chain/internal/notify"
	"DexAI-Chain/internal/observability/alerting"
	"DexAI-Chain/internal/storage/mysql"
	"DexAI-Chain/internal/wallet"
	"DexAI-Chain/internal/web3"
	"DexAI-Chain/internal/web3/ethereum"
	"DexAI-Chain/pkg/logger"
)

// main 是 DexAI 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("dexaid 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("DEXAI_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "dexai.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	account, err := createAccount(ctx, cfg)
	if err != nil {
		return err
	}

	sessions, err := createSessionStore(cfg)
	if err != nil {
		return err
	}

	bridgeOpts := []bridge.Option{bridge.WithSessionStore(sessions)}

	var orderHistory api.OrderHistory
	orders, closeOrders, err := createOrderStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeOrders()
	if orders != nil {
		bridgeOpts = append(bridgeOpts, bridge.WithOrderRecorder(orders))
		orderHistory = orders
	}

	if dispatcher := createAlertDispatcher(cfg); dispatcher != nil {
		bridgeOpts = append(bridgeOpts, bridge.WithAlertDispatcher(dispatcher))
	}

	if cfg.Notify.Enabled {
		publisher, err := notify.NewAMQPPublisher(notify.AMQPConfig{
			URL:     cfg.Notify.AMQPURL,
			Queue:   cfg.Notify.Queue,
			Durable: true,
		})
		if err != nil {
			return err
		}
		defer publisher.Close()
		bridgeOpts = append(bridgeOpts, bridge.WithEventPublisher(publisher))
	}

	bridgeAdapter := bridge.NewAdapter(bridge.Config{
		QuoteBaseURL:        cfg.Bridge.QuoteBaseURL,
		QuoteTimeout:        cfg.Bridge.QuoteTimeout.Std(),
		ConfirmWindow:       cfg.Bridge.ConfirmWindow.Std(),
		AbandonWindow:       cfg.Bridge.AbandonWindow.Std(),
		TokenCacheSize:      cfg.Bridge.TokenCacheSize,
		TokenCacheTTL:       cfg.Bridge.TokenCacheTTL.Std(),
		AffiliateAddress:    cfg.Bridge.AffiliateAddress,
		AffiliateFeePercent: cfg.Bridge.AffiliateFeePercent,
	}, bridgeOpts...)

	registry := adapter.NewRegistry()
	for _, tool := range bridgeAdapter.Tools() {
		registry.MustRegister(tool)
	}
	for _, tool := range lending.Tools() {
		registry.MustRegister(tool)
	}
	for _, tool := range wallet.Tools() {
		registry.MustRegister(tool)
	}

	server := api.NewServer(cfg.Server.Address, registry, account, orderHistory)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// createAccount 根据链定义与环境变量中的私钥构造链上账户。
func createAccount(ctx context.Context, cfg *config.Config) (web3.Account, error) {
	privateKey := strings.TrimSpace(os.Getenv(cfg.Web3.PrivateKeyEnv))
	if privateKey == "" {
		return nil, fmt.Errorf("环境变量 %s 中没有私钥", cfg.Web3.PrivateKeyEnv)
	}

	rpcURL := cfg.Web3.RPCURL
	if rpcURL == "" {
		defs, err := web3.LoadChainDefinitions(cfg.Web3.ChainsFile)
		if err != nil {
			return nil, err
		}
		def, ok := defs.Chains[cfg.Web3.Chain]
		if !ok {
			return nil, fmt.Errorf("链配置中没有链 %s", cfg.Web3.Chain)
		}
		rpcURL = def.RPCURL()
	}

	return ethereum.NewAccount(ctx, ethereum.Config{
		Name:       cfg.Web3.Chain,
		RPCURL:     rpcURL,
		PrivateKey: privateKey,
		ChainID:    web3.ChainID[web3.Chain(cfg.Web3.Chain)],
	})
}

// orderStore 聚合订单历史存储的两面：桥接侧写入与 API 侧查询。
type orderStore interface {
	bridge.OrderRecorder
	api.OrderHistory
}

// createOrderStore 根据配置选择订单历史存储，driver 为 none 时返回 nil。
func createOrderStore(ctx context.Context, cfg *config.Config) (orderStore, func(), error) {
	noop := func() {}
	switch cfg.Storage.OrderStore.Driver {
	case "", "none":
		return nil, noop, nil
	case "memory":
		repo, err := mysql.NewMemoryOrderRepository(cfg.Storage.OrderStore.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return repo, noop, nil
	case "mysql":
		repo, err := mysql.NewSQLOrderRepository(ctx, mysql.Config{DSN: cfg.Storage.OrderStore.DSN})
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("未知的订单存储驱动: %s", cfg.Storage.OrderStore.Driver)
	}
}

// createAlertDispatcher 根据配置组装告警渠道，一个渠道都没有时返回 nil。
func createAlertDispatcher(cfg *config.Config) alerting.Dispatcher {
	var notifiers []alerting.Notifier

	if email := cfg.Alert.Email; email.SMTPAddress != "" && len(email.To) > 0 {
		notifiers = append(notifiers, &alerting.EmailNotifier{
			Sender: &alerting.SMTPSender{
				Addr:     email.SMTPAddress,
				Username: email.Username,
				Password: os.Getenv(email.PasswordEnv),
				From:     email.From,
			},
			To:            email.To,
			SubjectPrefix: email.SubjectPrefix,
		})
	}
	if cfg.Alert.DingTalk.Webhook != "" {
		notifiers = append(notifiers, &alerting.DingTalkNotifier{
			Sender: alerting.NewDingTalkWebhookSender(cfg.Alert.DingTalk.Webhook),
		})
	}
	if cfg.Alert.Slack.Webhook != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender:    alerting.NewSlackWebhookSender(cfg.Alert.Slack.Webhook),
			ChannelID: cfg.Alert.Slack.Channel,
		})
	}

	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}

// createSessionStore 根据配置选择会话存储后端。
func createSessionStore(cfg *config.Config) (bridge.SessionStore, error) {
	switch cfg.Bridge.SessionStore.Driver {
	case "", "memory":
		return bridge.NewMemorySessionStore(), nil
	case "redis":
		return bridge.NewRedisSessionStore(bridge.RedisSessionStoreConfig{
			Address:  cfg.Bridge.SessionStore.Address,
			Password: cfg.Bridge.SessionStore.Password,
			DB:       cfg.Bridge.SessionStore.DB,
		})
	default:
		return nil, fmt.Errorf("未知的会话存储驱动: %s", cfg.Bridge.SessionStore.Driver)
	}
}
