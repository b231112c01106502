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
	"time"

	"AgentPay-Chain/internal/api"
	"AgentPay-Chain/internal/backend"
	"AgentPay-Chain/internal/chain"
	"AgentPay-Chain/internal/chain/provider"
	"AgentPay-Chain/internal/config"
	"AgentPay-Chain/internal/creation"
	"AgentPay-Chain/internal/monitor"
	"AgentPay-Chain/internal/observability/alerting"
	"AgentPay-Chain/internal/payment"
	"AgentPay-Chain/internal/session"
	"AgentPay-Chain/internal/storage/mysql"
	"AgentPay-Chain/internal/wallet"
	"AgentPay-Chain/pkg/logger"
)

// main 是 AgentPay 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agentpayd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("AGENTPAY_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "agentpay.json")
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
	defer func() {
		_ = logger.Sync()
	}()

	dataDir := cfg.Runtime.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	ledger, err := createLedger(ctx, cfg, dataDir)
	if err != nil {
		return err
	}
	if closer, ok := ledger.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	pendingQueue, err := createPendingQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := pendingQueue.Close(); err != nil {
			log.Printf("关闭待确认队列失败: %v", err)
		}
	}()

	chainRegistry, err := provider.NewRegistry(ctx, provider.Config{
		ClusterConfig:  cfg.Chain.ClusterConfig,
		RPCURL:         cfg.Chain.RPCURL,
		DefaultCluster: cfg.Chain.DefaultCluster,
	})
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	chainClient, err := chainRegistry.DefaultClient()
	if err != nil {
		return err
	}

	signer, err := createSigner(cfg)
	if err != nil {
		return err
	}

	backendClient, err := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	alerts := alerting.NewFanout(&alerting.LogNotifier{})

	submitter := payment.NewSubmitter(chainClient,
		payment.WithPollInterval(time.Duration(cfg.Payment.PollIntervalSeconds)*time.Second),
		payment.WithConfirmTimeout(time.Duration(cfg.Payment.ConfirmTimeoutSeconds)*time.Second),
	)
	orchOpts := []payment.OrchestratorOption{
		payment.WithLedger(ledger),
		payment.WithPendingQueue(pendingQueue),
		payment.WithAlertDispatcher(alerts),
	}

	balances := monitor.New(chainClient)

	messageCost, err := chain.FromSOL(cfg.Payment.MessageCost)
	if err != nil {
		return err
	}
	sessionCtrl, err := session.NewController(backendClient,
		payment.NewOrchestrator(chainClient, submitter, orchOpts...),
		signer,
		session.WithMonitor(balances),
		session.WithMessageCost(messageCost),
	)
	if err != nil {
		return err
	}

	platformFee, err := chain.FromSOL(cfg.Payment.PlatformFee)
	if err != nil {
		return err
	}
	minPrize, err := chain.FromSOL(cfg.Payment.MinPrizePool)
	if err != nil {
		return err
	}
	bankWallet, err := chain.ParseAddress(cfg.Payment.BankWallet)
	if err != nil {
		return fmt.Errorf("bank_wallet 配置非法: %w", err)
	}
	creationCtrl, err := creation.NewController(chainClient, submitter, backendClient,
		signer, bankWallet, orchOpts,
		creation.WithPlatformFee(platformFee),
		creation.WithMinPrizePool(minPrize),
	)
	if err != nil {
		return err
	}

	reconciler := payment.NewReconciler(chainClient, ledger, pendingQueue,
		payment.WithReconcilerWorkers(cfg.Queue.Workers),
		payment.WithReconcilerAlerts(alerts),
	)

	reconcilerCtx, reconcilerCancel := context.WithCancel(ctx)
	defer reconcilerCancel()

	go func() {
		if err := reconciler.Run(reconcilerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("对账器异常退出: %v", err)
		}
	}()

	server := api.NewServer(cfg.Server.Address, sessionCtrl, creationCtrl,
		backendClient, balances, ledger)

	if err := server.Start(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func createLedger(ctx context.Context, cfg *config.Config, dataDir string) (mysql.PaymentRepository, error) {
	switch cfg.Storage.Ledger.Driver {
	case "memory", "":
		repo, err := mysql.NewMemoryPaymentRepository(dataDir)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "mysql":
		repo, err := mysql.NewSQLPaymentRepository(ctx, mysql.Config{
			DSN: cfg.Storage.Ledger.DSN,
		})
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, mysql.ErrUnsupportedDriver
	}
}

func createPendingQueue(cfg *config.Config) (payment.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return payment.NewMemoryQueue(1024), nil
	case "redis":
		queue, err := payment.NewRedisQueue(payment.RedisQueueConfig{
			Address:  cfg.Queue.Redis.Address,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			Queue:    cfg.Queue.Redis.Queue,
		})
		if err != nil {
			return nil, err
		}
		return queue, nil
	case "rabbitmq":
		queue, err := payment.NewRabbitMQQueue(payment.RabbitMQConfig{
			URL:     cfg.Queue.Rabbit.URL,
			Queue:   cfg.Queue.Rabbit.Queue,
			Durable: cfg.Queue.Rabbit.Durable,
		})
		if err != nil {
			return nil, err
		}
		return queue, nil
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}

// createSigner 从环境变量加载守护进程自持钱包。未配置时返回 nil，
// 届时任何需要签名的操作都会以 WALLET_UNAVAILABLE 拒绝。
func createSigner(cfg *config.Config) (wallet.Signer, error) {
	secret := strings.TrimSpace(os.Getenv(cfg.Wallet.SecretEnv))
	if secret == "" {
		log.Printf("环境变量 %s 未设置，钱包不可用", cfg.Wallet.SecretEnv)
		return nil, nil
	}
	signer, err := wallet.NewKeypairSigner(secret)
	if err != nil {
		return nil, err
	}
	return signer, nil
}
