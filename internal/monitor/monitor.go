package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"AgentPay-Chain/internal/chain"
	"AgentPay-Chain/pkg/logger"
)

// defaultInterval 是余额轮询的默认周期。
const defaultInterval = 5 * time.Second

// BalanceMonitor 周期性读取一组账户的链上余额。它只做读取：
// 快照仅供展示参考，任何资金结论都以交易确认为准。
type BalanceMonitor struct {
	client   chain.Client
	interval time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	snapshots map[chain.Address]chain.BalanceSnapshot
	onUpdate  func(chain.BalanceSnapshot)
}

// Option 定义可选配置。
type Option func(*BalanceMonitor)

// WithInterval 设置轮询周期。
func WithInterval(interval time.Duration) Option {
	return func(m *BalanceMonitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithOnUpdate 注册余额更新回调，在每次成功轮询后触发。
func WithOnUpdate(fn func(chain.BalanceSnapshot)) Option {
	return func(m *BalanceMonitor) {
		m.onUpdate = fn
	}
}

// WithLogger 指定日志输出。
func WithLogger(logger *slog.Logger) Option {
	return func(m *BalanceMonitor) {
		m.logger = logger
	}
}

// New 构造余额监视器。
func New(client chain.Client, opts ...Option) *BalanceMonitor {
	m := &BalanceMonitor{
		client:    client,
		interval:  defaultInterval,
		snapshots: make(map[chain.Address]chain.BalanceSnapshot),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.logger == nil {
		m.logger = logger.Named("monitor")
	}
	return m
}

// Start 启动对给定地址的轮询，返回停止函数。停止函数可以被安全地
// 多次调用；返回后监视协程保证退出。
func (m *BalanceMonitor) Start(ctx context.Context, addresses []chain.Address) (stop func()) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		// 启动时先拉一轮，不等第一个周期。
		m.pollOnce(runCtx, addresses)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.pollOnce(runCtx, addresses)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// Snapshot 返回某个地址最近一次成功观测的余额。
func (m *BalanceMonitor) Snapshot(address chain.Address) (chain.BalanceSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot, ok := m.snapshots[address]
	return snapshot, ok
}

// Snapshots 返回当前全部余额快照的副本。
func (m *BalanceMonitor) Snapshots() []chain.BalanceSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]chain.BalanceSnapshot, 0, len(m.snapshots))
	for _, snapshot := range m.snapshots {
		results = append(results, snapshot)
	}
	return results
}

// pollOnce 拉取一轮余额。单个地址查询失败只记日志并跳过，
// 保留上一次的快照。
func (m *BalanceMonitor) pollOnce(ctx context.Context, addresses []chain.Address) {
	for _, address := range addresses {
		if ctx.Err() != nil {
			return
		}
		balance, err := m.client.GetBalance(ctx, address)
		if err != nil {
			m.logger.Warn("余额轮询失败",
				slog.Any("error", err),
				slog.String("address", string(address)))
			continue
		}
		snapshot := chain.BalanceSnapshot{
			Address:    address,
			Lamports:   balance,
			ObservedAt: time.Now(),
		}
		m.mu.Lock()
		m.snapshots[address] = snapshot
		m.mu.Unlock()
		if m.onUpdate != nil {
			m.onUpdate(snapshot)
		}
	}
}
