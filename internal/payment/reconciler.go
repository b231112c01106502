package payment

import (
	"context"
	"log/slog"
	"time"

	"AgentPay-Chain/internal/chain"
	xerrors "AgentPay-Chain/internal/errors"
	"AgentPay-Chain/internal/observability/alerting"
	"AgentPay-Chain/internal/storage/mysql"
	"AgentPay-Chain/pkg/logger"
)

// Reconciler 消费对账队列中的超时签名，重新查询链上结论并把台账
// 中的记录推进到终态。它只做查询与回填，永远不会重新提交交易。
type Reconciler struct {
	client  chain.Client
	ledger  mysql.PaymentRepository
	queue   Queue
	alerts  alerting.Dispatcher
	workers int
	logger  *slog.Logger
}

// ReconcilerOption 定义可选配置。
type ReconcilerOption func(*Reconciler)

// WithReconcilerWorkers 设置消费协程数量。
func WithReconcilerWorkers(count int) ReconcilerOption {
	return func(r *Reconciler) {
		if count > 0 {
			r.workers = count
		}
	}
}

// WithReconcilerAlerts 指定告警分发器。
func WithReconcilerAlerts(dispatcher alerting.Dispatcher) ReconcilerOption {
	return func(r *Reconciler) {
		r.alerts = dispatcher
	}
}

// WithReconcilerLogger 指定日志输出。
func WithReconcilerLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// NewReconciler 构造对账器。
func NewReconciler(client chain.Client, ledger mysql.PaymentRepository, queue Queue, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		client:  client,
		ledger:  ledger,
		queue:   queue,
		workers: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = logger.Named("reconciler")
	}
	return r
}

// Run 阻塞消费对账队列，直到 ctx 取消。
func (r *Reconciler) Run(ctx context.Context) error {
	if r == nil || r.client == nil || r.queue == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "对账器未初始化")
	}
	r.logger.Info("对账器已启动", slog.Int("workers", r.workers))
	return r.queue.Consume(ctx, r.workers, r.reconcile)
}

// reconcile 处理单个签名：仍未有结论的重新入队，有结论的回填台账。
func (r *Reconciler) reconcile(ctx context.Context, signature string) error {
	if signature == "" {
		return nil
	}

	status, err := r.client.GetConfirmationStatus(ctx, chain.Signature(signature))
	if err != nil {
		r.logger.Warn("对账查询失败",
			slog.Any("error", err),
			slog.String("signature", signature))
		return err
	}

	switch status {
	case chain.StatusPending:
		// 链上尚无结论，放回队列等待下一轮。
		if err := r.queue.Publish(ctx, signature); err != nil {
			r.logger.Error("签名重新入队失败",
				slog.Any("error", err),
				slog.String("signature", signature))
			return err
		}
		return nil
	case chain.StatusConfirmed:
		return r.settle(ctx, signature, StatusConfirmed)
	case chain.StatusFailed:
		r.notifyFailure(ctx, signature)
		return r.settle(ctx, signature, StatusFailed)
	default:
		r.logger.Warn("未知的确认状态",
			slog.String("status", string(status)),
			slog.String("signature", signature))
		return nil
	}
}

func (r *Reconciler) settle(ctx context.Context, signature string, final Status) error {
	if r.ledger != nil {
		if err := r.ledger.UpdateStatus(ctx, signature, string(final)); err != nil {
			r.logger.Error("回填台账状态失败",
				slog.Any("error", err),
				slog.String("signature", signature))
			return err
		}
	}
	logger.Audit().Info("超时交易已对账",
		slog.String("signature", signature),
		slog.String("status", string(final)),
	)
	return nil
}

func (r *Reconciler) notifyFailure(ctx context.Context, signature string) {
	if r.alerts == nil {
		return
	}
	event := alerting.Event{
		Code:       CodeTransferFailed,
		Message:    "对账发现超时交易最终失败",
		Severity:   xerrors.SeverityWarning,
		Signature:  signature,
		OccurredAt: time.Now(),
	}
	if err := r.alerts.Notify(ctx, event); err != nil {
		r.logger.Error("分发对账告警失败", slog.Any("error", err))
	}
}
