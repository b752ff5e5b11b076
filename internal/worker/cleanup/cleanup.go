// Package cleanup は放置された決済オーダーの期限切れ処理ジョブを提供する。
// 作成から保持期間（デフォルト24時間）を過ぎても保留中のオーダーを失敗にする。
// メモリアルの状態には触れない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/soulishere/internal/metrics"
)

// OrderExpirer は保留中オーダーを期限切れにする操作を抽象化するインターフェース。
// repository.PaymentOrderRepositoryが満たす。
type OrderExpirer interface {
	ExpirePending(ctx context.Context, createdBefore, now time.Time) (int64, error)
}

// DefaultOrderTTL は保留中オーダーの既定の保持期間。
const DefaultOrderTTL = 24 * time.Hour

// DefaultInterval は実行間隔が0以下の場合に使う間隔。
const DefaultInterval = time.Hour

// ExpiryJob は保留中の決済オーダーを期限切れにするジョブ。
// 冪等で、対象がなくてもエラーにならない。
type ExpiryJob struct {
	orders  OrderExpirer
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
	TTL     time.Duration
}

// NewExpiryJob は新しいExpiryJobを生成する。ttlが0以下の場合はDefaultOrderTTLを使う。
func NewExpiryJob(orders OrderExpirer, logger *slog.Logger, recorder metrics.Recorder, ttl time.Duration) *ExpiryJob {
	if ttl <= 0 {
		ttl = DefaultOrderTTL
	}
	return &ExpiryJob{
		orders:  orders,
		logger:  logger,
		metrics: metrics.OrNop(recorder),
		now:     time.Now,
		TTL:     ttl,
	}
}

// Run は1回分の期限切れ処理を実行する。
func (j *ExpiryJob) Run(ctx context.Context) error {
	start := time.Now()
	now := j.now()

	expired, err := j.orders.ExpirePending(ctx, now.Add(-j.TTL), now)
	if err != nil {
		j.logger.Error("決済オーダーの期限切れ処理に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("ttl", j.TTL),
		)
		return fmt.Errorf("決済オーダーの期限切れ処理に失敗: %w", err)
	}

	j.metrics.RecordPaymentOrdersExpired(expired)
	j.logger.Info("決済オーダーの期限切れ処理が完了しました",
		slog.Int64("expired_count", expired),
		slog.Duration("ttl", j.TTL),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、その後intervalごとに実行する。
// intervalが0以下の場合はDefaultIntervalを使う。
// コンテキストがキャンセルされるまでブロックする。
func (j *ExpiryJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		j.logger.Warn("実行間隔が不正なため既定値を使用します",
			slog.Duration("interval", interval),
			slog.Duration("default", DefaultInterval),
		)
		interval = DefaultInterval
	}

	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("初回の期限切れ処理に失敗しました", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("期限切れ処理ジョブを停止しました")
			return
		case <-ticker.C:
			// 失敗は次回に持ち越す
			_ = j.Run(ctx)
		}
	}
}
