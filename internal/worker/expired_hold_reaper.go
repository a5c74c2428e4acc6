package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SeifEldin15/quackplan-backend/internal/pkg/logger"
)

// HoldReaper は期限切れホールドを整理するインターフェース
type HoldReaper interface {
	ReapExpired(ctx context.Context) (int64, error)
}

// ExpiredHoldReaper は期限切れシートホールドを定期的に整理するワーカー
// 定員の読み取りは常に期限でフィルタされるため、このワーカーは
// テーブルの物理的な状態を追従させる最適化にすぎない
type ExpiredHoldReaper struct {
	holdService HoldReaper
	interval    time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewExpiredHoldReaper は新しいリーパーを作成
func NewExpiredHoldReaper(hs HoldReaper, interval time.Duration) *ExpiredHoldReaper {
	return &ExpiredHoldReaper{
		holdService: hs,
		interval:    interval,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start はリーパーを開始
func (r *ExpiredHoldReaper) Start(ctx context.Context) {
	logger.Info("期限切れホールドリーパー開始",
		zap.Duration("interval", r.interval),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer close(r.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("期限切れホールドリーパー停止（コンテキストキャンセル）")
			return
		case <-r.stopCh:
			logger.Info("期限切れホールドリーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

// Stop はリーパーを停止
func (r *ExpiredHoldReaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// reap は期限切れホールドを整理
func (r *ExpiredHoldReaper) reap(ctx context.Context) {
	log := logger.Get()
	log.Debug("期限切れホールドの整理開始")

	count, err := r.holdService.ReapExpired(ctx)
	if err != nil {
		log.Error("期限切れホールドの整理失敗", zap.Error(err))
		return
	}

	if count > 0 {
		log.Info("期限切れホールドを整理", zap.Int64("count", count))
	} else {
		log.Debug("期限切れホールドなし")
	}
}
