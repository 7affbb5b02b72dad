// Package sweep はキャッシュの定期スイープジョブを提供する。
// TTLと同じ間隔で期限切れエントリを回収し、長時間のセッションで
// キャッシュのメモリ使用量が無制限に増加することを防ぐ。
package sweep

import (
	"context"
	"log/slog"
	"time"
)

// CacheSweeper は期限切れエントリの一括削除のインターフェース。
// テスト時にモックに差し替え可能。
type CacheSweeper interface {
	Sweep(now time.Time) int
}

// SweepJob はキャッシュの定期スイープジョブ。冪等な削除処理を保証する。
type SweepJob struct {
	store  CacheSweeper
	logger *slog.Logger
}

// NewSweepJob は新しいSweepJobを生成する。
func NewSweepJob(store CacheSweeper, logger *slog.Logger) *SweepJob {
	return &SweepJob{
		store:  store,
		logger: logger,
	}
}

// Run はスイープを1回実行する。削除対象がない場合でもエラーにならない。
func (j *SweepJob) Run(ctx context.Context) {
	start := time.Now()

	removed := j.store.Sweep(start)

	if removed > 0 {
		j.logger.Info("キャッシュスイープが完了しました",
			slog.Int("removed_count", removed),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}
}

// Start は指定間隔のティッカーでスイープジョブを定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *SweepJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("キャッシュスイープジョブを開始しました",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("キャッシュスイープジョブを停止しました")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
