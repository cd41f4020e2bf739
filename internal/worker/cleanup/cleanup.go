// Package cleanup は保守用の定期削除ジョブを提供する。
// 保持期間を超えたログイン試行記録と期限切れセッションを日次バッチで削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// AttemptPurger はログイン試行記録の削除を行うインターフェース。
// throttle.Throttleが実装する。olderThanが0以下の場合は設定済みの保持期間を使う。
type AttemptPurger interface {
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SessionPurger は期限切れセッションの削除を行うインターフェース。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したデータの自動削除ジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	attempts AttemptPurger
	sessions SessionPurger
	logger   *slog.Logger
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(attempts AttemptPurger, sessions SessionPurger, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		attempts: attempts,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// Run はログイン試行記録と期限切れセッションを削除する。
// 一方が失敗してももう一方は実行し、発生したエラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	purgedAttempts, attemptErr := j.attempts.Purge(ctx, 0)
	if attemptErr != nil {
		j.logger.Error("ログイン試行記録の削除に失敗しました",
			slog.String("error", attemptErr.Error()),
		)
		attemptErr = fmt.Errorf("ログイン試行記録の削除に失敗: %w", attemptErr)
	}

	expiredSessions, sessionErr := j.sessions.DeleteExpired(ctx, j.now())
	if sessionErr != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", sessionErr.Error()),
		)
		sessionErr = fmt.Errorf("期限切れセッションの削除に失敗: %w", sessionErr)
	}

	if err := errors.Join(attemptErr, sessionErr); err != nil {
		return err
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("purged_login_attempts", purgedAttempts),
		slog.Int64("expired_sessions", expiredSessions),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *CleanupJob) runOnce(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}
