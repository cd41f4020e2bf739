// Package throttle はログイン試行を記録し、スライディングウィンドウ内の失敗件数から
// 以降の試行を拒否すべきかを判定する。
//
// 判定はメールアドレス単位と送信元IP単位の2つのしきい値を独立に評価し、
// どちらかを満たせばブロックとする。ブロック状態は保存せず、判定のたびに
// 直近ウィンドウ内の失敗件数から再計算する。
package throttle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/mediatech/internal/model"
	"github.com/hitoshi/mediatech/internal/repository"
)

// ブロック理由
const (
	ReasonIdentity    = "identity"
	ReasonOrigin      = "origin"
	ReasonUnavailable = "unavailable"
)

// Config はスロットルのしきい値と保持期間。
type Config struct {
	// IdentityThreshold はメールアドレスごとの失敗件数の上限。
	IdentityThreshold int
	// OriginThreshold は送信元IPごとの失敗件数の上限。
	OriginThreshold int
	// Window は失敗件数を数える直近の期間。
	Window time.Duration
	// Retention は試行記録の保持期間。Purgeで期間を省略した場合に使う。
	Retention time.Duration
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		IdentityThreshold: 5,
		OriginThreshold:   15,
		Window:            15 * time.Minute,
		Retention:         7 * 24 * time.Hour,
	}
}

// Decision はCheckの判定結果。
type Decision struct {
	Blocked bool
	// Reason はブロック理由（identity, origin, unavailable）。ブロックしない場合は空。
	Reason string
	// RetryAfter は再試行までの待機時間の目安。
	RetryAfter time.Duration
}

// Metrics はログイン試行の記録件数を集計するインターフェース。
type Metrics interface {
	RecordLoginAttempt(result string)
	RecordLoginAttemptsPurged(count int64)
}

// Throttle はログイン試行のスロットル。状態はすべてリポジトリに保存される。
type Throttle struct {
	repo    repository.LoginAttemptRepository
	cfg     Config
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option はThrottleの生成オプション。
type Option func(*Throttle)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) {
		t.now = now
	}
}

// WithMetrics はメトリクス収集を設定する。
func WithMetrics(m Metrics) Option {
	return func(t *Throttle) {
		t.metrics = m
	}
}

// New はThrottleを生成する。cfgのゼロ値フィールドはDefaultConfigの値で補う。
func New(repo repository.LoginAttemptRepository, cfg Config, logger *slog.Logger, opts ...Option) *Throttle {
	def := DefaultConfig()
	if cfg.IdentityThreshold <= 0 {
		cfg.IdentityThreshold = def.IdentityThreshold
	}
	if cfg.OriginThreshold <= 0 {
		cfg.OriginThreshold = def.OriginThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &Throttle{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config は適用中の設定を返す。
func (t *Throttle) Config() Config {
	return t.cfg
}

// RecordAttempt はログイン試行を1件記録する。
// 記録の失敗はログに残すのみで呼び出し元には返さない。
// 正規化後のメールアドレスが空の場合は記録しない。
// identityとoriginは列長に収まるよう切り詰めるため、長い入力でも記録は失敗しない。
func (t *Throttle) RecordAttempt(ctx context.Context, identity, origin string, success bool) {
	identity, origin = normalize(identity, origin)
	if identity == "" {
		t.logger.Warn("空のログインIDのため試行を記録しません", slog.String("origin", origin))
		return
	}

	attempt := &model.LoginAttempt{
		ID:          uuid.New().String(),
		Identity:    identity,
		Origin:      origin,
		Success:     success,
		AttemptedAt: t.now(),
	}
	if err := t.repo.Insert(ctx, attempt); err != nil {
		t.logger.Warn("ログイン試行の記録に失敗しました",
			slog.String("identity", identity),
			slog.String("origin", origin),
			slog.Bool("success", success),
			slog.String("error", err.Error()),
		)
		t.record("record_error")
		return
	}

	if success {
		t.record("success")
	} else {
		t.record("failure")
	}
}

// Check は直近ウィンドウ内の失敗件数からブロックすべきかを判定する。
// 件数が取得できない場合はブロックとして扱う。
func (t *Throttle) Check(ctx context.Context, identity, origin string) Decision {
	since := t.now().Add(-t.cfg.Window)
	identity, origin = normalize(identity, origin)

	if identity != "" {
		count, err := t.repo.CountFailuresByIdentitySince(ctx, identity, since)
		if err != nil {
			return t.unavailable(err, identity, origin)
		}
		if count >= t.cfg.IdentityThreshold {
			return t.blocked(ReasonIdentity, identity, origin, count)
		}
	}

	if origin != "" {
		count, err := t.repo.CountFailuresByOriginSince(ctx, origin, since)
		if err != nil {
			return t.unavailable(err, identity, origin)
		}
		if count >= t.cfg.OriginThreshold {
			return t.blocked(ReasonOrigin, identity, origin, count)
		}
	}

	return Decision{}
}

// IsBlocked はCheckの判定結果がブロックかどうかを返す。
func (t *Throttle) IsBlocked(ctx context.Context, identity, origin string) bool {
	return t.Check(ctx, identity, origin).Blocked
}

// Purge はolderThanより古い試行記録を削除し、削除件数を返す。
// olderThanが0以下の場合はConfig.Retentionを使う。
func (t *Throttle) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = t.cfg.Retention
	}
	deleted, err := t.repo.DeleteOlderThan(ctx, t.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if t.metrics != nil {
		t.metrics.RecordLoginAttemptsPurged(deleted)
	}
	return deleted, nil
}

// Recent は新しい順に最大limit件の試行記録を返す。管理画面での調査用。
func (t *Throttle) Recent(ctx context.Context, identity, origin string, limit int) ([]*model.LoginAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	filter := repository.LoginAttemptFilter{
		Identity: model.ClampIdentity(model.NormalizeIdentity(identity)),
		Origin:   model.NormalizeOrigin(origin),
	}
	return t.repo.ListRecent(ctx, filter, limit)
}

// normalize は記録と判定で同じキーを使うためにidentityとoriginを正規化する。
func normalize(identity, origin string) (string, string) {
	return model.ClampIdentity(model.NormalizeIdentity(identity)), model.NormalizeOrigin(origin)
}

func (t *Throttle) blocked(reason, identity, origin string, count int) Decision {
	t.logger.Info("ログイン試行をブロックしました",
		slog.String("reason", reason),
		slog.String("identity", identity),
		slog.String("origin", origin),
		slog.Int("failures", count),
	)
	return Decision{Blocked: true, Reason: reason, RetryAfter: t.cfg.Window}
}

func (t *Throttle) unavailable(err error, identity, origin string) Decision {
	t.logger.Error("ログイン試行件数の取得に失敗しました",
		slog.String("identity", identity),
		slog.String("origin", origin),
		slog.String("error", err.Error()),
	)
	return Decision{Blocked: true, Reason: ReasonUnavailable, RetryAfter: time.Minute}
}

func (t *Throttle) record(result string) {
	if t.metrics != nil {
		t.metrics.RecordLoginAttempt(result)
	}
}
