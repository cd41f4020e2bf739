package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSettings はサーキットブレーカーの設定。
type BreakerSettings struct {
	MaxRequests         uint32        // half-open状態で許可する同時リクエスト数
	Interval            time.Duration // closed状態でカウントをリセットする間隔
	Timeout             time.Duration // openからhalf-openへ移行するまでの待機時間
	ConsecutiveFailures uint32        // openに移行する連続失敗回数
}

// DefaultBreakerSettings はカタログ呼び出し用の既定設定を返す。
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:         2,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// BreakerSource はSourceをサーキットブレーカーで保護する。
// ErrNotFoundとキャンセルは失敗として数えない。
type BreakerSource struct {
	src Source
	cb  *gobreaker.CircuitBreaker[any]
}

// NewBreakerSource はSourceをサーキットブレーカーでラップする。
func NewBreakerSource(src Source, settings BreakerSettings, metrics Metrics, logger *slog.Logger) *BreakerSource {
	if logger == nil {
		logger = slog.Default()
	}
	name := src.Name()
	if metrics != nil {
		metrics.SetCatalogBreakerState(name, stateToFloat(gobreaker.StateClosed))
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("source", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if metrics != nil {
				metrics.SetCatalogBreakerState(name, stateToFloat(to))
			}
		},
	})

	return &BreakerSource{src: src, cb: cb}
}

// Name はラップ対象のカタログ名を返す。
func (b *BreakerSource) Name() string { return b.src.Name() }

// State は現在のブレーカー状態を返す。
func (b *BreakerSource) State() gobreaker.State { return b.cb.State() }

// Fetch はサーキットブレーカー経由でメディア詳細を取得する。
func (b *BreakerSource) Fetch(ctx context.Context, externalID string) (*MediaDetails, error) {
	result, err := b.execute(func() (any, error) {
		return b.src.Fetch(ctx, externalID)
	})
	if err != nil {
		return nil, err
	}
	details, ok := result.(*MediaDetails)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return details, nil
}

// Search はサーキットブレーカー経由で検索する。
func (b *BreakerSource) Search(ctx context.Context, query string, page int) ([]MediaDetails, error) {
	result, err := b.execute(func() (any, error) {
		return b.src.Search(ctx, query, page)
	})
	if err != nil {
		return nil, err
	}
	list, ok := result.([]MediaDetails)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return list, nil
}

func (b *BreakerSource) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, b.src.Name(), err)
	}
	return result, err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// compile-time interface check
var _ Source = (*BreakerSource)(nil)
