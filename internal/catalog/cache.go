package catalog

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hitoshi/mediatech/internal/model"
)

// CachedSearcher はRegistry経由のカタログ検索結果をTTL付きLRUでキャッシュする。
// 詳細取得はキャッシュせずにRegistryへ委譲する。
type CachedSearcher struct {
	registry *Registry
	cache    *expirable.LRU[string, []MediaDetails]
	metrics  Metrics
}

// NewCachedSearcher は最大size件、有効期間ttlの検索キャッシュを生成する。
func NewCachedSearcher(registry *Registry, size int, ttl time.Duration, metrics Metrics) *CachedSearcher {
	return &CachedSearcher{
		registry: registry,
		cache:    expirable.NewLRU[string, []MediaDetails](size, nil, ttl),
		metrics:  metrics,
	}
}

func searchKey(kind model.MediaKind, query string, page int) string {
	return string(kind) + "|" + strings.ToLower(strings.TrimSpace(query)) + "|" + strconv.Itoa(page)
}

// Search は種別に対応するカタログを検索する。同じ条件の結果はTTLの間キャッシュから返す。
// 失敗した検索結果はキャッシュしない。
func (c *CachedSearcher) Search(ctx context.Context, kind model.MediaKind, query string, page int) ([]MediaDetails, error) {
	if page < 1 {
		page = 1
	}
	key := searchKey(kind, query, page)

	if cached, ok := c.cache.Get(key); ok {
		c.recordCache(true)
		return cached, nil
	}
	c.recordCache(false)

	src, err := c.registry.Source(kind)
	if err != nil {
		return nil, err
	}
	results, err := src.Search(ctx, strings.TrimSpace(query), page)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, results)
	return results, nil
}

// Fetch は種別に対応するカタログからメディア詳細を取得する。
func (c *CachedSearcher) Fetch(ctx context.Context, kind model.MediaKind, externalID string) (*MediaDetails, error) {
	return c.registry.Fetch(ctx, kind, externalID)
}

// Len はキャッシュ中のエントリ数を返す。
func (c *CachedSearcher) Len() int {
	return c.cache.Len()
}

func (c *CachedSearcher) recordCache(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCatalogCache(hit)
	}
}
