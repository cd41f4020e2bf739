// Package catalog は外部メディアカタログ（Google Books, TMDb）へのアクセスを提供する。
// 各カタログはSourceとして抽象化され、サーキットブレーカーと検索結果キャッシュで保護される。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/mediatech/internal/model"
)

var (
	// ErrNotFound は外部カタログに指定IDのメディアが存在しない場合のエラー。
	ErrNotFound = errors.New("catalog: media not found")
	// ErrUnavailable は外部カタログへのアクセスに失敗した場合のエラー。
	// タイムアウト、5xx応答、不正な応答、サーキットオープンを含む。
	ErrUnavailable = errors.New("catalog: source unavailable")
)

// MediaDetails は外部カタログから取得したメディアの詳細。
// 書籍と映画で共通の形を持ち、存在しない項目はゼロ値となる。
type MediaDetails struct {
	ExternalID  string `json:"external_id"`
	Title       string `json:"title"`
	Creator     string `json:"creator"`      // 著者（カンマ区切り）または監督
	Synopsis    string `json:"synopsis"`     // プレーンテキスト
	ImageURL    string `json:"image_url"`    // 表紙またはポスター
	ReleaseDate string `json:"release_date"` // 出版日または公開日（カタログの表記のまま）
	Length      int    `json:"length"`       // ページ数または上映時間（分）
}

// Book はMediaDetailsから書籍キャッシュ行を組み立てる。
func (d *MediaDetails) Book() *model.Book {
	return &model.Book{
		ExternalID:    d.ExternalID,
		Title:         d.Title,
		Authors:       d.Creator,
		Description:   d.Synopsis,
		CoverURL:      d.ImageURL,
		PublishedDate: d.ReleaseDate,
		PageCount:     d.Length,
	}
}

// Movie はMediaDetailsから映画キャッシュ行を組み立てる。
func (d *MediaDetails) Movie() *model.Movie {
	return &model.Movie{
		ExternalID:     d.ExternalID,
		Title:          d.Title,
		Director:       d.Creator,
		Overview:       d.Synopsis,
		PosterURL:      d.ImageURL,
		ReleaseDate:    d.ReleaseDate,
		RuntimeMinutes: d.Length,
	}
}

// Source は1つの外部カタログを表す。
type Source interface {
	// Name はメトリクスとログに使うカタログ名を返す。
	Name() string
	// Fetch は外部IDでメディア詳細を取得する。
	// 存在しない場合はErrNotFound、通信失敗時はErrUnavailableをラップしたエラーを返す。
	Fetch(ctx context.Context, externalID string) (*MediaDetails, error)
	// Search はキーワード検索を行う。pageは1始まり。
	Search(ctx context.Context, query string, page int) ([]MediaDetails, error)
}

// Metrics はカタログ層が記録するメトリクスのインターフェース。
type Metrics interface {
	ObserveCatalogRequest(source string, duration time.Duration)
	RecordCatalogFailure(source, reason string)
	SetCatalogBreakerState(source string, state float64)
	RecordCatalogCache(hit bool)
}

// Registry はメディア種別と外部カタログの対応を保持する。
type Registry struct {
	sources map[model.MediaKind]Source
}

// NewRegistry は書籍・映画それぞれのSourceを登録したRegistryを生成する。
func NewRegistry(books, movies Source) *Registry {
	return &Registry{
		sources: map[model.MediaKind]Source{
			model.MediaKindBook:  books,
			model.MediaKindMovie: movies,
		},
	}
}

// Source は種別に対応するSourceを返す。
func (r *Registry) Source(kind model.MediaKind) (Source, error) {
	src, ok := r.sources[kind]
	if !ok || src == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedMediaKind, kind)
	}
	return src, nil
}

// Fetch は種別に対応するSourceからメディア詳細を取得する。
func (r *Registry) Fetch(ctx context.Context, kind model.MediaKind, externalID string) (*MediaDetails, error) {
	src, err := r.Source(kind)
	if err != nil {
		return nil, err
	}
	return src.Fetch(ctx, externalID)
}
