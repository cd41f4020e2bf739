// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"strings"
	"time"
)

// MediaKind は外部カタログ上のメディア種別を表す。
type MediaKind string

const (
	// MediaKindBook は書籍（Google Books）を表す。
	MediaKindBook MediaKind = "book"
	// MediaKindMovie は映画（TMDb）を表す。
	MediaKindMovie MediaKind = "movie"
)

// ErrUnsupportedMediaKind はbook/movie以外の種別が指定された場合のエラー。
var ErrUnsupportedMediaKind = errors.New("unsupported media kind")

// ParseMediaKind は文字列をMediaKindに変換する。
// 大文字小文字と前後の空白は無視する。
func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(s))) {
	case MediaKindBook:
		return MediaKindBook, nil
	case MediaKindMovie:
		return MediaKindMovie, nil
	default:
		return "", ErrUnsupportedMediaKind
	}
}

// Valid はMediaKindがサポート対象かどうかを返す。
func (k MediaKind) Valid() bool {
	return k == MediaKindBook || k == MediaKindMovie
}

// Book は外部カタログ（Google Books）から取得した書籍のローカルキャッシュ。
// ExternalIDは一意で、作成後に削除されることはない。
type Book struct {
	ID            string
	ExternalID    string
	Title         string
	Authors       string
	Description   string
	CoverURL      string
	PublishedDate string
	PageCount     int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Movie は外部カタログ（TMDb）から取得した映画のローカルキャッシュ。
type Movie struct {
	ID             string
	ExternalID     string
	Title          string
	Director       string
	Overview       string
	PosterURL      string
	ReleaseDate    string
	RuntimeMinutes int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
