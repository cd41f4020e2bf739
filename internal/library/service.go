// Package library はユーザーのコレクションへメディアを追加するドメインロジックを提供する。
// 追加は冪等で、同じメディアを同じコレクションへ何度追加しても所属は1件のみとなる。
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hitoshi/mediatech/internal/catalog"
	"github.com/hitoshi/mediatech/internal/model"
	"github.com/hitoshi/mediatech/internal/repository"
)

// ErrInvalidExternalID は外部IDが空の場合のエラー。
var ErrInvalidExternalID = errors.New("external id must not be empty")

// DetailsFetcher は外部カタログからメディア詳細を取得するインターフェース。
type DetailsFetcher interface {
	Fetch(ctx context.Context, kind model.MediaKind, externalID string) (*catalog.MediaDetails, error)
}

// Metrics はライブラリ追加の結果を記録するインターフェース。
type Metrics interface {
	RecordLibraryAdd(kind, result string)
}

// Service はライブラリ追加のサービス層。
type Service struct {
	collections repository.CollectionRepository
	books       repository.BookRepository
	movies      repository.MovieRepository
	fetcher     DetailsFetcher
	metrics     Metrics
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。metricsはnilでもよい。
func NewService(
	collections repository.CollectionRepository,
	books repository.BookRepository,
	movies repository.MovieRepository,
	fetcher DetailsFetcher,
	metrics Metrics,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		collections: collections,
		books:       books,
		movies:      movies,
		fetcher:     fetcher,
		metrics:     metrics,
		logger:      logger,
	}
}

// AddToDefaultCollection はメディアをユーザーのデフォルトコレクションへ追加する。
// 戻り値alreadyPresentは、既に所属していた場合（並行リクエストに先を越された場合を含む）にtrueとなる。
//
// 処理順序:
//  1. 種別と外部IDを検証する（副作用なし）
//  2. デフォルトコレクションを取得または作成する
//  3. メディアのキャッシュ行を取得し、なければ外部カタログから取得して作成する
//  4. 所属行を挿入する。一意制約違反は「既に所属」として扱う
func (s *Service) AddToDefaultCollection(ctx context.Context, userID string, kind model.MediaKind, externalID string) (bool, error) {
	externalID, err := validate(kind, externalID)
	if err != nil {
		return false, err
	}

	collection, err := s.collections.EnsureDefault(ctx, userID)
	if err != nil {
		s.record(kind, "error")
		return false, fmt.Errorf("デフォルトコレクションの取得に失敗しました: %w", err)
	}

	return s.attach(ctx, collection, kind, externalID)
}

// AddToCollection はメディアをユーザーが所有する任意のコレクションへ追加する。
// 他ユーザーのコレクションは存在しないものとして扱う。
func (s *Service) AddToCollection(ctx context.Context, userID, collectionID string, kind model.MediaKind, externalID string) (bool, error) {
	externalID, err := validate(kind, externalID)
	if err != nil {
		return false, err
	}

	collection, err := s.ownedCollection(ctx, userID, collectionID)
	if err != nil {
		return false, err
	}

	return s.attach(ctx, collection, kind, externalID)
}

// RemoveFromCollection はコレクションからメディアを外す。
// 所属していない場合も成功として扱う。
func (s *Service) RemoveFromCollection(ctx context.Context, userID, collectionID string, kind model.MediaKind, mediaID string) error {
	if !kind.Valid() {
		return model.ErrUnsupportedMediaKind
	}

	collection, err := s.ownedCollection(ctx, userID, collectionID)
	if err != nil {
		return err
	}

	// UUID形式でないIDのメディアはコレクションに所属し得ない
	parsed, err := uuid.Parse(mediaID)
	if err != nil {
		return nil
	}
	mediaID = parsed.String()

	var removed bool
	switch kind {
	case model.MediaKindBook:
		removed, err = s.collections.RemoveBook(ctx, collection.ID, mediaID)
	case model.MediaKindMovie:
		removed, err = s.collections.RemoveMovie(ctx, collection.ID, mediaID)
	}
	if err != nil {
		return fmt.Errorf("コレクションからの削除に失敗しました: %w", err)
	}

	s.logger.Info("コレクションからメディアを削除しました",
		slog.String("user_id", userID),
		slog.String("collection_id", collection.ID),
		slog.String("kind", string(kind)),
		slog.String("media_id", mediaID),
		slog.Bool("removed", removed),
	)
	return nil
}

func validate(kind model.MediaKind, externalID string) (string, error) {
	if !kind.Valid() {
		return "", model.ErrUnsupportedMediaKind
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return "", ErrInvalidExternalID
	}
	return externalID, nil
}

func (s *Service) ownedCollection(ctx context.Context, userID, collectionID string) (*model.Collection, error) {
	collection, err := s.collections.FindByID(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("コレクションの取得に失敗しました: %w", err)
	}
	if collection == nil || collection.UserID != userID {
		return nil, model.NewCollectionNotFoundError(collectionID)
	}
	return collection, nil
}

// attach はメディアを解決し、コレクションへの所属行を作成する。
func (s *Service) attach(ctx context.Context, collection *model.Collection, kind model.MediaKind, externalID string) (bool, error) {
	var (
		result repository.InsertResult
		err    error
	)
	switch kind {
	case model.MediaKindBook:
		var book *model.Book
		book, err = s.resolveBook(ctx, externalID)
		if err == nil {
			result, err = s.collections.AddBook(ctx, collection.ID, book.ID)
		}
	case model.MediaKindMovie:
		var movie *model.Movie
		movie, err = s.resolveMovie(ctx, externalID)
		if err == nil {
			result, err = s.collections.AddMovie(ctx, collection.ID, movie.ID)
		}
	}
	if err != nil {
		s.record(kind, "error")
		return false, err
	}

	alreadyPresent := result == repository.InsertAlreadyExists
	if alreadyPresent {
		s.record(kind, "already_present")
	} else {
		s.record(kind, "created")
	}

	s.logger.Info("コレクションにメディアを追加しました",
		slog.String("user_id", collection.UserID),
		slog.String("collection_id", collection.ID),
		slog.String("kind", string(kind)),
		slog.String("external_id", externalID),
		slog.Bool("already_present", alreadyPresent),
	)
	return alreadyPresent, nil
}

func (s *Service) resolveBook(ctx context.Context, externalID string) (*model.Book, error) {
	book, err := s.books.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("書籍の取得に失敗しました: %w", err)
	}
	if book != nil {
		return book, nil
	}

	details, err := s.fetcher.Fetch(ctx, model.MediaKindBook, externalID)
	if err != nil {
		return nil, fmt.Errorf("書籍情報の取得に失敗しました: %w", err)
	}
	record := details.Book()
	record.ExternalID = externalID

	book, err = s.books.CreateIfAbsent(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("書籍の保存に失敗しました: %w", err)
	}
	return book, nil
}

func (s *Service) resolveMovie(ctx context.Context, externalID string) (*model.Movie, error) {
	movie, err := s.movies.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("映画の取得に失敗しました: %w", err)
	}
	if movie != nil {
		return movie, nil
	}

	details, err := s.fetcher.Fetch(ctx, model.MediaKindMovie, externalID)
	if err != nil {
		return nil, fmt.Errorf("映画情報の取得に失敗しました: %w", err)
	}
	record := details.Movie()
	record.ExternalID = externalID

	movie, err = s.movies.CreateIfAbsent(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("映画の保存に失敗しました: %w", err)
	}
	return movie, nil
}

func (s *Service) record(kind model.MediaKind, result string) {
	if s.metrics != nil {
		s.metrics.RecordLibraryAdd(string(kind), result)
	}
}
