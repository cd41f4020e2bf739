// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/mediatech/internal/model"
)

// InsertResult は一意制約付きINSERTの結果を表す。
// 一意制約違反はエラーではなくInsertAlreadyExistsとして返す。
type InsertResult int

const (
	// InsertCreated は新しい行が作成されたことを表す。
	InsertCreated InsertResult = iota
	// InsertAlreadyExists は同じキーの行が既に存在したことを表す。
	InsertAlreadyExists
)

// String はログ出力用の文字列表現を返す。
func (r InsertResult) String() string {
	if r == InsertAlreadyExists {
		return "already_exists"
	}
	return "created"
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は正規化済みメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はInsertAlreadyExistsを返す。
	Create(ctx context.Context, user *model.User) (InsertResult, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// コレクション、評価、コメント、セッションはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired はnow時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// BookRepository は書籍キャッシュの永続化インターフェース。
type BookRepository interface {
	// FindByID は指定IDの書籍を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Book, error)

	// FindByExternalID は外部IDで書籍を取得する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.Book, error)

	// CreateIfAbsent は書籍を作成する。同じ外部IDの行が既に存在する場合はその行を返す。
	// 並行して作成された場合も全員が同じ行を受け取る。
	CreateIfAbsent(ctx context.Context, book *model.Book) (*model.Book, error)
}

// MovieRepository は映画キャッシュの永続化インターフェース。
type MovieRepository interface {
	// FindByID は指定IDの映画を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Movie, error)

	// FindByExternalID は外部IDで映画を取得する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.Movie, error)

	// CreateIfAbsent は映画を作成する。同じ外部IDの行が既に存在する場合はその行を返す。
	CreateIfAbsent(ctx context.Context, movie *model.Movie) (*model.Movie, error)
}

// CollectionRepository はコレクションと所属メディアの永続化インターフェース。
type CollectionRepository interface {
	// EnsureDefault はユーザーのデフォルトコレクションを取得し、存在しなければ作成する。
	// 並行呼び出しでもユーザーごとに1件しか作成されない。
	EnsureDefault(ctx context.Context, userID string) (*model.Collection, error)

	// FindByID は指定IDのコレクションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Collection, error)

	// ListByUserID はユーザーのコレクション一覧を作成日時順で返す。
	ListByUserID(ctx context.Context, userID string) ([]CollectionSummary, error)

	// ListPublic は公開コレクションを新しい順で返す。
	ListPublic(ctx context.Context, limit, offset int) ([]CollectionSummary, error)

	// Create はユーザースコープのコレクションを作成する。
	Create(ctx context.Context, collection *model.Collection) error

	// Update はコレクションの名前・説明・公開範囲を更新する。
	Update(ctx context.Context, collection *model.Collection) error

	// Delete は指定IDのコレクションを削除する。所属・評価・コメントはCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// AddBook はコレクションに書籍を追加する。既に所属している場合はInsertAlreadyExistsを返す。
	AddBook(ctx context.Context, collectionID, bookID string) (InsertResult, error)

	// AddMovie はコレクションに映画を追加する。既に所属している場合はInsertAlreadyExistsを返す。
	AddMovie(ctx context.Context, collectionID, movieID string) (InsertResult, error)

	// RemoveBook はコレクションから書籍を外す。所属していなかった場合はfalseを返す。
	RemoveBook(ctx context.Context, collectionID, bookID string) (bool, error)

	// RemoveMovie はコレクションから映画を外す。所属していなかった場合はfalseを返す。
	RemoveMovie(ctx context.Context, collectionID, movieID string) (bool, error)

	// ListBooks はコレクションに所属する書籍を追加日時順で返す。
	ListBooks(ctx context.Context, collectionID string) ([]*model.Book, error)

	// ListMovies はコレクションに所属する映画を追加日時順で返す。
	ListMovies(ctx context.Context, collectionID string) ([]*model.Movie, error)
}

// RatingRepository はコレクション評価の永続化インターフェース。
type RatingRepository interface {
	// Upsert は(コレクション, ユーザー)ごとの評価を作成または更新する。
	Upsert(ctx context.Context, rating *model.CollectionRating) error

	// Summary はコレクションの平均評価と評価件数を返す。評価がない場合は0, 0を返す。
	Summary(ctx context.Context, collectionID string) (float64, int, error)
}

// CommentRepository はコレクションコメントの永続化インターフェース。
type CommentRepository interface {
	// Create はコメントを作成する。
	Create(ctx context.Context, comment *model.CollectionComment) error

	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.CollectionComment, error)

	// ListByCollection はコレクションのコメントを投稿日時順で返す。投稿者名を含む。
	ListByCollection(ctx context.Context, collectionID string) ([]*model.CollectionComment, error)

	// DeleteByID は指定IDのコメントを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// LoginAttemptRepository はログイン試行記録の永続化インターフェース。
// 記録は追記のみで、保持期間を過ぎたものだけが削除される。
type LoginAttemptRepository interface {
	// Insert は試行記録を1件追加する。
	Insert(ctx context.Context, attempt *model.LoginAttempt) error

	// CountFailuresByIdentitySince はsinceより後に記録された指定IDの失敗件数を返す。
	CountFailuresByIdentitySince(ctx context.Context, identity string, since time.Time) (int, error)

	// CountFailuresByOriginSince はsinceより後に記録された指定送信元の失敗件数を返す。
	CountFailuresByOriginSince(ctx context.Context, origin string, since time.Time) (int, error)

	// DeleteOlderThan はcutoffより前の記録を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// ListRecent は新しい順に最大limit件の記録を返す。filterの空フィールドは条件に含めない。
	ListRecent(ctx context.Context, filter LoginAttemptFilter, limit int) ([]*model.LoginAttempt, error)
}

// LoginAttemptFilter は試行記録一覧の絞り込み条件。
type LoginAttemptFilter struct {
	Identity string
	Origin   string
}

// CollectionSummary はコレクションと一覧表示用の集計値を結合した構造体。
type CollectionSummary struct {
	model.Collection
	OwnerName    string
	BookCount    int
	MovieCount   int
	AverageScore float64
	RatingCount  int
}
