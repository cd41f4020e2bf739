package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/mediatech/internal/model"
)

// PostgresCollectionRepo はPostgreSQLを使用したコレクションリポジトリ。
type PostgresCollectionRepo struct {
	db *sql.DB
}

// NewPostgresCollectionRepo はPostgresCollectionRepoを生成する。
func NewPostgresCollectionRepo(db *sql.DB) *PostgresCollectionRepo {
	return &PostgresCollectionRepo{db: db}
}

const collectionColumns = `c.id, c.user_id, c.name, c.description, c.visibility, c.scope, c.created_at, c.updated_at`

func scanCollection(row interface{ Scan(...any) error }) (*model.Collection, error) {
	c := &model.Collection{}
	var visibility, scope string
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &visibility, &scope, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Visibility = model.Visibility(visibility)
	c.Scope = model.Scope(scope)
	return c, nil
}

// EnsureDefault はユーザーのデフォルトコレクションを取得し、存在しなければ作成する。
// 部分ユニークインデックス (user_id) WHERE scope = 'system' により、
// 並行呼び出しでも作成されるのは1件のみとなる。
func (r *PostgresCollectionRepo) EnsureDefault(ctx context.Context, userID string) (*model.Collection, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collections (id, user_id, name, visibility, scope)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) WHERE scope = 'system' DO NOTHING`,
		uuid.New().String(), userID, model.DefaultCollectionName,
		string(model.VisibilityPrivate), string(model.ScopeSystem),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert default collection: %w", err)
	}

	c, err := scanCollection(r.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections c WHERE c.user_id = $1 AND c.scope = 'system'`,
		userID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find default collection: %w", err)
	}
	return c, nil
}

// FindByID は指定IDのコレクションを取得する。見つからない場合はnilを返す。
func (r *PostgresCollectionRepo) FindByID(ctx context.Context, id string) (*model.Collection, error) {
	c, err := scanCollection(r.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections c WHERE c.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find collection: %w", err)
	}
	return c, nil
}

const summarySelect = `SELECT ` + collectionColumns + `,
	u.name,
	(SELECT count(*) FROM collection_books cb WHERE cb.collection_id = c.id),
	(SELECT count(*) FROM collection_movies cm WHERE cm.collection_id = c.id),
	COALESCE((SELECT avg(cr.score)::float8 FROM collection_ratings cr WHERE cr.collection_id = c.id), 0),
	(SELECT count(*) FROM collection_ratings cr WHERE cr.collection_id = c.id)
	FROM collections c
	JOIN users u ON u.id = c.user_id`

func (r *PostgresCollectionRepo) querySummaries(ctx context.Context, query string, args ...any) ([]CollectionSummary, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var result []CollectionSummary
	for rows.Next() {
		var s CollectionSummary
		var visibility, scope string
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Name, &s.Description, &visibility, &scope, &s.CreatedAt, &s.UpdatedAt,
			&s.OwnerName, &s.BookCount, &s.MovieCount, &s.AverageScore, &s.RatingCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		s.Visibility = model.Visibility(visibility)
		s.Scope = model.Scope(scope)
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collections: %w", err)
	}
	return result, nil
}

// ListByUserID はユーザーのコレクション一覧を返す。デフォルトコレクションを先頭にする。
func (r *PostgresCollectionRepo) ListByUserID(ctx context.Context, userID string) ([]CollectionSummary, error) {
	return r.querySummaries(ctx,
		summarySelect+` WHERE c.user_id = $1 ORDER BY (c.scope = 'system') DESC, c.created_at ASC`,
		userID,
	)
}

// ListPublic は公開コレクションを新しい順で返す。
func (r *PostgresCollectionRepo) ListPublic(ctx context.Context, limit, offset int) ([]CollectionSummary, error) {
	return r.querySummaries(ctx,
		summarySelect+` WHERE c.visibility = 'public' ORDER BY c.created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
}

// Create はユーザースコープのコレクションを作成する。
func (r *PostgresCollectionRepo) Create(ctx context.Context, collection *model.Collection) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collections (id, user_id, name, description, visibility, scope, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		collection.ID, collection.UserID, collection.Name, collection.Description,
		string(collection.Visibility), string(model.ScopeUser), collection.CreatedAt, collection.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Update はコレクションの名前・説明・公開範囲を更新する。
func (r *PostgresCollectionRepo) Update(ctx context.Context, collection *model.Collection) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE collections SET name = $2, description = $3, visibility = $4, updated_at = $5
		 WHERE id = $1`,
		collection.ID, collection.Name, collection.Description, string(collection.Visibility), collection.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update collection: %w", err)
	}
	return nil
}

// Delete は指定IDのコレクションを削除する。
func (r *PostgresCollectionRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// AddBook はコレクションに書籍を追加する。
// 事前の存在確認は行わず、UNIQUE(collection_id, book_id)違反をInsertAlreadyExistsとして扱う。
func (r *PostgresCollectionRepo) AddBook(ctx context.Context, collectionID, bookID string) (InsertResult, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collection_books (id, collection_id, book_id) VALUES ($1, $2, $3)`,
		uuid.New().String(), collectionID, bookID,
	)
	if isUniqueViolation(err) {
		return InsertAlreadyExists, nil
	}
	if err != nil {
		return InsertCreated, fmt.Errorf("failed to add book to collection: %w", err)
	}
	return InsertCreated, nil
}

// AddMovie はコレクションに映画を追加する。
// UNIQUE(collection_id, movie_id)違反をInsertAlreadyExistsとして扱う。
func (r *PostgresCollectionRepo) AddMovie(ctx context.Context, collectionID, movieID string) (InsertResult, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collection_movies (id, collection_id, movie_id) VALUES ($1, $2, $3)`,
		uuid.New().String(), collectionID, movieID,
	)
	if isUniqueViolation(err) {
		return InsertAlreadyExists, nil
	}
	if err != nil {
		return InsertCreated, fmt.Errorf("failed to add movie to collection: %w", err)
	}
	return InsertCreated, nil
}

// RemoveBook はコレクションから書籍を外す。所属していなかった場合はfalseを返す。
func (r *PostgresCollectionRepo) RemoveBook(ctx context.Context, collectionID, bookID string) (bool, error) {
	return r.removeMember(ctx,
		`DELETE FROM collection_books WHERE collection_id = $1 AND book_id = $2`,
		collectionID, bookID,
	)
}

// RemoveMovie はコレクションから映画を外す。所属していなかった場合はfalseを返す。
func (r *PostgresCollectionRepo) RemoveMovie(ctx context.Context, collectionID, movieID string) (bool, error) {
	return r.removeMember(ctx,
		`DELETE FROM collection_movies WHERE collection_id = $1 AND movie_id = $2`,
		collectionID, movieID,
	)
}

func (r *PostgresCollectionRepo) removeMember(ctx context.Context, query, collectionID, mediaID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, collectionID, mediaID)
	if err != nil {
		return false, fmt.Errorf("failed to remove collection member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListBooks はコレクションに所属する書籍を追加日時順で返す。
func (r *PostgresCollectionRepo) ListBooks(ctx context.Context, collectionID string) ([]*model.Book, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.id, b.external_id, b.title, b.authors, b.description, b.cover_url,
		        b.published_date, b.page_count, b.created_at, b.updated_at
		 FROM collection_books cb
		 JOIN books b ON b.id = cb.book_id
		 WHERE cb.collection_id = $1
		 ORDER BY cb.added_at ASC`,
		collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection books: %w", err)
	}
	defer rows.Close()

	var books []*model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate books: %w", err)
	}
	return books, nil
}

// ListMovies はコレクションに所属する映画を追加日時順で返す。
func (r *PostgresCollectionRepo) ListMovies(ctx context.Context, collectionID string) ([]*model.Movie, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.external_id, m.title, m.director, m.overview, m.poster_url,
		        m.release_date, m.runtime_minutes, m.created_at, m.updated_at
		 FROM collection_movies cm
		 JOIN movies m ON m.id = cm.movie_id
		 WHERE cm.collection_id = $1
		 ORDER BY cm.added_at ASC`,
		collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection movies: %w", err)
	}
	defer rows.Close()

	var movies []*model.Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movie: %w", err)
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate movies: %w", err)
	}
	return movies, nil
}

// compile-time interface check
var _ CollectionRepository = (*PostgresCollectionRepo)(nil)
