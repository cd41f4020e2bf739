package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/mediatech/internal/model"
)

// PostgresBookRepo はPostgreSQLを使用した書籍キャッシュリポジトリ。
type PostgresBookRepo struct {
	db *sql.DB
}

// NewPostgresBookRepo はPostgresBookRepoを生成する。
func NewPostgresBookRepo(db *sql.DB) *PostgresBookRepo {
	return &PostgresBookRepo{db: db}
}

const bookColumns = `id, external_id, title, authors, description, cover_url, published_date, page_count, created_at, updated_at`

func scanBook(row interface{ Scan(...any) error }) (*model.Book, error) {
	b := &model.Book{}
	err := row.Scan(&b.ID, &b.ExternalID, &b.Title, &b.Authors, &b.Description,
		&b.CoverURL, &b.PublishedDate, &b.PageCount, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// FindByID は指定IDの書籍を取得する。見つからない場合はnilを返す。
func (r *PostgresBookRepo) FindByID(ctx context.Context, id string) (*model.Book, error) {
	b, err := scanBook(r.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find book by ID: %w", err)
	}
	return b, nil
}

// FindByExternalID は外部IDで書籍を取得する。見つからない場合はnilを返す。
func (r *PostgresBookRepo) FindByExternalID(ctx context.Context, externalID string) (*model.Book, error) {
	b, err := scanBook(r.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE external_id = $1`, externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find book by external ID: %w", err)
	}
	return b, nil
}

// CreateIfAbsent は書籍を作成する。同じ外部IDの行が既に存在する場合はその行を返す。
// ON CONFLICT DO NOTHINGで競合を吸収し、挿入されなかった場合は既存行を読み直す。
func (r *PostgresBookRepo) CreateIfAbsent(ctx context.Context, book *model.Book) (*model.Book, error) {
	if book.ID == "" {
		book.ID = uuid.New().String()
	}

	created, err := scanBook(r.db.QueryRowContext(ctx,
		`INSERT INTO books (id, external_id, title, authors, description, cover_url, published_date, page_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (external_id) DO NOTHING
		 RETURNING `+bookColumns,
		book.ID, book.ExternalID, book.Title, book.Authors, book.Description,
		book.CoverURL, book.PublishedDate, book.PageCount,
	))
	if err == nil {
		return created, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to insert book: %w", err)
	}

	existing, err := r.FindByExternalID(ctx, book.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("book vanished after conflict: %s", book.ExternalID)
	}
	return existing, nil
}

// PostgresMovieRepo はPostgreSQLを使用した映画キャッシュリポジトリ。
type PostgresMovieRepo struct {
	db *sql.DB
}

// NewPostgresMovieRepo はPostgresMovieRepoを生成する。
func NewPostgresMovieRepo(db *sql.DB) *PostgresMovieRepo {
	return &PostgresMovieRepo{db: db}
}

const movieColumns = `id, external_id, title, director, overview, poster_url, release_date, runtime_minutes, created_at, updated_at`

func scanMovie(row interface{ Scan(...any) error }) (*model.Movie, error) {
	m := &model.Movie{}
	err := row.Scan(&m.ID, &m.ExternalID, &m.Title, &m.Director, &m.Overview,
		&m.PosterURL, &m.ReleaseDate, &m.RuntimeMinutes, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// FindByID は指定IDの映画を取得する。見つからない場合はnilを返す。
func (r *PostgresMovieRepo) FindByID(ctx context.Context, id string) (*model.Movie, error) {
	m, err := scanMovie(r.db.QueryRowContext(ctx, `SELECT `+movieColumns+` FROM movies WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find movie by ID: %w", err)
	}
	return m, nil
}

// FindByExternalID は外部IDで映画を取得する。見つからない場合はnilを返す。
func (r *PostgresMovieRepo) FindByExternalID(ctx context.Context, externalID string) (*model.Movie, error) {
	m, err := scanMovie(r.db.QueryRowContext(ctx, `SELECT `+movieColumns+` FROM movies WHERE external_id = $1`, externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find movie by external ID: %w", err)
	}
	return m, nil
}

// CreateIfAbsent は映画を作成する。同じ外部IDの行が既に存在する場合はその行を返す。
func (r *PostgresMovieRepo) CreateIfAbsent(ctx context.Context, movie *model.Movie) (*model.Movie, error) {
	if movie.ID == "" {
		movie.ID = uuid.New().String()
	}

	created, err := scanMovie(r.db.QueryRowContext(ctx,
		`INSERT INTO movies (id, external_id, title, director, overview, poster_url, release_date, runtime_minutes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (external_id) DO NOTHING
		 RETURNING `+movieColumns,
		movie.ID, movie.ExternalID, movie.Title, movie.Director, movie.Overview,
		movie.PosterURL, movie.ReleaseDate, movie.RuntimeMinutes,
	))
	if err == nil {
		return created, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to insert movie: %w", err)
	}

	existing, err := r.FindByExternalID(ctx, movie.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("movie vanished after conflict: %s", movie.ExternalID)
	}
	return existing, nil
}

// compile-time interface check
var (
	_ BookRepository  = (*PostgresBookRepo)(nil)
	_ MovieRepository = (*PostgresMovieRepo)(nil)
)
