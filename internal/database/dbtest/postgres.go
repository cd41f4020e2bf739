// Package dbtest はPostgreSQLを使う結合テストの共通ヘルパーを提供する。
// テストコードからのみ利用する。
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	image    = "docker.io/postgres:17-alpine"
	dbName   = "mediatech_test"
	username = "mediatech"
	password = "test-password"
)

// StartPostgres はtestcontainersでPostgreSQLコンテナを起動し、接続URLと*sql.DBを返す。
// 環境変数 TEST_INTEGRATION が未設定の場合はテストをスキップする。
// TEST_DATABASE_URL が設定されていればコンテナを起動せずにそのDBを使用する。
// コンテナとDB接続はt.Cleanupで破棄される。
func StartPostgres(t *testing.T) (*sql.DB, string) {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("結合テストをスキップ: TEST_INTEGRATION が設定されていません")
	}

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = startContainer(t)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Fatalf("データベースへのPingに失敗: %v", err)
	}

	return db, dbURL
}

func startContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		image,
		postgres.WithDatabase(dbName),
		postgres.WithUsername(username),
		postgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("PostgreSQLコンテナの起動に失敗: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("コンテナの停止に失敗: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("コンテナのホスト取得に失敗: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("コンテナのポート取得に失敗: %v", err)
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", username, password, host, port.Port(), dbName)
}

// ResetSchema は全テーブルとマイグレーション履歴を削除する。
// TEST_DATABASE_URL で共有DBを使う場合に、テスト間の状態を初期化するために使用する。
func ResetSchema(t *testing.T, db *sql.DB) {
	t.Helper()

	const cleanupSQL = `
		DROP TABLE IF EXISTS login_attempts CASCADE;
		DROP TABLE IF EXISTS collection_comments CASCADE;
		DROP TABLE IF EXISTS collection_ratings CASCADE;
		DROP TABLE IF EXISTS collection_movies CASCADE;
		DROP TABLE IF EXISTS collection_books CASCADE;
		DROP TABLE IF EXISTS collections CASCADE;
		DROP TABLE IF EXISTS movies CASCADE;
		DROP TABLE IF EXISTS books CASCADE;
		DROP TABLE IF EXISTS sessions CASCADE;
		DROP TABLE IF EXISTS users CASCADE;
		DROP TABLE IF EXISTS schema_migrations CASCADE;
	`
	if _, err := db.Exec(cleanupSQL); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}
}
