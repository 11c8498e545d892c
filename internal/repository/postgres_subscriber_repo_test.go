package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/hitoshi/leadbox/internal/database"
	"github.com/hitoshi/leadbox/internal/model"
)

// setupPostgresRepo はTEST_DATABASE_URLが設定されている場合のみリポジトリを返す。
func setupPostgresRepo(t *testing.T) *PostgresSubscriberRepo {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE subscribers`); err != nil {
		t.Fatalf("TRUNCATEに失敗: %v", err)
	}

	return NewPostgresSubscriberRepo(db)
}

func TestNewPostgresSubscriberRepo_Initializes(t *testing.T) {
	if NewPostgresSubscriberRepo(nil) == nil {
		t.Fatal("expected non-nil repo")
	}
}

func TestPostgresSubscriberRepo_AppendExistsAndDuplicate(t *testing.T) {
	repo := setupPostgresRepo(t)
	ctx := context.Background()

	if err := repo.Append(ctx, newSubscriber("Frank@Example.com", "landing", model.ForwardStatusSuccess)); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	exists, err := repo.Exists(ctx, "frank@example.com")
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	if !exists {
		t.Error("Exists = false after Append")
	}

	err = repo.Append(ctx, newSubscriber("FRANK@example.com", "landing", model.ForwardStatusSuccess))
	if !errors.Is(err, ErrDuplicateSubscriber) {
		t.Errorf("err = %v, want ErrDuplicateSubscriber", err)
	}
}

func TestPostgresSubscriberRepo_ListAndStats(t *testing.T) {
	repo := setupPostgresRepo(t)
	ctx := context.Background()

	repo.Append(ctx, newSubscriber("a1@example.com", "a", model.ForwardStatusSuccess))
	repo.Append(ctx, newSubscriber("a2@example.com", "a", model.ForwardStatusError))
	repo.Append(ctx, newSubscriber("b1@example.com", "b", model.ForwardStatusSuccess))

	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(ListAll) = %d, want 3", len(all))
	}

	bySource, err := repo.ListBySource(ctx, "a")
	if err != nil {
		t.Fatalf("ListBySource returned error: %v", err)
	}
	if len(bySource) != 2 {
		t.Errorf("len(ListBySource(a)) = %d, want 2", len(bySource))
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	want := model.ConvertKitCounts{Success: 2, Error: 1, Pending: 0}
	if stats.Total != 3 || stats.BySource["a"] != 2 || stats.BySource["b"] != 1 || stats.ConvertKit != want {
		t.Errorf("stats = %+v", stats)
	}
}
