package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/leadbox/internal/config"
	"github.com/hitoshi/leadbox/internal/database"
	"github.com/hitoshi/leadbox/internal/handler"
	"github.com/hitoshi/leadbox/internal/kv"
	"github.com/hitoshi/leadbox/internal/repository"
)

// backendConnectTimeout は起動時のバックエンド疎通確認の最大待ち時間。
const backendConnectTimeout = 5 * time.Second

// Backend は構成済みのストレージと、その疎通確認・後始末をまとめたもの。
// STORAGE_BACKENDが未設定の場合、Repoはnilになる。
type Backend struct {
	Kind   config.StorageBackend
	Repo   repository.SubscriberRepository
	Health handler.HealthChecker

	closers []func() error
}

// Close はバックエンドの接続を閉じる。
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenBackend はSTORAGE_BACKENDに応じてリポジトリを構築する。
// 接続できない場合はエラーを返す。
func OpenBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	b := &Backend{Kind: cfg.StorageBackend}

	switch cfg.StorageBackend {
	case config.BackendNone:
		slog.Warn("STORAGE_BACKEND is not set; subscriptions will be rejected",
			slog.String("hint", "set STORAGE_BACKEND to redis, memory, file or postgres"),
		)

	case config.BackendMemory:
		b.Repo = repository.NewKVSubscriberRepo(kv.NewMemoryStore(), cfg.KVPageSize)
		slog.Warn("using in-memory storage; subscribers are lost on restart")

	case config.BackendRedis:
		connectCtx, cancel := context.WithTimeout(ctx, backendConnectTimeout)
		defer cancel()

		rdb, err := kv.OpenRedis(connectCtx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		b.Repo = repository.NewKVSubscriberRepo(kv.NewRedisStore(rdb), cfg.KVPageSize)
		b.Health = redisPinger{rdb}
		b.closers = append(b.closers, rdb.Close)

	case config.BackendFile:
		repo := repository.NewFileSubscriberRepo(cfg.SubscribersFile)
		if err := repo.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize subscribers file: %w", err)
		}
		b.Repo = repo

	case config.BackendPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.Ping(db, backendConnectTimeout); err != nil {
			db.Close()
			return nil, err
		}
		b.Repo = repository.NewPostgresSubscriberRepo(db)
		b.Health = sqlPinger{db}
		b.closers = append(b.closers, db.Close)

	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}

	if b.Repo != nil {
		slog.Info("subscriber storage ready", slog.String("backend", string(b.Kind)))
	}
	return b, nil
}

type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

type sqlPinger struct {
	db *sql.DB
}

func (p sqlPinger) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
