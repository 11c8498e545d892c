package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/leadbox/internal/model"
)

// pqUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pqUniqueViolation = "23505"

// PostgresSubscriberRepo はPostgreSQLを使用した購読者リポジトリ。
// email_keyの一意制約により、存在確認後の同時INSERTも重複しない。
type PostgresSubscriberRepo struct {
	db *sql.DB
}

// NewPostgresSubscriberRepo はPostgresSubscriberRepoを生成する。
func NewPostgresSubscriberRepo(db *sql.DB) *PostgresSubscriberRepo {
	return &PostgresSubscriberRepo{db: db}
}

const selectSubscriberColumns = `SELECT email, name, source, created_at, user_agent, referrer, convertkit_status, convertkit_error FROM subscribers`

// Exists は指定メールアドレスの購読者が存在するかを返す。
func (r *PostgresSubscriberRepo) Exists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM subscribers WHERE email_key = $1)`,
		model.EmailKey(email),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check subscriber existence: %w", err)
	}
	return exists, nil
}

// Append は購読者をINSERTする。一意制約違反はErrDuplicateSubscriberに変換する。
func (r *PostgresSubscriberRepo) Append(ctx context.Context, sub *model.Subscriber) error {
	status := sub.ConvertKitStatus
	if status == "" {
		status = model.ForwardStatusPending
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscribers (id, email_key, email, name, source, created_at, user_agent, referrer, convertkit_status, convertkit_error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New().String(), sub.Key(), sub.Email, sub.Name, sub.Source, sub.Timestamp,
		sub.UserAgent, sub.Referrer, string(status), sub.ConvertKitError,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateSubscriber
		}
		return fmt.Errorf("failed to insert subscriber: %w", err)
	}
	return nil
}

// ListAll は全購読者を登録順に返す。
func (r *PostgresSubscriberRepo) ListAll(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, selectSubscriberColumns+` ORDER BY created_at, email_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	return scanSubscribers(rows)
}

// ListBySource は指定sourceの購読者を登録順に返す。
func (r *PostgresSubscriberRepo) ListBySource(ctx context.Context, source string) ([]model.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		selectSubscriberColumns+` WHERE source = $1 ORDER BY created_at, email_key`,
		source,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers by source: %w", err)
	}
	defer rows.Close()

	return scanSubscribers(rows)
}

// Stats はSQLの集計で件数を算出する。
func (r *PostgresSubscriberRepo) Stats(ctx context.Context) (*model.Stats, error) {
	stats := &model.Stats{BySource: make(map[string]int)}

	err := r.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE convertkit_status = 'success'),
			COUNT(*) FILTER (WHERE convertkit_status = 'error')
		 FROM subscribers`,
	).Scan(&stats.Total, &stats.ConvertKit.Success, &stats.ConvertKit.Error)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscribers: %w", err)
	}
	stats.ConvertKit.Pending = stats.Total - stats.ConvertKit.Success - stats.ConvertKit.Error

	rows, err := r.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM subscribers GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscribers by source: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate source counts: %w", err)
	}

	return stats, nil
}

func scanSubscribers(rows *sql.Rows) ([]model.Subscriber, error) {
	subs := make([]model.Subscriber, 0)
	for rows.Next() {
		var s model.Subscriber
		var status string
		if err := rows.Scan(
			&s.Email, &s.Name, &s.Source, &s.Timestamp,
			&s.UserAgent, &s.Referrer, &status, &s.ConvertKitError,
		); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		s.ConvertKitStatus = model.ForwardStatus(status)
		s.Timestamp = s.Timestamp.UTC()
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscribers: %w", err)
	}
	return subs, nil
}

// compile-time interface check
var _ SubscriberRepository = (*PostgresSubscriberRepo)(nil)
