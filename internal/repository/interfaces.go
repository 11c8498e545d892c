// Package repository は購読者データの永続化インターフェースと実装を提供する。
// KV、JSONファイル、PostgreSQLの3種類のバックエンドを同一インターフェースで扱う。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/leadbox/internal/model"
)

// ErrDuplicateSubscriber は同一キーの購読者が既に存在する場合に返される。
var ErrDuplicateSubscriber = errors.New("subscriber already exists")

// SubscriberRepository は購読者データの永続化インターフェース。
// 購読者は小文字化したメールアドレスをキーとして一意に扱う。
type SubscriberRepository interface {
	// Exists は指定メールアドレスの購読者が存在するかを返す。
	Exists(ctx context.Context, email string) (bool, error)

	// Append は購読者を追加する。既存レコードの更新は行わない。
	Append(ctx context.Context, sub *model.Subscriber) error

	// ListAll は全購読者を返す。
	ListAll(ctx context.Context) ([]model.Subscriber, error)

	// ListBySource は指定sourceの購読者を返す。
	ListBySource(ctx context.Context, source string) ([]model.Subscriber, error)

	// Stats は購読者の集計結果を返す。
	Stats(ctx context.Context) (*model.Stats, error)
}
