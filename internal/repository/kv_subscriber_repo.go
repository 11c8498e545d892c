package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/leadbox/internal/kv"
	"github.com/hitoshi/leadbox/internal/model"
)

// subscriberKeyPrefix は購読者レコードのキープレフィックス。
const subscriberKeyPrefix = "subscriber:"

// KVSubscriberRepo はキーバリューストアを使用した購読者リポジトリ。
// 購読者1件を subscriber:<小文字メールアドレス> の1エントリとして保存する。
type KVSubscriberRepo struct {
	store    kv.Store
	pageSize int
}

// NewKVSubscriberRepo はKVSubscriberRepoを生成する。
// pageSizeが0以下の場合はkv.DefaultListLimitを使用する。
func NewKVSubscriberRepo(store kv.Store, pageSize int) *KVSubscriberRepo {
	if pageSize <= 0 {
		pageSize = kv.DefaultListLimit
	}
	return &KVSubscriberRepo{store: store, pageSize: pageSize}
}

func subscriberKey(email string) string {
	return subscriberKeyPrefix + model.EmailKey(email)
}

// Exists はキーの直接参照で存在を判定する。全件走査は行わない。
func (r *KVSubscriberRepo) Exists(ctx context.Context, email string) (bool, error) {
	_, err := r.store.Get(ctx, subscriberKey(email))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up subscriber: %w", err)
	}
	return true, nil
}

// Append は購読者をJSONにシリアライズして保存する。
// 既存レコードは上書きせず、キーが既にある場合はErrDuplicateSubscriberを返す。
func (r *KVSubscriberRepo) Append(ctx context.Context, sub *model.Subscriber) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscriber: %w", err)
	}

	created, err := r.store.PutIfAbsent(ctx, subscriberKey(sub.Email), data)
	if err != nil {
		return fmt.Errorf("failed to save subscriber: %w", err)
	}
	if !created {
		return ErrDuplicateSubscriber
	}
	return nil
}

// ListAll はプレフィックス一致のキーをカーソルが尽きるまでページ単位で列挙し、
// 各キーの値を読み込んで返す。
// 列挙と読み込みの間に消えたキー、デコードできない値は読み飛ばす。
// 複数のページに現れたキーは1件として扱う。
func (r *KVSubscriberRepo) ListAll(ctx context.Context) ([]model.Subscriber, error) {
	subs := make([]model.Subscriber, 0)
	seen := make(map[string]struct{})
	cursor := ""

	for {
		page, err := r.store.List(ctx, kv.ListOptions{
			Prefix: subscriberKeyPrefix,
			Limit:  r.pageSize,
			Cursor: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list subscribers: %w", err)
		}

		for _, key := range page.Keys {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			data, err := r.store.Get(ctx, key)
			if errors.Is(err, kv.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read subscriber %s: %w", key, err)
			}

			var sub model.Subscriber
			if err := json.Unmarshal(data, &sub); err != nil {
				slog.Warn("skipping undecodable subscriber record",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				continue
			}
			subs = append(subs, sub)
		}

		if page.Complete || page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	return subs, nil
}

// ListBySource は全件を取得してsourceで絞り込む。
func (r *KVSubscriberRepo) ListBySource(ctx context.Context, source string) ([]model.Subscriber, error) {
	subs, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterBySource(subs, source), nil
}

// Stats は全件を取得して集計する。
func (r *KVSubscriberRepo) Stats(ctx context.Context) (*model.Stats, error) {
	subs, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeStats(subs), nil
}

// compile-time interface check
var _ SubscriberRepository = (*KVSubscriberRepo)(nil)
