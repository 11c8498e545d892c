// Package kv はキーバリューストアの抽象と実装を提供する。
// 購読者の保存先（Variant A）として使用する。
package kv

import (
	"context"
	"errors"
)

// ErrNotFound はキーが存在しない場合に返される。
var ErrNotFound = errors.New("kv: key not found")

// DefaultListLimit はListのLimit未指定時に使用するページサイズ。
const DefaultListLimit = 1000

// ListOptions はListの検索条件。
// Cursorが空の場合は先頭から列挙する。
type ListOptions struct {
	Prefix string
	Limit  int
	Cursor string
}

// ListResult はListの1ページ分の結果。
// Completeがfalseの場合、Cursorを次のListに渡して続きを取得する。
type ListResult struct {
	Keys     []string
	Cursor   string
	Complete bool
}

// Store はキーバリューストアのインターフェース。
type Store interface {
	// Get は指定キーの値を返す。存在しない場合はErrNotFoundを返す。
	Get(ctx context.Context, key string) ([]byte, error)
	// Put は指定キーに値を保存する。
	Put(ctx context.Context, key string, value []byte) error
	// PutIfAbsent はキーが存在しない場合のみ値を保存する。
	// 保存した場合はtrue、既に存在した場合はfalseを返す。
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	// Delete は指定キーを削除する。存在しないキーの削除はエラーにならない。
	Delete(ctx context.Context, key string) error
	// List はプレフィックスに一致するキーをページ単位で列挙する。
	// 実装によっては同じキーが複数のページに現れることがあるため、
	// 呼び出し側で重複を除くこと。
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
}
