package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hitoshi/leadbox/internal/model"
)

// FileSubscriberRepo はJSONファイル1つに全購読者を配列として保存するリポジトリ。
// 読み込みはファイル全体をパースし、書き込みは更新後の配列全体を書き戻す。
//
// 同一プロセス内のAppendはmutexで直列化し、書き込みは一時ファイルからのrenameで行う。
// 複数プロセスが同じファイルに書き込む場合の排他は行わない。
type FileSubscriberRepo struct {
	path string
	mu   sync.Mutex
}

// NewFileSubscriberRepo はFileSubscriberRepoを生成する。
// ファイルの作成はInitで行う。
func NewFileSubscriberRepo(path string) *FileSubscriberRepo {
	return &FileSubscriberRepo{path: path}
}

// Init は保存先ディレクトリと空配列のファイルを作成する。
// 既にファイルが存在する場合は何もしない。
func (r *FileSubscriberRepo) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if _, err := os.Stat(r.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat subscribers file: %w", err)
	}

	return r.write([]model.Subscriber{})
}

// Exists はファイル全体を読み込み、小文字化したメールアドレスで照合する。
func (r *FileSubscriberRepo) Exists(ctx context.Context, email string) (bool, error) {
	subs, err := r.ListAll(ctx)
	if err != nil {
		return false, err
	}

	key := model.EmailKey(email)
	for i := range subs {
		if subs[i].Key() == key {
			return true, nil
		}
	}
	return false, nil
}

// Append はファイルを読み込み、購読者を末尾に追加して書き戻す。
// 読み込みから書き戻しまでの間に同一キーが追加されていた場合はErrDuplicateSubscriberを返す。
func (r *FileSubscriberRepo) Append(ctx context.Context, sub *model.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, err := r.read()
	if err != nil {
		return err
	}

	key := sub.Key()
	for i := range subs {
		if subs[i].Key() == key {
			return ErrDuplicateSubscriber
		}
	}

	subs = append(subs, *sub)
	return r.write(subs)
}

// ListAll はファイル内の全購読者を返す。
func (r *FileSubscriberRepo) ListAll(ctx context.Context) ([]model.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

// ListBySource は指定sourceの購読者を返す。
func (r *FileSubscriberRepo) ListBySource(ctx context.Context, source string) ([]model.Subscriber, error) {
	subs, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterBySource(subs, source), nil
}

// Stats は全購読者を集計する。
func (r *FileSubscriberRepo) Stats(ctx context.Context) (*model.Stats, error) {
	subs, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeStats(subs), nil
}

// read はファイルをパースする。ファイルが存在しない場合は空配列を返す。
// 呼び出し元がmuを保持していること。
func (r *FileSubscriberRepo) read() ([]model.Subscriber, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return []model.Subscriber{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read subscribers file: %w", err)
	}

	subs := make([]model.Subscriber, 0)
	if len(data) == 0 {
		return subs, nil
	}
	if err := json.Unmarshal(data, &subs); err != nil {
		return nil, fmt.Errorf("failed to parse subscribers file: %w", err)
	}
	return subs, nil
}

// write は一時ファイルに書き出してからrenameで置き換える。
// 呼び出し元がmuを保持していること。
func (r *FileSubscriberRepo) write(subs []model.Subscriber) error {
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal subscribers: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".subscribers-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace subscribers file: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SubscriberRepository = (*FileSubscriberRepo)(nil)
