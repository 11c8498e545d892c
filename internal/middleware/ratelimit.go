package middleware

import (
	"sync"
	"time"
)

// FixedWindowConfig は固定ウィンドウ方式のレート制限の設定を保持する。
type FixedWindowConfig struct {
	Window          time.Duration // ウィンドウ長
	MaxRequests     int           // ウィンドウあたりの許可数
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultFixedWindowConfig はデフォルトのレート制限設定を返す。
// クライアントあたり 5 req/60s。
func DefaultFixedWindowConfig() FixedWindowConfig {
	return FixedWindowConfig{
		Window:          60 * time.Second,
		MaxRequests:     5,
		CleanupInterval: 5 * time.Minute,
	}
}

// windowRecord はクライアントごとのリクエスト数とウィンドウのリセット時刻を保持する。
type windowRecord struct {
	count   int
	resetAt time.Time
}

// FixedWindowLimiter はクライアントキーごとの固定ウィンドウ方式のレート制限を管理する。
// 状態はプロセス内のみに保持され、再起動で失われる。複数インスタンス間では共有しない。
type FixedWindowLimiter struct {
	config FixedWindowConfig
	now    func() time.Time

	mu      sync.Mutex
	records map[string]*windowRecord

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewFixedWindowLimiter は新しいFixedWindowLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewFixedWindowLimiter(config FixedWindowConfig) *FixedWindowLimiter {
	defaults := DefaultFixedWindowConfig()
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = defaults.MaxRequests
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	rl := &FixedWindowLimiter{
		config:  config,
		now:     time.Now,
		records: make(map[string]*windowRecord),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *FixedWindowLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow はクライアントキーのリクエストを許可するかを判定し、許可した場合はカウントする。
// レコードが無いか、リセット時刻を過ぎている場合は新しいウィンドウを開始する。
func (rl *FixedWindowLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, exists := rl.records[key]
	if !exists || now.After(rec.resetAt) {
		rl.records[key] = &windowRecord{
			count:   1,
			resetAt: now.Add(rl.config.Window),
		}
		return true
	}

	if rec.count >= rl.config.MaxRequests {
		return false
	}

	rec.count++
	return true
}

// RetryAfter は現在のウィンドウがリセットされるまでの時間を返す。
// レコードが無い場合は0を返す。
func (rl *FixedWindowLimiter) RetryAfter(key string) time.Duration {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, exists := rl.records[key]
	if !exists || now.After(rec.resetAt) {
		return 0
	}
	return rec.resetAt.Sub(now)
}

// EntryCount は現在管理しているクライアントキーの数を返す。
// テストおよびメトリクス用。
func (rl *FixedWindowLimiter) EntryCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.records)
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *FixedWindowLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup はリセット時刻を過ぎたエントリを削除する。
// 削除されたキーの次のリクエストは新しいウィンドウとして扱われるため、判定結果は変わらない。
func (rl *FixedWindowLimiter) cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, rec := range rl.records {
		if now.After(rec.resetAt) {
			delete(rl.records, key)
		}
	}
}
