// Package convertkit はメーリングリストサービス（ConvertKit）への購読者転送を提供する。
// 転送は1回のみ試行し、失敗は呼び出し元へエラーではなくResultとして返す。
package convertkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL はConvertKit APIのベースURL。
	DefaultBaseURL = "https://api.convertkit.com"
	// DefaultTimeout は1回の転送に掛ける最大時間。
	DefaultTimeout = 10 * time.Second
	// DefaultRatePerMinute はConvertKit APIの呼び出し上限（120 req/min）。
	DefaultRatePerMinute = 120

	// maxErrorBodySize はエラーレスポンスから読み取る最大バイト数。
	maxErrorBodySize = 64 * 1024

	defaultErrorMessage = "Failed to subscribe to ConvertKit"
)

// Result は転送結果。Successがfalseの場合のみErrorに理由が入る。
type Result struct {
	Success bool
	Error   string
}

// Config はClientの設定。
// APIKeyまたはFormIDが空の場合、転送はスキップされ成功扱いになる。
type Config struct {
	APIKey        string
	FormID        string
	BaseURL       string
	Timeout       time.Duration
	RatePerMinute int
}

// Configured はAPIキーとフォームIDが両方設定されているかを返す。
func (c Config) Configured() bool {
	return c.APIKey != "" && c.FormID != ""
}

// Client はConvertKitのフォーム購読APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
	limiter    *rate.Limiter

	warnUnconfigured sync.Once
}

// NewClient はClientを生成する。
// 未設定の項目にはデフォルト値を使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = DefaultRatePerMinute
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     cfg,
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute),
	}
}

// subscribeRequest はフォーム購読APIのリクエストボディ。
type subscribeRequest struct {
	APIKey    string `json:"api_key"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

// Subscribe はメールアドレスと名前をフォームに登録する。
// 設定が無い場合は何もせず成功を返す。
// HTTPエラー、ネットワークエラー、タイムアウトはすべてSuccess=falseのResultとして返し、
// エラーとして呼び出し元に伝播させない。
func (c *Client) Subscribe(ctx context.Context, email, name string) Result {
	if !c.config.Configured() {
		c.warnUnconfigured.Do(func() {
			c.logger.Warn("ConvertKit is not configured; skipping forwarding",
				slog.String("hint", "set CONVERTKIT_API_KEY and CONVERTKIT_FORM_ID"),
			)
		})
		return Result{Success: true}
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Error("ConvertKitの呼び出し枠を確保できませんでした",
			slog.String("error", err.Error()),
		)
		return Result{Success: false, Error: "ConvertKit rate limit exceeded"}
	}

	body, err := json.Marshal(subscribeRequest{
		APIKey:    c.config.APIKey,
		Email:     email,
		FirstName: name,
	})
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	endpoint := fmt.Sprintf("%s/v3/forms/%s/subscribe", c.config.BaseURL, url.PathEscape(c.config.FormID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Leadbox/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ConvertKit APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return Result{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := extractErrorMessage(resp.Body)
		c.logger.Error("ConvertKit APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", msg),
		)
		return Result{Success: false, Error: msg}
	}

	// 成功レスポンスの本文は使用しないが、接続再利用のため読み捨てる
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))

	return Result{Success: true}
}

// errorResponse はConvertKitのエラーレスポンス。
// APIのバージョンによりmessageとerrorのどちらかに理由が入る。
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// extractErrorMessage はエラーレスポンスの本文から理由を取り出す。
// 取り出せない場合は汎用メッセージを返す。
func extractErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(data) == 0 {
		return defaultErrorMessage
	}

	var er errorResponse
	if err := json.Unmarshal(data, &er); err != nil {
		return defaultErrorMessage
	}

	switch {
	case er.Message != "":
		return er.Message
	case er.Error != "":
		return er.Error
	default:
		return defaultErrorMessage
	}
}
