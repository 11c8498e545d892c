package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/leadbox/internal/metrics"
	"github.com/hitoshi/leadbox/internal/middleware"
	"github.com/hitoshi/leadbox/internal/model"
	"github.com/hitoshi/leadbox/internal/subscriber"
)

// SubscribeServiceInterface は購読受付ハンドラーが必要とするサービスインターフェース。
type SubscribeServiceInterface interface {
	// Ready はストレージが構成済みかを返す。
	Ready() bool
	// Subscribe は購読申込を検証し、転送と保存を行う。
	Subscribe(ctx context.Context, req *subscriber.Request, meta subscriber.Metadata) (*subscriber.Outcome, error)
}

// RateLimiter はクライアントキーごとのレート制限。
type RateLimiter interface {
	Allow(key string) bool
	RetryAfter(key string) time.Duration
}

// SubscribeHandler は購読受付のHTTPハンドラー。
type SubscribeHandler struct {
	service SubscribeServiceInterface
	limiter RateLimiter
	metrics metrics.MetricsCollector
}

// NewSubscribeHandler はSubscribeHandlerを生成する。
func NewSubscribeHandler(service SubscribeServiceInterface, limiter RateLimiter, collector metrics.MetricsCollector) *SubscribeHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &SubscribeHandler{
		service: service,
		limiter: limiter,
		metrics: collector,
	}
}

// subscribeResponse は受付成功時のレスポンス。
type subscribeResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	ConvertKitStatus string `json:"convertkitStatus"`
}

// maxMetadataLength はUser-AgentとRefererの保存上限。
const maxMetadataLength = 512

// Subscribe は購読申込を受け付ける。
// POST /api/subscribe
//
// ストレージ確認、レート制限、デコードの順に行い、以降はサービス層に委譲する。
// 最初の失敗でレスポンスを返す。
func (h *SubscribeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if !h.service.Ready() {
		slog.ErrorContext(r.Context(), "subscriber storage is not configured",
			slog.String("hint", "set STORAGE_BACKEND"),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		h.fail(w, model.NewStorageUnavailableError())
		return
	}

	clientKey := middleware.ClientIP(r)
	if !h.limiter.Allow(clientKey) {
		slog.WarnContext(r.Context(), "rate limit exceeded",
			slog.String("client", clientKey),
		)
		h.metrics.RecordRateLimited()
		h.metrics.RecordSubscription(resultLabel(model.ErrCodeRateLimited))
		middleware.WriteRateLimitResponse(w, h.limiter.RetryAfter(clientKey))
		return
	}

	req, err := subscriber.ParseRequest(r.Body)
	if err != nil {
		h.fail(w, model.NewMalformedPayloadError())
		return
	}

	out, err := h.service.Subscribe(r.Context(), req, subscriber.Metadata{
		UserAgent: truncate(r.UserAgent(), maxMetadataLength),
		Referrer:  truncate(r.Referer(), maxMetadataLength),
	})
	if err != nil {
		apiErr := handleServiceError(w, r, err, model.NewPersistenceError())
		h.metrics.RecordSubscription(resultLabel(apiErr.Code))
		return
	}

	h.metrics.RecordSubscription(out.ConvertKitStatus)
	writeJSON(w, http.StatusOK, subscribeResponse{
		Success:          true,
		Message:          "Successfully subscribed!",
		ConvertKitStatus: out.ConvertKitStatus,
	})
}

func (h *SubscribeHandler) fail(w http.ResponseWriter, apiErr *model.APIError) {
	h.metrics.RecordSubscription(resultLabel(apiErr.Code))
	middleware.WriteErrorResponse(w, apiErr)
}

// resultLabel はエラーコードをメトリクスのラベル値に変換する。
func resultLabel(code string) string {
	return strings.ToLower(code)
}

// truncate はsを最大nバイトに切り詰める。マルチバイト文字の途中では切らない。
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
