package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/leadbox/internal/middleware"
	"github.com/hitoshi/leadbox/internal/model"
	"github.com/hitoshi/leadbox/internal/subscriber"
)

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleServiceError はサービス層から返されたエラーをHTTPレスポンスに変換する。
// APIErrorはそのまま返し、ストレージ未構成は専用のメッセージを返す。
// それ以外はログに記録したうえでfallbackを返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error, fallback *model.APIError) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, apiErr)
		return apiErr
	}

	if errors.Is(err, subscriber.ErrStorageUnavailable) {
		apiErr = model.NewStorageUnavailableError()
	} else {
		apiErr = fallback
	}

	slog.ErrorContext(r.Context(), "request failed",
		slog.String("code", apiErr.Code),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	middleware.WriteErrorResponse(w, apiErr)
	return apiErr
}
