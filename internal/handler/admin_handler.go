package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/leadbox/internal/model"
)

// AdminServiceInterface は管理APIが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	// List は購読者一覧を返す。sourceが空の場合は全件。
	List(ctx context.Context, source string) ([]model.Subscriber, error)
	// Stats は購読者の集計結果を返す。
	Stats(ctx context.Context) (*model.Stats, error)
}

// AdminHandler は購読者データ参照用のHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// ListSubscribers は購読者一覧を返す。
// GET /api/subscribers[?source=x]
func (h *AdminHandler) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.List(r.Context(), r.URL.Query().Get("source"))
	if err != nil {
		handleServiceError(w, r, err, model.NewInternalError())
		return
	}
	if subs == nil {
		subs = []model.Subscriber{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// Stats は購読者の集計結果を返す。
// GET /api/subscribers/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		handleServiceError(w, r, err, model.NewInternalError())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
