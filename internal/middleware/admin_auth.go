package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/hitoshi/leadbox/internal/model"
)

// NewBearerAuthMiddleware は Authorization: Bearer <token> を検証するミドルウェアを返す。
// トークンは定数時間で比較する。
func NewBearerAuthMiddleware(token string) func(next http.Handler) http.Handler {
	expected := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, given, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || len(expected) == 0 ||
				subtle.ConstantTimeCompare([]byte(strings.TrimSpace(given)), expected) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="leadbox"`)
				WriteErrorResponse(w, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
