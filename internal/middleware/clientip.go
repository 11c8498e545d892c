package middleware

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient は送信元を特定できない場合のクライアントキー。
// 該当するリクエストはすべて同じレート制限枠を共有する。
const UnknownClient = "unknown"

// ClientIP はレート制限に使うクライアントキーを返す。
// X-Forwarded-Forの先頭要素、X-Real-IP、RemoteAddrのホスト部の順に採用する。
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}

	return UnknownClient
}
