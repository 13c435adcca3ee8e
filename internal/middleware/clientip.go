package middleware

import (
	"net"
	"net/http"
	"strings"
)

// clientIPHeaders はクライアントIPを探索するヘッダーの優先順。
var clientIPHeaders = []string{
	"X-Real-IP",
	"Client-IP",
	"X-Forwarded-For",
	"X-Forwarded",
	"Forwarded-For",
	"Forwarded",
}

// ClientIP はリクエスト元のIPアドレスを返す。
// プロキシヘッダーを優先順に探索し、いずれもなければRemoteAddrを使う。
// カンマ区切りの場合は先頭の値を採用する。
func ClientIP(r *http.Request) string {
	for _, h := range clientIPHeaders {
		if ip := firstForwardedValue(r.Header.Get(h)); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// firstForwardedValue はカンマ区切りの先頭要素を取り出す。
// Forwardedヘッダー形式（for=...;proto=...）の場合はforの値を返す。
func firstForwardedValue(raw string) string {
	first, _, _ := strings.Cut(raw, ",")
	first = strings.TrimSpace(first)
	for _, part := range strings.Split(first, ";") {
		part = strings.TrimSpace(part)
		if len(part) > 4 && strings.EqualFold(part[:4], "for=") {
			return strings.Trim(part[4:], `"`)
		}
	}
	return first
}
