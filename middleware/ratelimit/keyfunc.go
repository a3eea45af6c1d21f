package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"vault-gateway/middleware/ratelimit/domain"
)

// RequestIDHeader é lido para identificar a requisição no pool. Se vier vazio,
// um UUID é gerado e devolvido no mesmo header da resposta.
const RequestIDHeader = "X-Request-Id"

// KeyFunc extrai a chave do cliente. A mesma chave indexa o token bucket na
// tabela de limiters e a vaga no vault de concorrência.
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc tenta, nesta ordem: o header keyHeader, o primeiro IP do
// X-Forwarded-For (se trustXFF) e o host de RemoteAddr.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if k := headerKey(r, keyHeader); k != "" {
			return k
		}
		if trustXFF {
			if ip := forwardedFor(r); ip != "" {
				return ip
			}
		}
		return remoteHost(r)
	}
}

func headerKey(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(r.Header.Get(name))
}

// forwardedFor retorna o cliente original (primeiro IP) do X-Forwarded-For.
func forwardedFor(r *http.Request) string {
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	return strings.TrimSpace(first)
}

func remoteHost(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}
	return "unknown"
}

func requestID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(RequestIDHeader)); v != "" {
		return v
	}
	return uuid.NewString()
}

// newRequest monta o registro que ocupa a vaga do vault durante a requisição.
func newRequest(r *http.Request, keyFn KeyFunc) domain.Request {
	return domain.Request{
		ID:     requestID(r),
		Key:    domain.Key(keyFn(r)),
		Method: r.Method,
		Path:   r.URL.Path,
	}
}
