package middleware

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	apperror "goloja/internal/errors"
	"goloja/internal/pkg/cache"
)

// RateLimiter aplica janela fixa por IP, com o contador no cache.
// Se o cache falhar a requisição segue: indisponibilidade do Redis não derruba a API.
func RateLimiter(client cache.Client, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			key := "rate-limit:" + ip
			ctx := r.Context()

			count, err := client.GetInt(ctx, key)
			if errors.Is(err, cache.ErrCacheMiss) {
				_ = client.Set(ctx, key, 1, window)
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limit-1))
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if count >= limit {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeError(w, &rateLimitError{})
				return
			}

			_, _ = client.Incr(ctx, key)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limit-count-1))
			next.ServeHTTP(w, r)
		})
	}
}

type rateLimitError struct{}

func (e *rateLimitError) Error() string    { return "limite de requisições excedido" }
func (e *rateLimitError) Category() string { return "RATE_LIMITED" }
func (e *rateLimitError) HTTPStatus() int  { return http.StatusTooManyRequests }
func (e *rateLimitError) Unwrap() error    { return nil }

var _ apperror.AppError = (*rateLimitError)(nil)
