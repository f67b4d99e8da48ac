package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/token"
)

// ContextKey é o tipo das chaves de contexto deste pacote.
// Context Keys devem ser não-exportadas e de um tipo único.
type ContextKey int

const (
	actorKey ContextKey = iota
)

// TokenService define o contrato de validação necessário para o middleware.
type TokenService interface {
	ValidateToken(tokenString string) (*token.CustomClaims, error)
}

// writeError escreve o corpo de erro padrão da API.
func writeError(w http.ResponseWriter, err apperror.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	_ = json.NewEncoder(w).Encode(domain.ErrorResponse{
		Code:     err.HTTPStatus(),
		Category: err.Category(),
		Message:  err.Error(),
	})
}

// Authenticate valida o JWT do header Authorization e anexa o Actor ao contexto.
func Authenticate(tokenSvc TokenService) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, apperror.NewUnauthorizedError("token de autorização ausente ou malformado"))
				return
			}

			claims, err := tokenSvc.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeError(w, apperror.NewUnauthorizedError("token inválido ou expirado"))
				return
			}

			actor := domain.Actor{
				UserID: claims.UserID,
				Role:   domain.UserRole(claims.Role),
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// WithActor anexa o ator ao contexto.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extrai o ator autenticado.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(domain.Actor)
	return actor, ok
}

// RequireRoles restringe a rota aos papéis informados.
func RequireRoles(requiredRoles ...domain.UserRole) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, apperror.NewUnauthorizedError("autorização necessária"))
				return
			}

			for _, role := range requiredRoles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, apperror.NewForbiddenError("papel sem permissão para este recurso"))
		})
	}
}
