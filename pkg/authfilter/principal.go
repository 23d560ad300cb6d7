package authfilter

import (
	"context"
	"time"
)

// Principal аутентифицированный пользователь запроса.
// Значение получается только из проверенного токена и не связано с хранилищем.
type Principal struct {
	UserCode  string    `json:"userCode"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expiresAt"`
	TokenID   string    `json:"tokenId,omitempty"`
}

// HasRole проверяет наличие хотя бы одной из ролей
func (p Principal) HasRole(roles ...string) bool {
	for _, have := range p.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

type principalKey struct{}

// ContextWithPrincipal кладет principal в контекст запроса
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext возвращает principal, если запрос аутентифицирован
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
