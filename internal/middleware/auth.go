// Package middleware содержит HTTP middleware библиотечного сервиса.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const principalKey contextKey = "principal"

const (
	authCookieName = "session"
	authCookieTTL  = 30 * 24 * time.Hour
)

// Роли субъектов сессии.
const (
	RoleMember    = "member"
	RoleLibrarian = "librarian"
	RoleAdmin     = "admin"
)

// ErrInvalidSession возвращается для неподписанной, просроченной или испорченной сессии.
var ErrInvalidSession = errors.New("invalid session")

// Principal описывает аутентифицированного субъекта запроса.
type Principal struct {
	ID   int64
	Role string
}

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет сессию, хранящуюся в подписанном JWT-cookie.
type AuthMiddleware struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewAuthMiddleware создаёт AuthMiddleware. Пустой секрет заменяется случайным ключом процесса.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}

	return &AuthMiddleware{
		secretKey: key,
		ttl:       authCookieTTL,
		now:       time.Now,
	}
}

// Middleware требует действительную сессию и кладёт субъекта в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.principalFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// Optional кладёт субъекта в контекст, если сессия действительна, и пропускает запрос в любом случае.
func (a *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, err := a.principalFromRequest(r); err == nil {
			r = r.WithContext(withPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole пропускает только субъектов с одной из указанных ролей.
// Должен стоять после Middleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !slices.Contains(roles, p.Role) {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetAuthCookie выпускает сессию для субъекта и устанавливает её cookie.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, id int64, role string) error {
	token, err := a.sign(Principal{ID: id, Role: role})
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		Expires:  a.now().Add(a.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearAuthCookie удаляет cookie сессии.
func (a *AuthMiddleware) ClearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthMiddleware) sign(p Principal) (string, error) {
	now := a.now()
	claims := sessionClaims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
}

func (a *AuthMiddleware) parse(token string) (Principal, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.secretKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Principal{}, ErrInvalidSession
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 || claims.Role == "" {
		return Principal{}, ErrInvalidSession
	}
	return Principal{ID: id, Role: claims.Role}, nil
}

func (a *AuthMiddleware) principalFromRequest(r *http.Request) (Principal, error) {
	cookie, err := r.Cookie(authCookieName)
	if err != nil {
		return Principal{}, ErrInvalidSession
	}
	return a.parse(cookie.Value)
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal извлекает субъекта сессии из контекста запроса.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// GetMemberIDFromContext извлекает идентификатор читателя из контекста запроса.
// Для сессий сотрудников возвращает false.
func GetMemberIDFromContext(ctx context.Context) (int64, bool) {
	p, ok := GetPrincipal(ctx)
	if !ok || p.Role != RoleMember {
		return 0, false
	}
	return p.ID, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
