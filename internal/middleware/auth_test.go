package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionCookie(t *testing.T, m *AuthMiddleware, id int64, role string) *http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	require.NoError(t, m.SetAuthCookie(w, id, role))

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies, "no cookies set by SetAuthCookie")
	assert.True(t, cookies[0].HttpOnly)
	return cookies[0]
}

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetMemberIDFromContext(r.Context())
		require.True(t, ok, "member id not in context")
		assert.Equal(t, int64(42), id)
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(sessionCookie(t, m, 42, RoleMember))

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	assert.True(t, nextCalled, "next handler was not called")
}

func TestAuthMiddleware_WithoutCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	m.Middleware(next).ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Authentication required"}`, w.Body.String())
}

func TestAuthMiddleware_RejectsForeignSignature(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	other := NewAuthMiddleware("other-secret")

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(sessionCookie(t, other, 42, RoleMember))

	w := httptest.NewRecorder()
	m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("next handler should not be called")
	})).ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_RejectsUnsignedToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodNone, sessionClaims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.parse(raw)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestAuthMiddleware_ExpiredSession(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }

	token, err := m.sign(Principal{ID: 7, Role: RoleMember})
	require.NoError(t, err)

	m.now = func() time.Time { return issued.Add(authCookieTTL + time.Minute) }
	_, err = m.parse(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestOptional(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, gotOK = GetMemberIDFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodPost, "/borrow", nil)
	m.Optional(next).ServeHTTP(httptest.NewRecorder(), r)
	assert.False(t, gotOK)

	r = httptest.NewRequest(http.MethodPost, "/borrow", nil)
	r.AddCookie(sessionCookie(t, m, 5, RoleMember))
	m.Optional(next).ServeHTTP(httptest.NewRecorder(), r)
	assert.True(t, gotOK)
}

func TestRequireRole(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := m.Middleware(RequireRole(RoleLibrarian, RoleAdmin)(ok))

	tests := []struct {
		name string
		role string
		want int
	}{
		{name: "member forbidden", role: RoleMember, want: http.StatusForbidden},
		{name: "librarian allowed", role: RoleLibrarian, want: http.StatusNoContent},
		{name: "admin allowed", role: RoleAdmin, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/admin", nil)
			r.AddCookie(sessionCookie(t, m, 1, tt.role))

			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestGetMemberIDFromContext_StaffSession(t *testing.T) {
	ctx := withPrincipal(httptest.NewRequest(http.MethodGet, "/", nil).Context(), Principal{ID: 3, Role: RoleAdmin})

	_, ok := GetMemberIDFromContext(ctx)
	assert.False(t, ok)

	p, ok := GetPrincipal(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(3), p.ID)
}

func TestClearAuthCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	w := httptest.NewRecorder()
	m.ClearAuthCookie(w)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, authCookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}
