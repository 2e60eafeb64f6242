package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func authRouter(secret string, tokens []string) *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware(secret, tokens))
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(subjectKey))
	})
	return r
}

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "hmac-secret"
	valid := signed(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"sub": "host-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	expired := signed(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"sub": "host-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := signed(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "host-1"})
	noneAlg := signed(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": "host-1"})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"basic scheme", "Basic abc", http.StatusUnauthorized},
		{"too many parts", "Bearer a b", http.StatusUnauthorized},
		{"valid jwt", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
		{"expired jwt", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"none alg", "Bearer " + noneAlg, http.StatusUnauthorized},
		{"static token", "Bearer static-1", http.StatusOK},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
	}
	router := authRouter(secret, []string{"static-1"})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestAuthMiddleware_SubjectFromJWT(t *testing.T) {
	const secret = "hmac-secret"
	token := signed(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "host-42"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	authRouter(secret, nil).ServeHTTP(w, req)
	if w.Body.String() != "host-42" {
		t.Fatalf("subject = %q, want host-42", w.Body.String())
	}
}

func TestAuthMiddleware_StaticOnly(t *testing.T) {
	router := authRouter("", []string{"", "static-1"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer static-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
