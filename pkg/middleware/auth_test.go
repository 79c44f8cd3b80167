package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/rapidoc/docsync/internal/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeToken implements Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier accepts exactly one raw token.
type fakeVerifier struct {
	raw string
	sub string
}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	if raw == f.raw {
		return &fakeToken{data: map[string]interface{}{"sub": f.sub, "email": "test@example.com"}}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func good() *fakeVerifier { return &fakeVerifier{raw: "goodtoken", sub: "user1"} }

func serve(t *testing.T, ver Verifier, header string) *httptest.ResponseRecorder {
	t.Helper()
	g := gin.New()
	g.GET("/", AuthMiddleware(ver), func(c *gin.Context) {
		resp, _ := json.Marshal(gin.H{"sub": Subject(c), "token": c.GetString(TokenKey)})
		c.Writer.Write(resp)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, serve(t, good(), "").Code)
}

func TestAuthMiddleware_InvalidHeader(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, serve(t, good(), "BadHeader").Code)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	rw := serve(t, good(), "Bearer goodtoken")
	require.Equal(t, http.StatusOK, rw.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, "user1", got["sub"])
	require.Equal(t, "goodtoken", got["token"])
}

func TestAuthMiddleware_RejectsMissingSubject(t *testing.T) {
	rw := serve(t, &fakeVerifier{raw: "anon"}, "Bearer anon")
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_RejectsRevokedToken(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	sessions.SetRevocationClient(redis.NewClient(&redis.Options{Addr: m.Addr()}))
	defer sessions.SetRevocationClient(nil)

	require.NoError(t, sessions.RevokeAccessToken(context.Background(), "goodtoken", 5*time.Second))
	require.Equal(t, http.StatusUnauthorized, serve(t, good(), "Bearer goodtoken").Code)
}

func TestChainAcceptsAnyVerifier(t *testing.T) {
	v := Chain(nil, &fakeVerifier{raw: "a", sub: "from-a"}, &fakeVerifier{raw: "b", sub: "from-b"})

	rw := serve(t, v, "Bearer b")
	require.Equal(t, http.StatusOK, rw.Code)
	require.Contains(t, rw.Body.String(), "from-b")

	require.Equal(t, http.StatusUnauthorized, serve(t, v, "Bearer c").Code)
	require.Equal(t, http.StatusUnauthorized, serve(t, Chain(), "Bearer a").Code)
}
