package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-chat/internal/auth"
)

func setupRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), mw)
	r.GET("/whoami", func(c *gin.Context) {
		identity := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{
			"user_id":    identity.UserID,
			"anonymous":  identity.IsAnonymous(),
			"request_id": RequestIDFrom(c),
		})
	})
	return r
}

func issue(t *testing.T, a *auth.Authenticator, id int64) string {
	t.Helper()
	token, err := a.Issue(auth.Identity{UserID: id, Username: "u"}, time.Minute)
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	a := auth.NewAuthenticator("secret", "")
	router := setupRouter(AuthMiddleware(a))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "malformed", header: "Token abc", status: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer abc", status: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + issue(t, a, 4), status: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestWebSocketIdentityFailsOpen(t *testing.T) {
	a := auth.NewAuthenticator("secret", "")
	router := setupRouter(WebSocketIdentity(a))

	req := httptest.NewRequest(http.MethodGet, "/whoami?token=garbage", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":0,"anonymous":true,"request_id":"`+rec.Header().Get(RequestIDHeader)+`"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/whoami?token="+issue(t, a, 9), nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":9,"anonymous":false,"request_id":"req-1"}`, rec.Body.String())
}

func TestWebSocketIdentityHeaderFallback(t *testing.T) {
	a := auth.NewAuthenticator("secret", "")
	router := setupRouter(WebSocketIdentity(a))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, a, 5))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":5`)
}

func TestRequestMetadataWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/meta", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": RequestIDFrom(c), "device_id": DeviceIDFrom(c)})
	})

	req := httptest.NewRequest(http.MethodGet, "/meta", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	req.Header.Set(DeviceIDHeader, "ios-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.JSONEq(t, `{"request_id":"req-7","device_id":"ios-1"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/meta", nil))
	assert.JSONEq(t, `{"request_id":"","device_id":""}`, rec.Body.String())
}
