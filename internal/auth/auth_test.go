package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	key    = "test-signing-key"
	issuer = "campusattend"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("stu-1", RoleStudent, issuer, key, time.Minute, time.Hour)
	require.NoError(t, err)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := Parse(pair.AccessToken, key, issuer)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", claims.Subject)
	assert.Equal(t, RoleStudent, claims.Role)
}

func TestParseRejects(t *testing.T) {
	good, err := Issue("stu-1", RoleStudent, issuer, key, time.Minute, time.Hour)
	require.NoError(t, err)
	expired, err := Issue("stu-1", RoleStudent, issuer, key, -time.Minute, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: RoleAdmin}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name, token, key, issuer string
	}{
		{"wrong key", good.AccessToken, "other", issuer},
		{"wrong issuer", good.AccessToken, key, "someone-else"},
		{"expired", expired.AccessToken, key, issuer},
		{"alg none", none, key, ""},
		{"garbage", "not.a.token", key, issuer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.token, tt.key, tt.issuer)
			assert.Error(t, err)
		})
	}
}

func TestIssueValidatesInput(t *testing.T) {
	_, err := Issue("", RoleStudent, issuer, key, time.Minute, time.Hour)
	assert.Error(t, err)
	_, err = Issue("stu-1", "device", issuer, key, time.Minute, time.Hour)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Bearer(key, issuer), func(c *gin.Context) {
		c.String(http.StatusOK, Subject(c))
	})
	r.GET("/admin", Bearer(key, issuer), RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	student, err := Issue("stu-1", RoleStudent, issuer, key, time.Minute, time.Hour)
	require.NoError(t, err)
	admin, err := Issue("ops", RoleAdmin, issuer, key, time.Minute, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name, path, header string
		status             int
		body               string
	}{
		{"no header", "/me", "", http.StatusUnauthorized, ""},
		{"basic auth", "/me", "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized, ""},
		{"student", "/me", "Bearer " + student.AccessToken, http.StatusOK, "stu-1"},
		{"lowercase scheme", "/me", "bearer " + student.AccessToken, http.StatusOK, "stu-1"},
		{"student on admin route", "/admin", "Bearer " + student.AccessToken, http.StatusForbidden, ""},
		{"admin", "/admin", "Bearer " + admin.AccessToken, http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}
