package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/burrowgate/burrowgate/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logging.InitLogger(&logging.LogConfig{
		File:       filepath.Join(os.TempDir(), "burrowgate-middleware-test.log"),
		MaxSize:    1,
		MaxBackups: 1,
		MaxAge:     1,
	})
	os.Exit(m.Run())
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"empty header", "", ""},
		{"bearer form", "Bearer secret", "secret"},
		{"apikey form", "ApiKey secret", "secret"},
		{"raw form", "secret", "secret"},
		{"bearer lowercase scheme", "bearer secret", "secret"},
		{"apikey mixed case scheme", "APIKEY secret", "secret"},
		{"bearer double space", "Bearer  k", "k"},
		{"surrounding whitespace", "  Bearer secret  ", "secret"},
		{"scheme only", "Bearer ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractAPIKey(tt.header))
		})
	}
}

func newAdminRouter(apiKey string) *gin.Engine {
	router := gin.New()
	auth := NewAdminAuth(apiKey)
	router.GET("/admin", auth.RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid bearer", "Bearer K", http.StatusOK},
		{"valid apikey", "ApiKey K", http.StatusOK},
		{"valid raw", "K", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong key", "Bearer nope", http.StatusUnauthorized},
		{"scheme without key", "Bearer ", http.StatusUnauthorized},
	}

	router := newAdminRouter("K")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"error":"Unauthorized"`)
			}
		})
	}
}
