package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, header string) (string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware())
	var seen string
	router.GET("/", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(HeaderKey, header)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return seen, rec.Header().Get(HeaderKey)
}

func TestMiddlewareKeepsIncomingID(t *testing.T) {
	seen, echoed := serve(t, "abc-123")
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", echoed)
}

func TestMiddlewareReplacesMalformedID(t *testing.T) {
	for _, header := range []string{"", "has space", strings.Repeat("x", 200)} {
		seen, echoed := serve(t, header)
		_, err := uuid.Parse(seen)
		require.NoError(t, err, header)
		assert.Equal(t, seen, echoed)
	}
}
