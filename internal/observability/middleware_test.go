package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/wpanctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLoggerLevelsAndParams(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)
	r := gin.New()
	r.Use(RequestLogger(logger))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/properties/:key", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, buf.String())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/properties/NCP:Channel", nil))
	line := buf.String()
	require.NotEmpty(t, line)
	assert.True(t, strings.Contains(line, `"level":"warn"`), line)
	assert.Contains(t, line, `"key":"NCP:Channel"`)
	assert.Contains(t, line, `"path":"/properties/:key"`)
}

func TestRequestMetricsUseRouteTemplate(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestMetricsMiddleware("wpan-metrics"))
	r.GET("/properties/:key", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/properties/A", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/properties/B", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(httpRequests.WithLabelValues("wpan-metrics", "GET", "/properties/:key", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("wpan-metrics", "GET", "unmatched", "404")))
}
