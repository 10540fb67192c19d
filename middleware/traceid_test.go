package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracedRouter(capture *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceID())
	r.GET("/encounters", func(c *gin.Context) {
		*capture = GetTraceID(c)
		c.Status(http.StatusOK)
	})
	return r
}

func TestTraceID_GeneratesUUID(t *testing.T) {
	var got string
	r := newTracedRouter(&got)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/encounters", nil))

	require.NotEmpty(t, got)
	_, err := uuid.Parse(got)
	assert.NoError(t, err, "generated trace IDs are UUIDs")
	assert.Equal(t, got, w.Header().Get(TraceIDHeader))
}

func TestTraceID_KeepsClientSuppliedID(t *testing.T) {
	var got string
	r := newTracedRouter(&got)

	req := httptest.NewRequest(http.MethodGet, "/encounters", nil)
	req.Header.Set(TraceIDHeader, "dm-session-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "dm-session-7", got)
	assert.Equal(t, "dm-session-7", w.Header().Get(TraceIDHeader))
}

func TestTraceID_DistinctAcrossRequests(t *testing.T) {
	var got string
	r := newTracedRouter(&got)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/encounters", nil))
	first := got
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/encounters", nil))

	assert.NotEqual(t, first, got)
}

func TestGetTraceID_UntracedContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetTraceID(c))
}
