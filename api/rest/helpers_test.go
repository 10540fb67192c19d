package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmcompanion/api/api/rest"
	"github.com/dmcompanion/api/config"
	"github.com/dmcompanion/api/image"
	"github.com/dmcompanion/api/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testBaseURL    = "http://localhost:8080"
	testDefaultPic = "uploads/characterPicDefault.jpg"
)

func jsonRequest(method, path string, body interface{}) *http.Request {
	var b []byte
	if body != nil {
		b, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func doRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	req := jsonRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	return doRequest(r, "POST", path, body, "")
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func newTestImages(t *testing.T) *image.Resolver {
	t.Helper()
	images, err := image.NewResolver(config.UploadsConfig{
		Dir:             t.TempDir(),
		DefaultPic:      testDefaultPic,
		DownloadTimeout: 2 * time.Second,
		OrphanTTL:       time.Hour,
	}, zap.NewNop())
	require.NoError(t, err)
	return images
}

// newCompanionRouter wires the character and encounter routes against a
// private in-memory DB, mirroring the route table in main.go.
func newCompanionRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.SetupTestDB(t)

	charH := rest.NewCharacterHandler(db, newTestImages(t), nil, testBaseURL, zap.NewNop())
	encH := rest.NewEncounterHandler(db, nil, testBaseURL, zap.NewNop())

	r := gin.New()
	chars := r.Group("/characters")
	chars.POST("", charH.Create)
	chars.GET("", charH.List)
	chars.GET("/:id", charH.Get)
	chars.PATCH("/:id", charH.Patch)
	chars.POST("/:id/image", charH.UpdateImage)
	chars.DELETE("/:id", charH.Delete)
	chars.DELETE("", charH.DeleteAll)

	encs := r.Group("/encounters")
	encs.POST("", encH.Create)
	encs.GET("", encH.List)
	encs.GET("/:id", encH.Get)
	encs.POST("/:id/setActive", encH.SetActive)
	encs.PATCH("/:id", encH.Patch)
	encs.DELETE("/:id", encH.Delete)
	encs.DELETE("", encH.DeleteAll)

	return r, db
}
