package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(manager *APIKeyManager) *gin.Engine {
	router := gin.New()
	router.Use(APIKeyMiddleware(manager))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func requestWithKey(router *gin.Engine, key string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", "/test", nil)
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestProperty_APIKeyValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	manager, err := NewAPIKeyManager(t.TempDir())
	require.NoError(t, err)

	validKey := manager.GetCurrentKey()
	router := newTestRouter(manager)

	properties.Property("valid_api_key_accepted", prop.ForAll(
		func(_ string) bool {
			return requestWithKey(router, validKey).Code == http.StatusOK
		},
		gen.AlphaString(),
	))

	properties.Property("missing_api_key_rejected", prop.ForAll(
		func(_ string) bool {
			return requestWithKey(router, "").Code == http.StatusUnauthorized
		},
		gen.AlphaString(),
	))

	properties.Property("wrong_api_key_rejected", prop.ForAll(
		func(key string) bool {
			if key == validKey {
				return true
			}
			return requestWithKey(router, key).Code == http.StatusUnauthorized
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

func TestResetKeyInvalidatesOldKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	manager, err := NewAPIKeyManager(t.TempDir())
	require.NoError(t, err)

	oldKey := manager.GetCurrentKey()
	router := newTestRouter(manager)

	assert.Equal(t, http.StatusOK, requestWithKey(router, oldKey).Code)

	newKey, err := manager.ResetKey()
	require.NoError(t, err)
	require.NotEqual(t, oldKey, newKey)

	assert.Equal(t, http.StatusUnauthorized, requestWithKey(router, oldKey).Code)
	assert.Equal(t, http.StatusOK, requestWithKey(router, newKey).Code)
}

func TestAPIKeySurvivesRestart(t *testing.T) {
	dataDir := t.TempDir()

	first, err := NewAPIKeyManager(dataDir)
	require.NoError(t, err)
	key := first.GetCurrentKey()
	require.Len(t, key, APIKeyLength*2)

	// A new manager over the same data dir must load the persisted key
	second, err := NewAPIKeyManager(dataDir)
	require.NoError(t, err)
	assert.Equal(t, key, second.GetCurrentKey())
	assert.True(t, second.ValidateKey(key))
}
