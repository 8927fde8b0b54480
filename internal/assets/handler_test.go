// internal/assets/handler_test.go
package assets

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"compat-optimizer/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleAsset_ServesPayload(t *testing.T) {
	m := NewManager("", 5*time.Second, logger.NewTestLogger(t))
	srv := httptest.NewServer(m.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/" + KeyScoringWeights + "/v1.7.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "public, max-age=7200", resp.Header.Get("Cache-Control"))
	assert.NotEmpty(t, resp.Header.Get("ETag"))
	assert.NotEmpty(t, resp.Header.Get("Last-Modified"))
}

func TestHandleAsset_ConditionalFetch304(t *testing.T) {
	m := NewManager("", 5*time.Second, logger.NewTestLogger(t))
	srv := httptest.NewServer(m.Routes())
	defer srv.Close()

	url := srv.URL + "/" + KeyTravelPreferences + "/v1.2.json"

	first, err := http.Get(url)
	require.NoError(t, err)
	first.Body.Close()
	etag := first.Header.Get("ETag")
	require.NotEmpty(t, etag)

	req, _ := http.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("If-None-Match", etag)
	second, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	second.Body.Close()

	assert.Equal(t, http.StatusNotModified, second.StatusCode)
}

func TestHandleAsset_StaleETagGetsFullResponse(t *testing.T) {
	m := NewManager("", 5*time.Second, logger.NewTestLogger(t))
	srv := httptest.NewServer(m.Routes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/"+KeyTravelPreferences+"/v1.2.json", nil)
	req.Header.Set("If-None-Match", `"stale"`)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleAsset_WrongVersionIs404(t *testing.T) {
	m := NewManager("", 5*time.Second, logger.NewTestLogger(t))
	srv := httptest.NewServer(m.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/" + KeyScoringWeights + "/v9.9.json")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/unknown-key/v1.0.json")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleManifest(t *testing.T) {
	m := NewManager("", 5*time.Second, logger.NewTestLogger(t))
	srv := httptest.NewServer(m.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/manifest")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
