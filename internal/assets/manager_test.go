// internal/assets/manager_test.go
package assets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"compat-optimizer/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, cdnEndpoint string) *Manager {
	return NewManager(cdnEndpoint, 5*time.Second, logger.NewTestLogger(t))
}

func TestGet_LocalCopy(t *testing.T) {
	m := newTestManager(t, "")

	res := m.Get(context.Background(), KeyPersonalityArchetypes, GetOptions{})

	require.True(t, res.Success)
	assert.Equal(t, "local", res.Source)
	assert.Equal(t, "v1.4", res.Version)
	assert.NotEmpty(t, res.ETag)
	assert.Equal(t, "public, max-age=43200", res.CacheControl)
	assert.True(t, json.Valid(res.Data))
}

func TestGet_UnknownKey(t *testing.T) {
	m := newTestManager(t, "")

	res := m.Get(context.Background(), "no-such-asset", GetOptions{})

	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.NotEmpty(t, res.Error)
}

func TestGet_CacheHeaderPolicy(t *testing.T) {
	tests := []struct {
		key    string
		maxAge string
	}{
		{KeyTravelPreferences, "public, max-age=86400"},   // static-data
		{KeyAlgorithmConfig, "public, max-age=3600"},      // algorithm-config
		{KeyPersonalityArchetypes, "public, max-age=43200"}, // personality-data
		{KeyScoringWeights, "public, max-age=7200"},       // scoring-weights
	}

	m := newTestManager(t, "")
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			res := m.Get(context.Background(), tt.key, GetOptions{})
			require.True(t, res.Success)
			assert.Equal(t, tt.maxAge, res.CacheControl)
		})
	}
}

func TestGet_PreferCDN(t *testing.T) {
	cdnPayload := `{"archetypes":["explorer"],"affinity":{"explorer":{"explorer":74}}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+KeyPersonalityArchetypes+"/v1.4.json", r.URL.Path)
		w.Write([]byte(cdnPayload))
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	res := m.Get(context.Background(), KeyPersonalityArchetypes, GetOptions{PreferCDN: true})

	require.True(t, res.Success)
	assert.Equal(t, "cdn", res.Source)
	assert.JSONEq(t, cdnPayload, string(res.Data))
}

func TestGet_CDNFailureFallsBackSilently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	res := m.Get(context.Background(), KeyScoringWeights, GetOptions{PreferCDN: true})

	require.True(t, res.Success)
	assert.Equal(t, "local", res.Source)
	assert.Empty(t, res.Error)
}

func TestGet_CDNUnreachableFallsBack(t *testing.T) {
	// Port that nothing listens on.
	m := newTestManager(t, "http://127.0.0.1:1")

	res := m.Get(context.Background(), KeyScoringWeights, GetOptions{PreferCDN: true})

	require.True(t, res.Success)
	assert.Equal(t, "local", res.Source)
}

func TestETagFor_Stability(t *testing.T) {
	payload := json.RawMessage(`{"a":1}`)

	first := ETagFor(payload, "v1.0")
	second := ETagFor(payload, "v1.0")
	assert.Equal(t, first, second)

	changedPayload := ETagFor(json.RawMessage(`{"a":2}`), "v1.0")
	assert.NotEqual(t, first, changedPayload)

	changedVersion := ETagFor(payload, "v1.1")
	assert.NotEqual(t, first, changedVersion)
}

func TestUpdate_AutoIncrementsVersion(t *testing.T) {
	m := newTestManager(t, "")
	var invalidated atomic.Int32
	m.invalidateFn = func(key, version string) {
		invalidated.Add(1)
		assert.Equal(t, KeyScoringWeights, key)
		assert.Equal(t, "v1.8", version)
	}

	before := m.Get(context.Background(), KeyScoringWeights, GetOptions{})

	res, err := m.Update(KeyScoringWeights, json.RawMessage(`{"traitWeights":{"openness":1.0}}`), "")
	require.NoError(t, err)
	assert.Equal(t, "v1.8", res.Version)
	assert.NotEqual(t, before.ETag, res.ETag)

	// Invalidation is fire-and-forget; give it a beat.
	assert.Eventually(t, func() bool { return invalidated.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestUpdate_ExplicitVersion(t *testing.T) {
	m := newTestManager(t, "")
	m.invalidateFn = func(string, string) {}

	res, err := m.Update(KeyDemographicCurves, json.RawMessage(`{"ageGapPenalty":[]}`), "v2.0")
	require.NoError(t, err)
	assert.Equal(t, "v2.0", res.Version)
}

func TestUpdate_RejectsInvalidPayload(t *testing.T) {
	m := newTestManager(t, "")

	// personality-data requires archetypes + affinity
	_, err := m.Update(KeyPersonalityArchetypes, json.RawMessage(`{"oops":true}`), "")
	assert.Error(t, err)

	// registry copy untouched
	res := m.Get(context.Background(), KeyPersonalityArchetypes, GetOptions{})
	assert.Equal(t, "v1.4", res.Version)
}

func TestUpdate_UnknownKey(t *testing.T) {
	m := newTestManager(t, "")

	_, err := m.Update("no-such-asset", json.RawMessage(`{}`), "")
	assert.Error(t, err)
}

func TestGet_ConcurrentWithUpdate(t *testing.T) {
	m := newTestManager(t, "")
	m.invalidateFn = func(string, string) {}

	done := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				res := m.Get(context.Background(), KeyScoringWeights, GetOptions{})
				assert.True(t, res.Success)
				// Data, Version and ETag must come from one snapshot of the
				// asset, never a mix of old and new fields.
				assert.Equal(t, ETagFor(res.Data, res.Version), res.ETag)
			}
		}()
	}

	for i := 0; i < 50; i++ {
		payload := json.RawMessage(`{"traitWeights":{"openness":0.` + strconv.Itoa(i%10) + `}}`)
		_, err := m.Update(KeyScoringWeights, payload, "")
		require.NoError(t, err)
	}

	close(done)
	readers.Wait()
}

func TestBatchLoad_PartialFailureDoesNotAbort(t *testing.T) {
	m := newTestManager(t, "")

	out := m.BatchLoad(context.Background(), []string{
		KeyScoringWeights,
		"missing-one",
		KeyTravelPreferences,
	}, GetOptions{})

	assert.Equal(t, 2, out.Succeeded)
	assert.Equal(t, 1, out.Failed)
	assert.Len(t, out.Results, 3)
	assert.True(t, out.Results[KeyScoringWeights].Success)
	assert.False(t, out.Results["missing-one"].Success)
}

func TestNextVersion(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"v1.2", "v1.3"},
		{"v2.0", "v2.1"},
		{"v1.9", "v1.10"},
		{"weird", "weird.1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, nextVersion(tt.in))
	}
}

func TestManifest(t *testing.T) {
	m := newTestManager(t, "")

	manifest := m.Manifest()
	assert.Len(t, manifest, 6)
	for _, entry := range manifest {
		assert.NotEmpty(t, entry.Key)
		assert.NotEmpty(t, entry.Version)
		assert.NotEmpty(t, entry.ETag)
	}
}
