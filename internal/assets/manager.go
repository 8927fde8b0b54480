// internal/assets/manager.go
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"compat-optimizer/internal/common/errors"
	commonhttp "compat-optimizer/internal/common/http"
	"compat-optimizer/internal/common/logger"
	"compat-optimizer/internal/common/metrics"
)

// CacheType selects the cache-header policy for an asset.
type CacheType string

const (
	StaticData      CacheType = "static-data"
	AlgorithmConfig CacheType = "algorithm-config"
	PersonalityData CacheType = "personality-data"
	ScoringWeights  CacheType = "scoring-weights"
)

// MaxAge returns the Cache-Control max-age in seconds for the cache type.
// These values are part of the edge-cache compatibility contract.
func (t CacheType) MaxAge() int {
	switch t {
	case StaticData:
		return 86400
	case AlgorithmConfig:
		return 3600
	case PersonalityData:
		return 43200
	case ScoringWeights:
		return 7200
	default:
		return 3600
	}
}

// Asset is a versioned reference dataset. The same key+version pair always
// yields a byte-identical payload; mutation requires a version bump.
type Asset struct {
	Key          string          `json:"key"`
	Version      string          `json:"version"`
	Payload      json.RawMessage `json:"payload"`
	CacheType    CacheType       `json:"cacheType"`
	LastModified time.Time       `json:"lastModified"`
}

// Result is the outcome of a single asset fetch. Unknown keys and fetch
// failures are reported here, never as panics.
type Result struct {
	Success      bool            `json:"success"`
	Key          string          `json:"key"`
	Data         json.RawMessage `json:"data"`
	Version      string          `json:"version,omitempty"`
	Source       string          `json:"source,omitempty"` // "cdn" or "local"
	LastModified time.Time       `json:"lastModified,omitempty"`
	CacheControl string          `json:"cacheControl,omitempty"`
	ETag         string          `json:"etag,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// BatchResult aggregates per-key outcomes of a batch load.
type BatchResult struct {
	Results   map[string]Result `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// GetOptions control a single fetch.
type GetOptions struct {
	PreferCDN bool
}

// Manager serves versioned reference datasets with edge-cache-friendly
// semantics. The rest of the system treats static config as a single Get
// call regardless of whether the answer comes from the remote edge cache or
// the embedded fallback copy.
type Manager struct {
	mu       sync.RWMutex
	registry map[string]*Asset

	cdnEndpoint string
	httpClient  *commonhttp.Client
	logger      logger.Logger

	// invalidateFn is called fire-and-forget after an update; replaced in
	// tests to observe invalidation attempts.
	invalidateFn func(key, version string)
}

// NewManager creates an asset manager seeded with the embedded default
// datasets.
func NewManager(cdnEndpoint string, cdnTimeout time.Duration, log logger.Logger) *Manager {
	m := &Manager{
		registry:    make(map[string]*Asset),
		cdnEndpoint: strings.TrimRight(cdnEndpoint, "/"),
		httpClient:  commonhttp.NewClient(cdnTimeout),
		logger:      log.WithFields(map[string]interface{}{"component": "asset-manager"}),
	}
	m.invalidateFn = m.invalidateEdge

	for _, a := range defaultAssets() {
		m.registry[a.Key] = a
	}
	return m
}

// ETagFor derives a stable hash over payload+version. Identical inputs always
// yield the identical ETag; changing either changes it.
func ETagFor(payload json.RawMessage, version string) string {
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte(version))
	return `"` + hex.EncodeToString(h.Sum(nil))[:32] + `"`
}

// Get looks up an asset by key. With PreferCDN it attempts the remote edge
// copy first and silently falls back to the embedded copy on any network or
// timeout failure; CDN unavailability never surfaces as a caller-visible
// error.
func (m *Manager) Get(ctx context.Context, key string, opts GetOptions) Result {
	m.mu.RLock()
	entry, ok := m.registry[key]
	var asset Asset
	if ok {
		// Copy while holding the lock; Update mutates the registry entry
		// in place.
		asset = *entry
	}
	m.mu.RUnlock()

	if !ok {
		return Result{
			Success: false,
			Key:     key,
			Error:   errors.NewAssetNotFoundError(key).Error(),
		}
	}

	if opts.PreferCDN && m.cdnEndpoint != "" {
		if data, err := m.fetchCDN(ctx, asset.Key, asset.Version); err == nil {
			metrics.AssetFetches.WithLabelValues("cdn").Inc()
			return m.resultFor(&asset, data, "cdn")
		} else {
			m.logger.Warn("cdn fetch failed, falling back to embedded copy", map[string]interface{}{
				"key":     key,
				"version": asset.Version,
				"error":   err,
			})
		}
	}

	metrics.AssetFetches.WithLabelValues("local").Inc()
	return m.resultFor(&asset, asset.Payload, "local")
}

func (m *Manager) resultFor(asset *Asset, data json.RawMessage, source string) Result {
	return Result{
		Success:      true,
		Key:          asset.Key,
		Data:         data,
		Version:      asset.Version,
		Source:       source,
		LastModified: asset.LastModified,
		CacheControl: fmt.Sprintf("public, max-age=%d", asset.CacheType.MaxAge()),
		ETag:         ETagFor(asset.Payload, asset.Version),
	}
}

func (m *Manager) fetchCDN(ctx context.Context, key, version string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/%s/%s.json", m.cdnEndpoint, key, version)

	req, err := nethttp.NewRequest(nethttp.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build cdn request: %w", err)
	}

	resp, err := m.httpClient.DoWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("cdn fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return nil, fmt.Errorf("cdn responded %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read cdn body: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("cdn payload for %s is not valid JSON", key)
	}
	return body, nil
}

// Update replaces the embedded copy of an asset. The payload is validated
// against the cache type's schema. When version is empty the trailing numeric
// component of the dotted version is incremented. Edge invalidation is
// fire-and-forget.
func (m *Manager) Update(key string, data json.RawMessage, version string) (Result, error) {
	m.mu.Lock()
	asset, ok := m.registry[key]
	if !ok {
		m.mu.Unlock()
		return Result{Success: false, Key: key}, errors.NewAssetNotFoundError(key)
	}

	if err := validatePayload(asset.CacheType, data); err != nil {
		m.mu.Unlock()
		return Result{Success: false, Key: key}, errors.NewAssetValidationFailedError(key, err.Error())
	}

	if version == "" {
		version = nextVersion(asset.Version)
	}

	asset.Payload = data
	asset.Version = version
	asset.LastModified = time.Now().UTC()
	updated := *asset
	m.mu.Unlock()

	go m.invalidateFn(key, version)

	m.logger.Info("static asset updated", map[string]interface{}{
		"key":     key,
		"version": version,
	})

	return m.resultFor(&updated, updated.Payload, "local"), nil
}

// invalidateEdge asks the edge cache to drop stale copies of a key.
// Best-effort: failures are logged and swallowed.
func (m *Manager) invalidateEdge(key, version string) {
	if m.cdnEndpoint == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/%s/invalidate", m.cdnEndpoint, key)
	req, err := nethttp.NewRequest(nethttp.MethodPost, url, nil)
	if err != nil {
		return
	}
	req.Header.Set("X-Asset-Version", version)

	resp, err := m.httpClient.DoWithContext(ctx, req)
	if err != nil {
		m.logger.Warn("edge invalidation failed", map[string]interface{}{
			"key":   key,
			"error": err,
		})
		return
	}
	resp.Body.Close()
}

// BatchLoad loads multiple keys concurrently. A failure on one key never
// aborts the batch.
func (m *Manager) BatchLoad(ctx context.Context, keys []string, opts GetOptions) BatchResult {
	type keyed struct {
		key string
		res Result
	}

	ch := make(chan keyed, len(keys))
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			ch <- keyed{key: k, res: m.Get(ctx, k, opts)}
		}(key)
	}
	wg.Wait()
	close(ch)

	out := BatchResult{Results: make(map[string]Result, len(keys))}
	for kr := range ch {
		out.Results[kr.key] = kr.res
		if kr.res.Success {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}
	return out
}

// Manifest lists every registered asset with its version and ETag, for edge
// deployment tooling.
func (m *Manager) Manifest() []Result {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Result, 0, len(m.registry))
	for _, asset := range m.registry {
		out = append(out, Result{
			Success:      true,
			Key:          asset.Key,
			Version:      asset.Version,
			LastModified: asset.LastModified,
			CacheControl: fmt.Sprintf("public, max-age=%d", asset.CacheType.MaxAge()),
			ETag:         ETagFor(asset.Payload, asset.Version),
		})
	}
	return out
}

// lookup returns the asset for the HTTP surface. Version must match exactly.
func (m *Manager) lookup(key, version string) (*Asset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	asset, ok := m.registry[key]
	if !ok || asset.Version != version {
		return nil, false
	}
	cp := *asset
	return &cp, true
}

// nextVersion increments the trailing numeric component of a dotted version
// string: "v1.2" -> "v1.3". Unparseable versions get ".1" appended.
func nextVersion(v string) string {
	idx := strings.LastIndex(v, ".")
	if idx < 0 || idx == len(v)-1 {
		return v + ".1"
	}
	n, err := strconv.Atoi(v[idx+1:])
	if err != nil {
		return v + ".1"
	}
	return v[:idx+1] + strconv.Itoa(n+1)
}
