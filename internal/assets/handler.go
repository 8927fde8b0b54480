// internal/assets/handler.go
package assets

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Routes exposes the edge-deployable asset surface:
//
//	GET /{key}/{version}.json  -> payload, honoring If-None-Match with 304
//	GET /manifest              -> key/version/etag listing
func (m *Manager) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/manifest", m.handleManifest)
	r.Get("/{key}/{file}", m.handleAsset)
	return r
}

func (m *Manager) handleAsset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	file := chi.URLParam(r, "file")

	version := strings.TrimSuffix(file, ".json")
	if version == file {
		http.NotFound(w, r)
		return
	}

	asset, ok := m.lookup(key, version)
	if !ok {
		http.NotFound(w, r)
		return
	}

	etag := ETagFor(asset.Payload, asset.Version)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(asset.CacheType.MaxAge()))
	w.Header().Set("Last-Modified", asset.LastModified.UTC().Format(http.TimeFormat))

	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(asset.Payload)
}

func (m *Manager) handleManifest(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.Manifest())
}
