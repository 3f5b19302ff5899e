package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"imagegate/internal/cache"
	"imagegate/internal/keys"
	"imagegate/internal/origin"
	"imagegate/internal/signature"
	"imagegate/pkg/logging/logging"
)

const (
	HeaderOriginDecision = "X-Origin-Decision"
	HeaderEdgeCache      = "X-Edge-Cache"
)

// Resolver is the origin side of the handler. *origin.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, req *origin.Request) (*origin.Result, error)
}

// ImageHandler serves GET/HEAD image requests through the edge cache and
// the origin resolver.
type ImageHandler struct {
	Cache     cache.EdgeCache
	Policy    cache.Policy
	VersionID string
	Encoder   keys.Encoder
	Resolver  Resolver
	Verifier  *signature.Verifier
	// CORSOrigin is sent as Access-Control-Allow-Origin when non-empty.
	CORSOrigin string

	now func() time.Time
}

func NewImageHandler(
	c cache.EdgeCache,
	policy cache.Policy,
	versionID string,
	encoder keys.Encoder,
	resolver Resolver,
	verifier *signature.Verifier,
	corsOrigin string,
) *ImageHandler {
	return &ImageHandler{
		Cache:      c,
		Policy:     policy,
		VersionID:  versionID,
		Encoder:    encoder,
		Resolver:   resolver,
		Verifier:   verifier,
		CORSOrigin: corsOrigin,
		now:        time.Now,
	}
}

// ServeImage handles GET and HEAD on /*.
func (h *ImageHandler) ServeImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	h.writeCORS(w)

	// The escaped form is the only one that tells q%2Fr apart from q/r.
	path, err := keys.Canonical(strings.TrimPrefix(r.URL.EscapedPath(), "/"))
	if err != nil {
		logger.Warn("malformed_path", zap.String("path", r.URL.EscapedPath()), zap.Error(err))
		writeJSONError(w, http.StatusBadRequest, "bad_request")
		return
	}
	if path == "" {
		writeJSONError(w, http.StatusNotFound, "not_found")
		return
	}

	query := r.URL.Query()
	if err := h.Verifier.Verify(ctx, "/"+path, query.Get(cache.VaryQuery)); err != nil {
		if errors.Is(err, signature.ErrMissingSignature) || errors.Is(err, signature.ErrInvalidSignature) {
			logger.Warn("signature_rejected", zap.Error(err))
			writeJSONError(w, http.StatusForbidden, "forbidden")
			return
		}
		logger.Error("signature_check_failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_server_error")
		return
	}

	decoded := keys.Decode(path)
	storageKey := h.Encoder.Encode(path)
	key := cache.BuildEdgeKey(storageKey, r.Header, query, h.versionID())
	edgeKey := key.String()

	// ---- Edge cache lookup ----
	lookupStart := time.Now()
	cached, hit, cacheErr := h.Cache.Get(ctx, edgeKey)
	lookupLatency := time.Since(lookupStart)

	if cacheErr != nil {
		// Edge cache is best-effort; treat as miss.
		logger.Warn("edge_cache_get_error", zap.Error(cacheErr))
	}
	if hit {
		entry, err := cache.UnmarshalEntry(cached)
		if err != nil {
			logger.Warn("edge_cache_decode_error", zap.Error(err))
		} else {
			logger.Info("cache_decision",
				zap.String("cache_tier", "edge"),
				zap.String("storage_key", storageKey),
				zap.String("hash_key", key.Hash),
				zap.String("version_id", key.Generation),
				zap.Bool("cache_hit", true),
				zap.String("decision", entry.Decision),
				zap.Duration("cache_lookup_latency", lookupLatency),
				zap.Duration("total_latency", time.Since(start)),
			)
			h.writeEntry(w, r, entry, "hit")
			return
		}
	}

	// ---- Edge miss: resolve against the origins ----
	originStart := time.Now()
	res, err := h.Resolver.Resolve(ctx, &origin.Request{
		StorageKey: storageKey,
		Path:       decoded,
		Directives: keys.ParseDirectives(decoded.Filename),
		Query:      query,
		Header:     r.Header,
	})
	originLatency := time.Since(originStart)

	entry, ttl, ok := h.entryFor(res, err)
	if !ok {
		if ctx.Err() != nil {
			logger.Info("client_gone", zap.Error(ctx.Err()))
			return
		}
		logger.Error("origin_resolve_failed", zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, "bad_gateway")
		return
	}

	if ttl > 0 {
		h.store(ctx, logger, edgeKey, entry, ttl)
	}

	logger.Info("cache_decision",
		zap.String("cache_tier", "edge"),
		zap.String("storage_key", storageKey),
		zap.String("hash_key", key.Hash),
		zap.String("version_id", key.Generation),
		zap.Bool("cache_hit", false),
		zap.String("decision", entry.Decision),
		zap.Int("status", entry.Status),
		zap.Duration("edge_ttl", ttl),
		zap.Duration("cache_lookup_latency", lookupLatency),
		zap.Duration("origin_latency", originLatency),
		zap.Duration("total_latency", time.Since(start)),
	)

	h.writeEntry(w, r, entry, "miss")
}

// entryFor turns a resolution into the response to serve and its edge TTL.
// ok is false when err is not something the client should see verbatim.
func (h *ImageHandler) entryFor(res *origin.Result, err error) (*cache.Entry, time.Duration, bool) {
	if err != nil {
		var ue *origin.UpstreamError
		if !errors.As(err, &ue) {
			return nil, 0, false
		}
		ttl := h.Policy.TTL(ue.Status, "")
		return &cache.Entry{
			Status:       ue.Status,
			ContentType:  ue.ContentType,
			CacheControl: h.Policy.CacheControl(ttl),
			Decision:     origin.DecisionError.String(),
			StoredAt:     h.clock(),
			Body:         ue.Body,
		}, ttl, true
	}

	var ttl time.Duration
	if res.Decision == origin.DecisionDefaultImageFallback {
		// The substitute stands in for an error; don't pin it for a day.
		ttl = h.Policy.ErrorTTL
	} else {
		ttl = h.Policy.TTL(http.StatusOK, res.CacheControl)
	}
	return &cache.Entry{
		Status:       http.StatusOK,
		ContentType:  res.ContentType,
		CacheControl: h.Policy.CacheControl(ttl),
		ETag:         cache.ETag(res.Body),
		Decision:     res.Decision.String(),
		StoredAt:     h.clock(),
		Body:         res.Body,
	}, ttl, true
}

func (h *ImageHandler) store(ctx context.Context, logger *zap.Logger, key string, entry *cache.Entry, ttl time.Duration) {
	b, err := cache.MarshalEntry(entry)
	if err != nil {
		logger.Warn("edge_cache_encode_error", zap.Error(err))
		return
	}
	if err := h.Cache.Set(ctx, key, b, ttl); err != nil {
		logger.Warn("edge_cache_set_error", zap.Error(err))
	}
}

func (h *ImageHandler) writeEntry(w http.ResponseWriter, r *http.Request, e *cache.Entry, edge string) {
	hdr := w.Header()
	hdr.Set(HeaderOriginDecision, e.Decision)
	hdr.Set(HeaderEdgeCache, edge)
	hdr.Set("Vary", "Origin")
	if e.CacheControl != "" {
		hdr.Set("Cache-Control", e.CacheControl)
	}

	if e.Status >= 200 && e.Status < 300 {
		if e.ETag != "" {
			hdr.Set("ETag", e.ETag)
			if etagMatches(r.Header.Get("If-None-Match"), e.ETag) {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
		if !e.StoredAt.IsZero() {
			hdr.Set("Last-Modified", e.StoredAt.UTC().Format(http.TimeFormat))
		}
	}

	if len(e.Body) == 0 && e.Status >= 400 {
		writeJSONError(w, e.Status, errorCode(e.Status))
		return
	}

	if e.ContentType != "" {
		hdr.Set("Content-Type", e.ContentType)
	}
	hdr.Set("Content-Length", strconv.Itoa(len(e.Body)))
	w.WriteHeader(e.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(e.Body)
	}
}

func (h *ImageHandler) writeCORS(w http.ResponseWriter) {
	if h.CORSOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", h.CORSOrigin)
	}
}

func (h *ImageHandler) clock() time.Time {
	if h.now == nil {
		return time.Now()
	}
	return h.now()
}

func (h *ImageHandler) versionID() string {
	if h.VersionID == "" {
		return "v1"
	}
	return h.VersionID
}

// etagMatches reports whether an If-None-Match value names etag. The header
// may list several tags or be "*"; weak tags compare by their opaque part.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	if strings.TrimSpace(header) == "*" {
		return true
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, tag := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(tag), "W/") == want {
			return true
		}
	}
	return false
}

// errorCode renders a status as the snake_case code used in error bodies.
func errorCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}

func writeJSONError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
