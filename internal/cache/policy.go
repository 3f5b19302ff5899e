package cache

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Variance dimensions. These are a wire contract: changing either one moves
// every request into a new key space.
const (
	VaryHeader = "origin"
	VaryQuery  = "signature"
)

// Policy bounds edge-cache lifetimes and names the request attributes that
// distinguish cache entries. All other headers and query parameters are
// ignored for lookup but still forwarded to the compute origin.
type Policy struct {
	DefaultTTL time.Duration
	MinTTL     time.Duration
	MaxTTL     time.Duration

	// ErrorTTL applies to cacheable 5xx responses and to substituted
	// fallback images.
	ErrorTTL time.Duration

	HeaderAllowList []string
	QueryAllowList  []string
}

// DefaultPolicy mirrors the distribution defaults: one day, bounded by one
// second and one year, with ten-minute error caching.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL:      24 * time.Hour,
		MinTTL:          time.Second,
		MaxTTL:          365 * 24 * time.Hour,
		ErrorTTL:        10 * time.Minute,
		HeaderAllowList: []string{VaryHeader},
		QueryAllowList:  []string{VaryQuery},
	}
}

// NewPolicy returns a validated policy with the fixed variance allow-lists.
func NewPolicy(defaultTTL, minTTL, maxTTL, errorTTL time.Duration) (Policy, error) {
	p := Policy{
		DefaultTTL:      defaultTTL,
		MinTTL:          minTTL,
		MaxTTL:          maxTTL,
		ErrorTTL:        errorTTL,
		HeaderAllowList: []string{VaryHeader},
		QueryAllowList:  []string{VaryQuery},
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate enforces 0 <= MinTTL <= DefaultTTL <= MaxTTL.
func (p Policy) Validate() error {
	if p.MinTTL < 0 || p.DefaultTTL < 0 || p.MaxTTL < 0 || p.ErrorTTL < 0 {
		return errors.New("cache policy: TTLs must be non-negative")
	}
	if p.MinTTL > p.DefaultTTL {
		return fmt.Errorf("cache policy: min TTL %s exceeds default TTL %s", p.MinTTL, p.DefaultTTL)
	}
	if p.DefaultTTL > p.MaxTTL {
		return fmt.Errorf("cache policy: default TTL %s exceeds max TTL %s", p.DefaultTTL, p.MaxTTL)
	}
	return nil
}

// TTL returns how long a response may live at the edge. Successful responses
// use their Cache-Control max-age (s-maxage wins) or DefaultTTL, clamped to
// [MinTTL, MaxTTL]. 500-504 use ErrorTTL. Anything else is not cached.
func (p Policy) TTL(status int, cacheControl string) time.Duration {
	switch {
	case status >= 200 && status < 300:
		ttl, ok := maxAge(cacheControl)
		if !ok {
			ttl = p.DefaultTTL
		}
		return p.clamp(ttl)
	case status >= http.StatusInternalServerError && status <= http.StatusGatewayTimeout:
		return p.ErrorTTL
	default:
		return 0
	}
}

// CacheControl renders the header sent to clients for a response cached for ttl.
func (p Policy) CacheControl(ttl time.Duration) string {
	if ttl <= 0 {
		return "no-store"
	}
	return "public, max-age=" + strconv.FormatInt(int64(ttl/time.Second), 10)
}

func (p Policy) clamp(ttl time.Duration) time.Duration {
	if ttl < p.MinTTL {
		return p.MinTTL
	}
	if ttl > p.MaxTTL {
		return p.MaxTTL
	}
	return ttl
}

// maxAgeSeconds keeps parsed ages clear of time.Duration overflow.
const maxAgeSeconds = int64(100 * 365 * 24 * 60 * 60)

// maxAge extracts s-maxage or max-age from a Cache-Control value.
func maxAge(cacheControl string) (time.Duration, bool) {
	var (
		age    time.Duration
		found  bool
		shared bool
	)
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "max-age" && name != "s-maxage" {
			continue
		}
		secs, err := strconv.ParseInt(strings.Trim(strings.TrimSpace(value), `"`), 10, 64)
		if err != nil || secs < 0 {
			continue
		}
		if secs > maxAgeSeconds {
			secs = maxAgeSeconds
		}
		if name == "s-maxage" {
			age, found, shared = time.Duration(secs)*time.Second, true, true
		} else if !shared {
			age, found = time.Duration(secs)*time.Second, true
		}
	}
	return age, found
}
