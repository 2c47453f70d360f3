package cache

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultTTL is the fallback TTL when none is configured
	DefaultTTL = 5 * time.Minute
)

// ETag returns a strong entity tag for a response body.
func ETag(body []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
}

// SetResponseHeaders adds validator and freshness headers to a response.
// A zero maxAge disables client-side caching.
func SetResponseHeaders(h http.Header, etag string, maxAge time.Duration, status Status) {
	if etag != "" {
		h.Set("ETag", etag)
	}
	if maxAge > 0 {
		h.Set("Cache-Control", fmt.Sprintf("max-age=%d", int(maxAge.Seconds())))
	} else {
		h.Set("Cache-Control", "no-cache")
	}
	if status != "" {
		h.Set("X-Cache", string(status))
	}
}

// NotModified reports whether the request's If-None-Match header matches etag.
func NotModified(req *http.Request, etag string) bool {
	if req == nil || etag == "" {
		return false
	}
	header := req.Header.Get("If-None-Match")
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
