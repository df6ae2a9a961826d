package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey  = "response_meta"
	cacheHitKey      = "cache_hit"
	processingTimeMs = "processing_time_ms"
	cacheHeader      = "X-Cache"
)

// responseMeta collects envelope metadata over the life of one request.
type responseMeta struct {
	start  time.Time
	values map[string]interface{}
}

// WithResponseMeta starts the request clock and the metadata collector.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{start: time.Now(), values: map[string]interface{}{}})
		c.Next()
	}
}

func metaOf(c *gin.Context, create bool) *responseMeta {
	if value, ok := c.Get(responseMetaKey); ok {
		if meta, ok := value.(*responseMeta); ok {
			return meta
		}
	}
	if !create {
		return nil
	}
	meta := &responseMeta{values: map[string]interface{}{}}
	c.Set(responseMetaKey, meta)
	return meta
}

// SetMeta records key for the response envelope.
func SetMeta(c *gin.Context, key string, value interface{}) {
	metaOf(c, true).values[key] = value
}

// SetCacheHit records whether the payload came from cache and mirrors it in X-Cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, cacheHitKey, hit)
	if hit {
		c.Header(cacheHeader, "HIT")
		return
	}
	c.Header(cacheHeader, "MISS")
}

// ExtractMeta returns a copy of the collected metadata, stamped with the
// elapsed time when WithResponseMeta started the clock. It is nil when nothing was collected.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	meta := metaOf(c, false)
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta.values)+1)
	for k, v := range meta.values {
		out[k] = v
	}
	if !meta.start.IsZero() {
		out[processingTimeMs] = time.Since(meta.start).Milliseconds()
	}
	return out
}
