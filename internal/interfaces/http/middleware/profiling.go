package middleware

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
)

// Profiling tags pyroscope samples taken while serving a request with the
// route pattern, method and tenant, so CPU spent in webhook ingest can be
// told apart from the tenant API. Skipped paths get no labels.
func Profiling(enabled bool, skipPaths ...string) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		pyroscope.TagWrapper(c.Request.Context(), pyroscope.Labels(profilingLabels(c)...), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func profilingLabels(c *gin.Context) []string {
	route := c.FullPath()
	if route == "" {
		route = "unknown"
	}
	labels := []string{"route", route, "method", c.Request.Method}
	if id := GetJWTTenantID(c); id > 0 {
		labels = append(labels, "tenant_id", strconv.FormatInt(id, 10))
	}
	return labels
}
