package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests no route handled
const unmatchedRoute = "unmatched"

// Middleware records HTTP metrics per route template. Requests whose route
// is listed in skip (scrapes, health probes) are not recorded.
func Middleware(metrics *Metrics, skip ...string) gin.HandlerFunc {
	ignored := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		ignored[path] = struct{}{}
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if _, ok := ignored[route]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		if route == "" {
			route = unmatchedRoute
		}
		metrics.RecordHTTPRequest(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
			max(c.Request.ContentLength, 0),
			int64(max(c.Writer.Size(), 0)),
		)
	}
}

// Timer measures one operation
type Timer struct {
	start     time.Time
	metrics   *Metrics
	component string
	operation string
}

func NewTimer(metrics *Metrics, component, operation string) *Timer {
	return &Timer{
		start:     time.Now(),
		metrics:   metrics,
		component: component,
		operation: operation,
	}
}

// Stop records the elapsed time under status and returns it
func (t *Timer) Stop(status string) time.Duration {
	elapsed := time.Since(t.start)
	t.metrics.RecordOperation(t.component, t.operation, status, elapsed)
	return elapsed
}
