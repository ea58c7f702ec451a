package common

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the gin context key holding the request id
const RequestIDKey = "request_id"

// ApiMetric describes one served request
type ApiMetric struct {
	RequestID  string
	Endpoint   string
	Method     string
	StatusCode int
	DurationMs int
	ItemCount  int
	Errors     string
	Timestamp  time.Time
}

// MetricRecorder persists request metrics
type MetricRecorder interface {
	RecordMetric(ApiMetric) error
}

// MetricsMiddleware tags every request with an id and records its duration.
// recorder may be nil, in which case metrics are only logged.
func MetricsMiddleware(recorder MetricRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Generate request ID for tracing
		requestID := uuid.New().String()
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		startTime := time.Now()

		c.Next()

		// Handlers report how many catalog items they returned
		itemCount := 0
		if items, exists := c.Get("item_count"); exists {
			if n, ok := items.(int); ok {
				itemCount = n
			}
		}

		errors := ""
		if len(c.Errors) > 0 {
			errors = c.Errors.String()
		}

		metric := ApiMetric{
			RequestID:  requestID,
			Endpoint:   c.FullPath(),
			Method:     c.Request.Method,
			StatusCode: c.Writer.Status(),
			DurationMs: int(time.Since(startTime).Milliseconds()),
			ItemCount:  itemCount,
			Errors:     errors,
			Timestamp:  startTime,
		}

		if recorder == nil {
			return
		}
		// Save metric asynchronously
		go func() {
			if err := recorder.RecordMetric(metric); err != nil {
				log.Printf("Failed to record metric for %s: %v", metric.Endpoint, err)
			}
		}()
	}
}
