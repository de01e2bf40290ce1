package middleware

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-lru/types"
)

// Logging logs every completed request, escalating the level for 4xx and
// 5xx responses, and records request counts and latency.
func Logging(logger types.Logger, metrics types.MetricsManager) Middleware {
	return func(next types.FastHTTPHandler) types.FastHTTPHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()

			next(ctx)

			duration := time.Since(start)
			status := ctx.Response.StatusCode()
			path := string(ctx.Path())

			fields := []zap.Field{
				zap.String("method", string(ctx.Method())),
				zap.String("path", path),
				zap.Int("status", status),
				zap.Duration("duration", duration),
				zap.String("remote_addr", ctx.RemoteIP().String()),
			}

			if requestID := ctx.Request.Header.Peek(RequestIDHeader); len(requestID) > 0 {
				fields = append(fields, zap.ByteString("request_id", requestID))
			}

			switch {
			case status >= 500:
				logger.Error("Request completed", fields...)
			case status >= 400:
				logger.Warn("Request completed", fields...)
			default:
				logger.Debug("Request completed", fields...)
			}

			if metrics != nil {
				metrics.Counter("http_requests_total", map[string]string{
					"path":   path,
					"status": strconv.Itoa(status),
				}).Inc()
				metrics.Histogram("http_request_duration_seconds",
					[]float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
					map[string]string{"path": path},
				).Observe(duration.Seconds())
			}
		}
	}
}
