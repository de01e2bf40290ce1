package middleware

import (
	"runtime"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-lru/types"
	"github.com/saiset-co/sai-lru/utils"
)

// Recovery turns a panicking handler into a 500 and logs the panic with
// its stack.
func Recovery(logger types.Logger, metrics types.MetricsManager) Middleware {
	return func(next types.FastHTTPHandler) types.FastHTTPHandler {
		return func(ctx *fasthttp.RequestCtx) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				buf := make([]byte, 16384)
				n := runtime.Stack(buf, false)

				logger.Error("Recovered from panic",
					zap.Any("panic", rec),
					zap.ByteString("method", ctx.Method()),
					zap.ByteString("path", ctx.Path()),
					zap.ByteString("request_id", ctx.Request.Header.Peek(RequestIDHeader)),
					zap.String("stack", string(buf[:n])))

				if metrics != nil {
					metrics.Counter("http_panics_total", nil).Inc()
				}

				utils.CreateErrorResponse(ctx, fasthttp.StatusInternalServerError, "An unexpected error occurred")
			}()

			next(ctx)
		}
	}
}
