package middleware

import (
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-lru/types"
)

const RequestIDHeader = "X-Request-ID"

// RequestID makes sure every request carries an ID, generating one when the
// client sent none, and echoes it on the response.
func RequestID() Middleware {
	return func(next types.FastHTTPHandler) types.FastHTTPHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if len(ctx.Request.Header.Peek(RequestIDHeader)) == 0 {
				ctx.Request.Header.Set(RequestIDHeader, uuid.New().String())
			}

			next(ctx)

			ctx.Response.Header.SetBytesV(RequestIDHeader, ctx.Request.Header.Peek(RequestIDHeader))
		}
	}
}
