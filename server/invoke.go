package server

import (
	"context"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-lru/dispatcher"
	"github.com/saiset-co/sai-lru/middleware"
	"github.com/saiset-co/sai-lru/types"
	"github.com/saiset-co/sai-lru/utils"
)

type Invoker interface {
	HandleRaw(ctx context.Context, payload []byte) ([]byte, error)
}

// InvokeHandler feeds the request body to the dispatcher as one invocation.
// Persistence failures become 500 responses; everything else, malformed
// bodies included, is answered by the dispatcher itself. Storage I/O runs
// under the request context and stops with the server.
func InvokeHandler(invoker Invoker, logger types.Logger) types.FastHTTPHandler {
	return func(ctx *fasthttp.RequestCtx) {
		invocationCtx := dispatcher.WithInvocationID(ctx, string(ctx.Request.Header.Peek(middleware.RequestIDHeader)))

		out, err := invoker.HandleRaw(invocationCtx, ctx.PostBody())
		if err != nil {
			logger.ErrorWithErrStack("Invocation failed", err,
				zap.ByteString("request_id", ctx.Request.Header.Peek(middleware.RequestIDHeader)))
			utils.CreateErrorResponse(ctx, fasthttp.StatusInternalServerError, err.Error())
			return
		}

		utils.WriteJSON(ctx, fasthttp.StatusOK, out)
	}
}
