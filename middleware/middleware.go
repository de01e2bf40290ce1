// Package middleware wraps HTTP handlers of the local invoke server.
package middleware

import (
	"github.com/saiset-co/sai-lru/types"
)

type Middleware func(next types.FastHTTPHandler) types.FastHTTPHandler

// Chain applies middlewares so that the first one listed runs outermost.
func Chain(handler types.FastHTTPHandler, middlewares ...Middleware) types.FastHTTPHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
