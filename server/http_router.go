package server

import (
	"strings"
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-lru/types"
	"github.com/saiset-co/sai-lru/utils"
)

// FastHTTPRouter matches exact method and path pairs. The invoke server
// exposes a handful of fixed endpoints, so there is no pattern matching.
type FastHTTPRouter struct {
	routes map[string]map[string]types.FastHTTPHandler
	mu     sync.RWMutex
}

func NewFastHTTPRouter() *FastHTTPRouter {
	return &FastHTTPRouter{
		routes: make(map[string]map[string]types.FastHTTPHandler),
	}
}

func (r *FastHTTPRouter) Add(method, path string, handler types.FastHTTPHandler) {
	path = normalizePath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	methods, ok := r.routes[path]
	if !ok {
		methods = make(map[string]types.FastHTTPHandler)
		r.routes[path] = methods
	}
	methods[strings.ToUpper(method)] = handler
}

func (r *FastHTTPRouter) GET(path string, handler types.FastHTTPHandler) {
	r.Add(fasthttp.MethodGet, path, handler)
}

func (r *FastHTTPRouter) POST(path string, handler types.FastHTTPHandler) {
	r.Add(fasthttp.MethodPost, path, handler)
}

// Handler dispatches to the registered route, answering 404 for unknown
// paths and 405 for known paths with the wrong method.
func (r *FastHTTPRouter) Handler() types.FastHTTPHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := normalizePath(string(ctx.Path()))

		r.mu.RLock()
		methods, ok := r.routes[path]
		var handler types.FastHTTPHandler
		if ok {
			handler = methods[string(ctx.Method())]
		}
		r.mu.RUnlock()

		switch {
		case !ok:
			utils.CreateErrorResponse(ctx, fasthttp.StatusNotFound, "no route for "+path)
		case handler == nil:
			utils.CreateErrorResponse(ctx, fasthttp.StatusMethodNotAllowed, string(ctx.Method())+" not allowed on "+path)
		default:
			handler(ctx)
		}
	}
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
