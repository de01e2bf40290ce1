package server

import (
	"context"
	"errors"
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-lru/config"
	"github.com/saiset-co/sai-lru/dispatcher"
	"github.com/saiset-co/sai-lru/logger"
	"github.com/saiset-co/sai-lru/metrics"
	"github.com/saiset-co/sai-lru/middleware"
	"github.com/saiset-co/sai-lru/types"
)

type invokerFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (f invokerFunc) HandleRaw(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

func serve(handler types.FastHTTPHandler, method, path string, body string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	ctx.Request.SetBodyString(body)
	handler(ctx)
	return ctx
}

func TestRouterDispatch(t *testing.T) {
	router := NewFastHTTPRouter()
	router.GET("/health/", func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusOK) })
	router.POST("invoke", func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusAccepted) })

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{fasthttp.MethodGet, "/health", fasthttp.StatusOK},
		{fasthttp.MethodGet, "/health/", fasthttp.StatusOK},
		{fasthttp.MethodPost, "/invoke", fasthttp.StatusAccepted},
		{fasthttp.MethodGet, "/invoke", fasthttp.StatusMethodNotAllowed},
		{fasthttp.MethodGet, "/missing", fasthttp.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			ctx := serve(router.Handler(), tt.method, tt.path, "")
			if ctx.Response.StatusCode() != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, ctx.Response.StatusCode())
			}
		})
	}
}

func TestInvokeHandler(t *testing.T) {
	var gotID string
	ok := invokerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		gotID = dispatcher.InvocationID(ctx)
		return []byte(`{"value":"v","msg":"` + string(payload) + `"}`), nil
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.Header.Set(middleware.RequestIDHeader, "req-1")
	ctx.Request.SetBodyString("ping")
	InvokeHandler(ok, logger.NewNopLogger())(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("Expected 200, got %d", ctx.Response.StatusCode())
	}
	if string(ctx.Response.Body()) != `{"value":"v","msg":"ping"}` {
		t.Errorf("Unexpected body %s", ctx.Response.Body())
	}
	if gotID != "req-1" {
		t.Errorf("Expected invocation id req-1, got %q", gotID)
	}

	failing := invokerFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("disk full")
	})
	ctx = serve(InvokeHandler(failing, logger.NewNopLogger()), fasthttp.MethodPost, "/invoke", "{}")
	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", ctx.Response.StatusCode())
	}
}

func TestInvokeContextFollowsRequest(t *testing.T) {
	var tenant interface{}
	invoker := invokerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		tenant = ctx.Value("tenant")
		return payload, nil
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.SetUserValue("tenant", "blue")
	ctx.Request.SetBodyString("{}")
	InvokeHandler(invoker, logger.NewNopLogger())(ctx)

	if tenant != "blue" {
		t.Errorf("Expected the invocation context to carry request values, got %v", tenant)
	}
}

func TestServerLifecycle(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	cfg.Server = &types.ServerConfig{HTTP: &types.HTTPConfig{Host: "127.0.0.1", Port: 0, ShutdownTimeout: 1}}

	router := NewFastHTTPRouter()
	router.POST("/invoke", InvokeHandler(invokerFunc(func(_ context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	}), logger.NewNopLogger()))

	srv, err := NewHTTPServer(context.Background(), config.NewStaticManager(cfg), logger.NewNopLogger(), metrics.NewMemoryMetrics(logger.NewNopLogger(), nil), router)
	if err != nil {
		t.Fatal(err)
	}

	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(); !errors.Is(err, types.ErrServerAlreadyRunning) {
		t.Errorf("Expected ErrServerAlreadyRunning, got %v", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://" + srv.Addr() + "/invoke")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetBodyString(`{"operation":"get","key":"a"}`)

	if err := fasthttp.Do(req, resp); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode())
	}
	if len(resp.Header.Peek(middleware.RequestIDHeader)) == 0 {
		t.Error("Expected request id on response")
	}

	if err := srv.Stop(); err != nil {
		t.Fatal(err)
	}
	if srv.IsRunning() {
		t.Error("Expected server to be stopped")
	}
	if err := srv.Stop(); !errors.Is(err, types.ErrServerNotRunning) {
		t.Errorf("Expected ErrServerNotRunning, got %v", err)
	}
}

func TestNewHTTPServerRequiresConfig(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	cfg.Server = nil

	if _, err := NewHTTPServer(context.Background(), config.NewStaticManager(cfg), logger.NewNopLogger(), nil, NewFastHTTPRouter()); !errors.Is(err, types.ErrConfigIsNil) {
		t.Errorf("Expected ErrConfigIsNil, got %v", err)
	}
}
