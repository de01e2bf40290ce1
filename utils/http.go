package utils

import "github.com/valyala/fasthttp"

func WriteJSON(ctx *fasthttp.RequestCtx, status int, body []byte) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")

	if requestID := string(ctx.Request.Header.Peek("X-Request-ID")); requestID != "" {
		ctx.Response.Header.Set("X-Request-ID", requestID)
	}

	ctx.SetBody(body)
}

func CreateErrorResponse(ctx *fasthttp.RequestCtx, status int, message string) {
	body, err := Marshal(map[string]string{
		"error":   fasthttp.StatusMessage(status),
		"message": message,
	})
	if err != nil {
		body = []byte(`{"error":"Internal Server Error","message":"An unexpected error occurred"}`)
		status = fasthttp.StatusInternalServerError
	}

	WriteJSON(ctx, status, body)
}
