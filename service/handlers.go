package service

import (
	"context"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-lru/dispatcher"
)

// LambdaHandler adapts the service to the Lambda runtime. Payloads are passed
// through untouched so request decoding, including the value default, stays
// in the dispatcher.
type LambdaHandler struct {
	service *Service
}

func (s *Service) LambdaHandler() *LambdaHandler {
	return &LambdaHandler{service: s}
}

func (h *LambdaHandler) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		ctx = dispatcher.WithInvocationID(ctx, lc.AwsRequestID)
	}

	out, err := h.service.Invoke(ctx, payload)
	if err != nil {
		h.service.logger().ErrorWithErrStack("Invocation failed", err,
			zap.String("invocation_id", dispatcher.InvocationID(ctx)))
		return nil, err
	}

	return out, nil
}
