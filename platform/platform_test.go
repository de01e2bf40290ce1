package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/saiset-co/sai-lru/logger"
	"github.com/saiset-co/sai-lru/types"
)

type fakeClient struct {
	calls int
	err   error
}

func (f *fakeClient) GetFunction(_ context.Context, name string) (*FunctionInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &FunctionInfo{Name: name, Version: "$LATEST"}, nil
}

func (f *fakeClient) UpdateFunctionCode(_ context.Context, name string, archive []byte) (*FunctionVersion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &FunctionVersion{Version: "2", CodeSize: int64(len(archive))}, nil
}

func newBreaker(threshold int, recovery time.Duration, clock *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker(&types.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
		HalfOpenRequests: 1,
	}, logger.NewNopLogger(), "test")
	cb.now = func() time.Time { return *clock }
	return cb
}

func TestGuardedClientOpensAndFailsFast(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(1000, 0)
	impl := &fakeClient{err: errors.New("throttled")}
	client := NewGuardedClient(impl, newBreaker(2, time.Minute, &clock), logger.NewNopLogger(), nil)

	for i := 0; i < 2; i++ {
		if _, err := client.GetFunction(ctx, "fn"); !errors.Is(err, types.ErrPlatformCallFailed) {
			t.Fatalf("Call %d: expected ErrPlatformCallFailed, got %v", i, err)
		}
	}

	if client.BreakerState() != "open" {
		t.Fatalf("Expected open breaker, got %s", client.BreakerState())
	}

	if _, err := client.UpdateFunctionCode(ctx, "fn", []byte("zip")); !errors.Is(err, types.ErrCircuitBreakerOpen) {
		t.Fatalf("Expected ErrCircuitBreakerOpen, got %v", err)
	}
	if impl.calls != 2 {
		t.Errorf("Open breaker must not reach the platform, got %d calls", impl.calls)
	}

	// recovery: one successful probe closes it again
	clock = clock.Add(time.Minute)
	impl.err = nil

	version, err := client.UpdateFunctionCode(ctx, "fn", []byte("zip"))
	if err != nil {
		t.Fatalf("Half-open probe failed: %v", err)
	}
	if version.CodeSize != 3 {
		t.Errorf("Unexpected version %+v", version)
	}
	if client.BreakerState() != "closed" {
		t.Errorf("Expected closed breaker, got %s", client.BreakerState())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clock := time.Unix(1000, 0)
	cb := newBreaker(1, time.Second, &clock)

	cb.RecordFailure()
	if cb.CanExecute() {
		t.Fatal("Breaker should be open")
	}

	clock = clock.Add(2 * time.Second)
	if !cb.CanExecute() || cb.GetState() != StateBreakerHalfOpen {
		t.Fatal("Breaker should be half-open after the recovery timeout")
	}

	cb.RecordFailure()
	if cb.GetState() != StateBreakerOpen {
		t.Errorf("Failure in half-open must reopen, got %s", cb.GetStateString())
	}
}

func TestDisabledBreakerAlwaysExecutes(t *testing.T) {
	cb := NewCircuitBreaker(&types.CircuitBreakerConfig{Enabled: false, FailureThreshold: 1}, logger.NewNopLogger(), "test")
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	if !cb.CanExecute() || cb.GetStateString() != "disabled" {
		t.Errorf("Disabled breaker must never block, state %s", cb.GetStateString())
	}
}

func TestGuardedClientRejectsEmptyName(t *testing.T) {
	impl := &fakeClient{}
	client := NewGuardedClient(impl, NewCircuitBreaker(nil, logger.NewNopLogger(), "test"), logger.NewNopLogger(), nil)

	if _, err := client.GetFunction(context.Background(), ""); !errors.Is(err, types.ErrFunctionNameEmpty) {
		t.Errorf("Expected ErrFunctionNameEmpty, got %v", err)
	}
	if impl.calls != 0 {
		t.Error("Empty name must not reach the platform")
	}
}

type fakeLambdaAPI struct {
	updateInput *lambda.UpdateFunctionCodeInput
}

func (f *fakeLambdaAPI) GetFunction(_ context.Context, params *lambda.GetFunctionInput, _ ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error) {
	return &lambda.GetFunctionOutput{
		Configuration: &lambdatypes.FunctionConfiguration{
			FunctionName: params.FunctionName,
			FunctionArn:  aws.String("arn:aws:lambda:us-east-1:123456789012:function:" + aws.ToString(params.FunctionName)),
			Version:      aws.String("$LATEST"),
			CodeSize:     42,
		},
	}, nil
}

func (f *fakeLambdaAPI) UpdateFunctionCode(_ context.Context, params *lambda.UpdateFunctionCodeInput, _ ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error) {
	f.updateInput = params
	return &lambda.UpdateFunctionCodeOutput{
		Version:  aws.String("7"),
		CodeSize: int64(len(params.ZipFile)),
	}, nil
}

func TestAWSClient(t *testing.T) {
	ctx := context.Background()
	api := &fakeLambdaAPI{}
	client := newAWSClient(api, logger.NewNopLogger())

	info, err := client.GetFunction(ctx, "cache-fn")
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != "cache-fn" || info.Version != "$LATEST" || info.CodeSize != 42 {
		t.Errorf("Unexpected function info %+v", info)
	}

	version, err := client.UpdateFunctionCode(ctx, "cache-fn", []byte("PK"))
	if err != nil {
		t.Fatal(err)
	}
	if version.Version != "7" || version.CodeSize != 2 {
		t.Errorf("Unexpected version %+v", version)
	}

	if api.updateInput == nil || !api.updateInput.Publish || aws.ToString(api.updateInput.FunctionName) != "cache-fn" {
		t.Errorf("UpdateFunctionCode must publish a new version of the named function, got %+v", api.updateInput)
	}
}

func TestNewFunctionClientUnknownType(t *testing.T) {
	_, err := NewFunctionClient(context.Background(), &types.PlatformConfig{Type: "mainframe"}, logger.NewNopLogger(), nil)
	if !errors.Is(err, types.ErrPlatformTypeUnknown) {
		t.Errorf("Expected ErrPlatformTypeUnknown, got %v", err)
	}
}

func TestRegisterClient(t *testing.T) {
	RegisterClient("fake", func(config interface{}) (FunctionClient, error) {
		return &fakeClient{}, nil
	})

	client, err := NewFunctionClient(context.Background(), &types.PlatformConfig{Type: "fake"}, logger.NewNopLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.GetFunction(context.Background(), "fn"); err != nil {
		t.Errorf("Custom client call failed: %v", err)
	}
}
