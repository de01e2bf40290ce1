package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/saiset-co/sai-lru/packager"
	"github.com/saiset-co/sai-lru/platform"
	"github.com/saiset-co/sai-lru/types"
	"github.com/saiset-co/sai-lru/utils"
)

const testConfig = `name: sai-lru-test
version: 0.0.1
logger:
  type: nop
  level: error
cache:
  max_items: 2
snapshot:
  type: file
  path: %s
redeploy:
  function_name: cache-fn
metrics:
  enabled: true
  type: memory
health:
  enabled: true
`

type fakeClient struct {
	mu      sync.Mutex
	archive []byte
}

func (f *fakeClient) GetFunction(_ context.Context, name string) (*platform.FunctionInfo, error) {
	return &platform.FunctionInfo{Name: name, Version: "3"}, nil
}

func (f *fakeClient) UpdateFunctionCode(_ context.Context, name string, archive []byte) (*platform.FunctionVersion, error) {
	f.mu.Lock()
	f.archive = archive
	f.mu.Unlock()
	return &platform.FunctionVersion{Version: "4", CodeSize: int64(len(archive))}, nil
}

func writeConfig(t *testing.T) (configPath, snapshotPath string) {
	t.Helper()

	for _, key := range []string{"CACHE_MAX_ITEMS", "AWS_LAMBDA_FUNCTION_NAME", "LAMBDA_TASK_ROOT", "SAI_LRU_SNAPSHOT_PATH", "SAI_LRU_REDEPLOY"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	snapshotPath = filepath.Join(dir, "cache.json")
	configPath = filepath.Join(dir, "config.yml")

	if err := os.WriteFile(configPath, []byte(fmt.Sprintf(testConfig, snapshotPath)), 0o644); err != nil {
		t.Fatal(err)
	}
	return configPath, snapshotPath
}

func invoke(t *testing.T, svc *Service, request string) types.Response {
	t.Helper()

	out, err := svc.Invoke(context.Background(), []byte(request))
	if err != nil {
		t.Fatalf("Invoke(%s): %v", request, err)
	}

	var resp types.Response
	if err := utils.Unmarshal(out, &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestServiceInvoke(t *testing.T) {
	configPath, snapshotPath := writeConfig(t)

	svc, err := NewService(context.Background(), configPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}

	invoke(t, svc, `{"operation":"set","key":"a","value":"1"}`)
	invoke(t, svc, `{"operation":"set","key":"b","value":"2"}`)
	invoke(t, svc, `{"operation":"set","key":"c","value":"3"}`)

	if resp := invoke(t, svc, `{"operation":"get","key":"a"}`); resp.Msg != types.MsgKeyNotInCache {
		t.Errorf("Expected a to be evicted, got %+v", resp)
	}
	if resp := invoke(t, svc, `{"operation":"get","key":"c"}`); resp.Value != "3" {
		t.Errorf("Expected 3, got %+v", resp)
	}

	if _, err := os.Stat(snapshotPath); err != nil {
		t.Errorf("Expected snapshot at %s: %v", snapshotPath, err)
	}

	if err := svc.Redeploy(context.Background()); !errors.Is(err, types.ErrRedeployNotAvailable) {
		t.Errorf("Expected ErrRedeployNotAvailable, got %v", err)
	}

	if err := svc.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(); !errors.Is(err, types.ErrServiceIsNotRunning) {
		t.Errorf("Expected ErrServiceIsNotRunning, got %v", err)
	}
}

func TestServiceRedeploy(t *testing.T) {
	configPath, _ := writeConfig(t)
	client := &fakeClient{}

	svc, err := NewService(context.Background(), configPath, WithRedeploy(), WithFunctionClient(client))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = svc.Stop() }()

	invoke(t, svc, `{"operation":"set","key":"k","value":"v"}`)

	if err := svc.Redeploy(context.Background()); err != nil {
		t.Fatal(err)
	}

	client.mu.Lock()
	archive := client.archive
	client.mu.Unlock()

	entries, err := packager.Extract(archive)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Name != "bootstrap" || entries[1].Name != "cache.json" {
		t.Fatalf("Unexpected archive entries %+v", entries)
	}

	packaged, err := svc.Package(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(packaged) == 0 {
		t.Error("Expected a package")
	}
}

func TestLambdaHandler(t *testing.T) {
	configPath, _ := writeConfig(t)

	svc, err := NewService(context.Background(), configPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = svc.Stop() }()

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-42"})

	out, err := svc.LambdaHandler().Invoke(ctx, []byte(`{"operation":"set","key":"x"}`))
	if err != nil {
		t.Fatal(err)
	}

	var resp types.Response
	if err := utils.Unmarshal(out, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Value != types.DefaultRequestValue || resp.Msg != types.MsgSetSuccess {
		t.Errorf("Unexpected response %+v", resp)
	}

	out, err = svc.LambdaHandler().Invoke(ctx, []byte(`{"operation":"delete","key":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := utils.Unmarshal(out, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Value != types.NullValue || resp.Msg != types.MsgInvalidCommand {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestNewServiceMissingConfig(t *testing.T) {
	if _, err := NewService(context.Background(), filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Expected an error for a missing config file")
	}
}
