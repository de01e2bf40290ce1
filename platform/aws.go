package platform

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-lru/types"
)

// lambdaAPI is the subset of the Lambda API client used here.
type lambdaAPI interface {
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
	UpdateFunctionCode(ctx context.Context, params *lambda.UpdateFunctionCodeInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error)
}

type AWSClient struct {
	api    lambdaAPI
	logger types.Logger
}

// NewAWSClient resolves credentials and region the usual SDK way
// (environment, shared config, execution role). region overrides the
// resolved region when set.
func NewAWSClient(ctx context.Context, region string, logger types.Logger) (*AWSClient, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, types.WrapError(err, "failed to load AWS config")
	}

	logger.Debug("AWS Lambda client created", zap.String("region", cfg.Region))

	return newAWSClient(lambda.NewFromConfig(cfg), logger), nil
}

func newAWSClient(api lambdaAPI, logger types.Logger) *AWSClient {
	return &AWSClient{api: api, logger: logger}
}

func (c *AWSClient) GetFunction(ctx context.Context, name string) (*FunctionInfo, error) {
	out, err := c.api.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(name),
	})
	if err != nil {
		return nil, err
	}

	info := &FunctionInfo{Name: name}
	if cfg := out.Configuration; cfg != nil {
		info.Name = aws.ToString(cfg.FunctionName)
		info.ARN = aws.ToString(cfg.FunctionArn)
		info.Version = aws.ToString(cfg.Version)
		info.CodeSHA256 = aws.ToString(cfg.CodeSha256)
		info.CodeSize = cfg.CodeSize
		info.LastModified = aws.ToString(cfg.LastModified)
	}

	return info, nil
}

// UpdateFunctionCode uploads archive and publishes a new version.
func (c *AWSClient) UpdateFunctionCode(ctx context.Context, name string, archive []byte) (*FunctionVersion, error) {
	out, err := c.api.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(name),
		ZipFile:      archive,
		Publish:      true,
	})
	if err != nil {
		return nil, err
	}

	return &FunctionVersion{
		ARN:        aws.ToString(out.FunctionArn),
		Version:    aws.ToString(out.Version),
		CodeSHA256: aws.ToString(out.CodeSha256),
		CodeSize:   out.CodeSize,
	}, nil
}
