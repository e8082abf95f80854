// Package awsutil holds the AWS settings shared by the SSM and Secrets
// Manager backends.
package awsutil

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/systmms/secretproxy/internal/backends/props"
	dserrors "github.com/systmms/secretproxy/internal/errors"
)

// Config holds the connection settings common to AWS backends
type Config struct {
	Region      string
	AccessKey   string
	SecretKey   string
	UseIAM      bool
	FIPSEnabled bool
	Profile     string
	AssumeRole  string
	Endpoint    string // Optional custom endpoint for LocalStack or testing
}

// ParseConfig reads AWS settings from the secretStore properties.
// region is required (AWS_REGION is accepted as a fallback). Without
// use_iam both access_key and secret_key must be present.
func ParseConfig(backendType string, configMap map[string]interface{}) (Config, error) {
	cfg := Config{
		Region:     props.String(configMap, "region"),
		AccessKey:  props.String(configMap, "access_key"),
		SecretKey:  props.String(configMap, "secret_key"),
		Profile:    props.String(configMap, "profile"),
		AssumeRole: props.String(configMap, "assume_role"),
		Endpoint:   props.String(configMap, "endpoint"),
	}

	if cfg.Region == "" {
		cfg.Region = os.Getenv("AWS_REGION")
	}
	if cfg.Region == "" {
		return Config{}, dserrors.MissingProperty(backendType, "region")
	}

	var err error
	if cfg.UseIAM, err = props.BoolDefault(configMap, "use_iam", false); err != nil {
		return Config{}, dserrors.ConfigError{Field: "secretStore.use_iam", Message: err.Error()}
	}
	if cfg.FIPSEnabled, err = props.BoolDefault(configMap, "fips_enabled", false); err != nil {
		return Config{}, dserrors.ConfigError{Field: "secretStore.fips_enabled", Message: err.Error()}
	}

	if !cfg.UseIAM {
		if cfg.AccessKey == "" {
			return Config{}, dserrors.ConfigError{
				Field:      "secretStore.access_key",
				Message:    fmt.Sprintf("%s requires 'access_key' and 'secret_key' when use_iam is false", backendType),
				Suggestion: "Set use_iam: true to use the default AWS credential chain",
			}
		}
		if cfg.SecretKey == "" {
			return Config{}, dserrors.MissingProperty(backendType, "secret_key")
		}
	}

	return cfg, nil
}

// Load builds an aws.Config from c. Static keys win unless use_iam is set,
// in which case the default credential chain (env, shared config, ECS/EC2
// roles) is used. assume_role wraps whichever credentials were chosen.
func Load(ctx context.Context, c Config) (aws.Config, error) {
	var configOpts []func(*awsconfig.LoadOptions) error
	configOpts = append(configOpts, awsconfig.WithRegion(c.Region))

	if !c.UseIAM && c.AccessKey != "" && c.SecretKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}
	if c.Profile != "" {
		configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(c.Profile))
	}
	if c.FIPSEnabled {
		configOpts = append(configOpts, awsconfig.WithUseFIPSEndpoint(aws.FIPSEndpointStateEnabled))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if c.AssumeRole != "" {
		stsClient := sts.NewFromConfig(cfg)
		cfg.Credentials = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(stsClient, c.AssumeRole))
	}

	return cfg, nil
}

// ErrorCode returns the AWS API error code carried by err, or "".
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
