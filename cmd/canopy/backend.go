package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/viper"

	"github.com/jacentio/canopy/backend/dynamo"
	"github.com/jacentio/canopy/backend/memory"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/transport/httprpc"
)

// newExecutor connects the backend named in v.
func newExecutor(ctx context.Context, v *viper.Viper, logger *slog.Logger) (store.Executor, error) {
	switch backend := v.GetString(cfgKeyBackend); backend {
	case backendDynamoDB:
		var opts []func(*config.LoadOptions) error
		if region := v.GetString(cfgKeyAWSRegion); region != "" {
			opts = append(opts, config.WithRegion(region))
		}
		if profile := v.GetString(cfgKeyAWSProfile); profile != "" {
			opts = append(opts, config.WithSharedConfigProfile(profile))
		}

		awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}

		x := dynamo.New(dynamodb.NewFromConfig(awsCfg), dynamoConfig(v))
		x.SetLogger(logger)
		logger.Debug("using dynamodb backend",
			"table", x.Config().Table,
			"shards", x.Config().NumShards,
		)
		return x, nil

	case backendHTTP:
		endpoint := v.GetString(cfgKeyEndpoint)
		dataset := v.GetString(cfgKeyDataset)
		opts := []httprpc.Option{
			httprpc.WithLogger(logger),
			httprpc.WithUserAgent(v.GetString(cfgKeyAppName), v.GetString(cfgKeyAppVersion)),
		}

		path := v.GetString(cfgKeyCredentialsFile)
		if path == "" {
			return httprpc.New(endpoint, dataset, opts...)
		}
		key, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read credentials: %w", err)
		}
		return httprpc.NewWithCredentials(ctx, endpoint, dataset, key, opts...)

	case backendMemory:
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}
