package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jacentio/canopy/backend/dynamo"
)

const (
	configFileName = "canopy"
	configFileType = "yaml"
	envPrefix      = "CANOPY"

	cfgKeyBackend         = "backend"
	cfgKeyDataset         = "dataset"
	cfgKeyEndpoint        = "endpoint"
	cfgKeyCredentialsFile = "credentials_file"
	cfgKeyAppName         = "application_name"
	cfgKeyAppVersion      = "application_version"
	cfgKeyTable           = "dynamodb.table"
	cfgKeyCounterTable    = "dynamodb.counter_table"
	cfgKeyShards          = "dynamodb.shards"
	cfgKeyAWSProfile      = "aws.profile"
	cfgKeyAWSRegion       = "aws.region"

	backendDynamoDB = "dynamodb"
	backendHTTP     = "http"
	backendMemory   = "memory"
)

// loadConfig reads canopy.yaml and CANOPY_* environment variables.
// Nested keys map to variables with "_", so dynamodb.table is
// CANOPY_DYNAMODB_TABLE. A missing canopy.yaml is not an error unless
// file names it explicitly.
func loadConfig(file string) (*viper.Viper, error) {
	defaults := dynamo.DefaultConfig()

	v := viper.New()
	v.SetDefault(cfgKeyBackend, backendDynamoDB)
	v.SetDefault(cfgKeyAppName, "canopy")
	v.SetDefault(cfgKeyAppVersion, version)
	v.SetDefault(cfgKeyTable, defaults.Table)
	v.SetDefault(cfgKeyCounterTable, defaults.CounterTable)
	v.SetDefault(cfgKeyShards, defaults.NumShards)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.canopy")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	return v, nil
}

// dynamoConfig builds the DynamoDB backend config from v.
func dynamoConfig(v *viper.Viper) dynamo.Config {
	return dynamo.Config{
		Table:        v.GetString(cfgKeyTable),
		CounterTable: v.GetString(cfgKeyCounterTable),
		NumShards:    v.GetInt(cfgKeyShards),
	}
}
