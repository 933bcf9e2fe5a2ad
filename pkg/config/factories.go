package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/falachabt/zymupload/internal/logger"
	"github.com/falachabt/zymupload/pkg/journal"
	"github.com/falachabt/zymupload/pkg/remote"
	"github.com/falachabt/zymupload/pkg/remote/memory"
	remoteS3 "github.com/falachabt/zymupload/pkg/remote/s3"
)

// CreateRemoteStore creates a remote store based on configuration.
//
// This factory function uses the Type field to determine which store
// implementation to create, then decodes the type-specific configuration
// from the corresponding map and passes it to the store's constructor.
// When a rate limit is configured the store is wrapped so every remote
// API call passes through the limiter.
//
// Supported types:
//   - "s3": Uses pkg/remote/s3 (Amazon S3 or compatible storage)
//   - "memory": Uses pkg/remote/memory (in-memory storage, ephemeral)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Remote store configuration
//   - chunkSize: Streaming chunk size in bytes (from transfer config)
//
// Returns:
//   - remote.Store: Initialized remote store
//   - error: Configuration or initialization error
func CreateRemoteStore(ctx context.Context, cfg *RemoteConfig, chunkSize int64) (remote.Store, error) {
	var (
		store remote.Store
		err   error
	)

	switch cfg.Type {
	case "s3":
		store, err = createS3RemoteStore(ctx, cfg.S3, chunkSize)
	case "memory":
		store, err = createMemoryRemoteStore(ctx, cfg.Memory)
	default:
		return nil, fmt.Errorf("unknown remote store type: %q (supported: s3, memory)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit.RequestsPerSecond > 0 {
		store = remote.NewRateLimitedStore(store, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		logger.Info("Remote store rate limited: %d req/s (burst %d)",
			cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	return store, nil
}

// createMemoryRemoteStore creates an in-memory remote store.
func createMemoryRemoteStore(ctx context.Context, options map[string]any) (remote.Store, error) {
	// Check context before creating store
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The memory store has no options today; reject unknown keys early
	// instead of silently ignoring a typo'd section.
	if len(options) > 0 {
		type MemoryRemoteStoreOptions struct{}
		var storeOpts MemoryRemoteStoreOptions
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			ErrorUnused: true,
			Result:      &storeOpts,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create decoder: %w", err)
		}
		if err := decoder.Decode(options); err != nil {
			return nil, fmt.Errorf("failed to decode memory remote store options: %w", err)
		}
	}

	return memory.NewStore(), nil
}

// createS3RemoteStore creates an S3-based remote store.
func createS3RemoteStore(ctx context.Context, options map[string]any, chunkSize int64) (remote.Store, error) {
	// Define the configuration struct for the S3 remote store
	type S3RemoteStoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	// Decode the options into the config struct
	var storeCfg S3RemoteStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 remote store config: %w", err)
	}

	// Validate required fields
	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 remote store: bucket is required")
	}

	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 remote store: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	// Set region
	configOptions = append(configOptions, awsConfig.WithRegion(storeCfg.Region))

	// Set custom endpoint if provided (for MinIO, Localstack, etc.)
	if storeCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               storeCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Set credentials if provided, otherwise use default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Configure retries for better resilience against temporary S3 failures
	// Default to 10 retries if not specified (increased from AWS default of 3)
	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10 // Default: 10 attempts
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries // Retry for transient errors (502, 503, timeouts, etc.)
		})
	}))

	// Load AWS config
	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// Force path-style addressing for compatibility with MinIO/Localstack
		if storeCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Remote Store
	// ========================================================================

	store, err := remoteS3.NewStore(remoteS3.StoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
		ChunkSize: int(chunkSize),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 remote store: %w", err)
	}

	logger.Info("S3 remote store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}

// CreateJournal opens the transfer history journal when enabled.
//
// Returns nil without error when the journal is disabled; callers must
// handle the nil case.
func CreateJournal(cfg *JournalConfig) (*journal.Journal, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	j, err := journal.Open(journal.Config{Path: cfg.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open transfer journal: %w", err)
	}

	logger.Info("Transfer journal opened at %s", cfg.Path)
	return j, nil
}
