package config

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/3leaps/goextract/internal/observability"
	"github.com/3leaps/goextract/pkg/client"
	"github.com/3leaps/goextract/pkg/job"
	"github.com/3leaps/goextract/pkg/jobregistry"
	"github.com/3leaps/goextract/pkg/source"
)

// PollingOptions returns the configured schedule, validated eagerly.
func (c *Config) PollingOptions() (job.PollingOptions, error) {
	return job.NewPollingOptions(c.Polling.InitialDelaySec, c.Polling.DelaySec, c.Polling.MaxRetries)
}

// ClientSettings converts the API and polling sections into client settings.
func (c *Config) ClientSettings() (client.Settings, error) {
	polling, err := c.PollingOptions()
	if err != nil {
		return client.Settings{}, err
	}
	return client.Settings{
		APIKey:    c.API.Key,
		Host:      c.API.Host,
		Timeout:   c.API.Timeout,
		RateLimit: c.API.RateLimit,
		UserAgent: c.API.UserAgent,
		Polling:   polling,
	}, nil
}

// NewLogger builds a logger from the logging section and installs it as
// the process logger (observability.L).
func (c *Config) NewLogger() (*zap.Logger, error) {
	return observability.Init(observability.Options{Level: c.Logging.Level, Format: c.Logging.Format})
}

// OpenRegistry opens the configured job registry. It returns nil when the
// driver is "none".
func (c *Config) OpenRegistry(ctx context.Context) (jobregistry.Registry, error) {
	switch c.Registry.Driver {
	case RegistryFile:
		return jobregistry.NewStore(c.Registry.Path), nil
	case RegistrySQLite:
		return jobregistry.OpenSQLite(ctx, c.Registry.Path)
	default:
		return nil, nil
	}
}

// NewS3Client builds an S3 client from the s3 section.
func (c *Config) NewS3Client(ctx context.Context) (*s3.Client, error) {
	return source.NewS3Client(ctx, c.S3)
}

// NewClient builds a client with the configured logger and registry. The
// returned registry (possibly nil) must be closed by the caller.
func (c *Config) NewClient(ctx context.Context, opts ...client.Option) (*client.Client, jobregistry.Registry, error) {
	settings, err := c.ClientSettings()
	if err != nil {
		return nil, nil, err
	}
	logger, err := c.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	registry, err := c.OpenRegistry(ctx)
	if err != nil {
		return nil, nil, err
	}

	base := []client.Option{client.WithLogger(logger)}
	if registry != nil {
		base = append(base, client.WithRegistry(registry))
	}
	cl, err := client.New(settings, append(base, opts...)...)
	if err != nil {
		if registry != nil {
			_ = registry.Close()
		}
		return nil, nil, err
	}
	return cl, registry, nil
}
