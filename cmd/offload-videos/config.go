package main

import (
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// config holds the application configuration.
type config struct {
	// DataDir is the shared storage root holding recordings.
	DataDir string `env:"TRAFFICSIGN_DATA_DIR"` // default: "/home/ec2-user"

	AWSRegion          string `env:"TRAFFICSIGN_AWS_REGION" envDefault:"us-east-2"`
	AWSAccessKeyID     string `env:"TRAFFICSIGN_AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"TRAFFICSIGN_AWS_SECRET_ACCESS_KEY"`

	S3Bucket      string `env:"TRAFFICSIGN_S3_BUCKET" envDefault:"traffic-sign-videos"`
	S3VideoPrefix string `env:"TRAFFICSIGN_S3_VIDEO_PREFIX" envDefault:"videos/"`

	// KeepLocal leaves local copies in place after upload.
	KeepLocal bool `env:"TRAFFICSIGN_OFFLOAD_KEEP_LOCAL"`
}

// parseConfig parses the application configuration from the environment variables.
func parseConfig(environ []string) (*config, error) {
	var cfg config

	err := env.ParseWithOptions(&cfg, env.Options{
		Environment: env.ToMap(environ),
	})
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *config) dataDir() string {
	d := c.DataDir
	if d == "" {
		d = "/home/ec2-user"
	}
	return d
}

func (c *config) recordingsDir() string {
	return filepath.Join(c.dataDir(), "recordings")
}
