package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/antosomzi/traffic-sign-app/internal/app"
	"github.com/antosomzi/traffic-sign-app/internal/gpu"
	"github.com/antosomzi/traffic-sign-app/internal/pipeline"
	"github.com/antosomzi/traffic-sign-app/internal/recording"
	"github.com/antosomzi/traffic-sign-app/internal/video"
)

func main() {
	run := func() int {
		ctx := context.Background()

		cfg, err := parseConfig(os.Environ())
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		awsParams := &app.AWSClientParams{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Client, err := app.NewS3Client(ctx, awsParams)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		recordings := &recording.Store{Root: cfg.recordingsDir()}

		var runner pipeline.Runner
		if cfg.UseGPU {
			ec2Client, err := app.NewEC2Client(ctx, awsParams)
			if err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return 1
			}
			runner = &pipeline.GPURunner{
				Recordings: recordings,
				Orchestrator: &gpu.Orchestrator{
					EC2: ec2Client,
					Dialer: &gpu.KeyDialer{
						User:    cfg.GPU.SSHUser,
						KeyPath: cfg.GPU.SSHKeyPath,
						Timeout: cfg.GPU.SSHTimeout,
					},
					Recordings: recordings,
					Config:     cfg.GPU,
				},
				SettleDelay: cfg.NFSSettleDelay,
			}
		} else {
			runner = &pipeline.LocalRunner{
				Recordings: recordings,
				Script:     cfg.pipelineScript(),
			}
		}

		worker := &Worker{
			AMQPURL: cfg.amqpURL(),
			Dispatcher: &pipeline.Dispatcher{
				Recordings: recordings,
				Runner:     runner,
				Videos: &video.Mirror{
					S3:     s3Client,
					Bucket: cfg.S3Bucket,
					Prefix: cfg.S3VideoPrefix,
				},
			},
		}

		slog.Info("starting worker", "gpu", cfg.UseGPU)
		if err := worker.Run(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}
	os.Exit(run())
}
