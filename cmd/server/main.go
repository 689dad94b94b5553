package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/rabbitmq/amqp091-go"

	"github.com/antosomzi/traffic-sign-app/internal/app"
	"github.com/antosomzi/traffic-sign-app/internal/extract"
	"github.com/antosomzi/traffic-sign-app/internal/progress"
	"github.com/antosomzi/traffic-sign-app/internal/recording"
	"github.com/antosomzi/traffic-sign-app/internal/server"
	"github.com/antosomzi/traffic-sign-app/internal/task"
	"github.com/antosomzi/traffic-sign-app/internal/task/taskamqp"
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

		s3Client, err := app.NewS3Client(ctx, &app.AWSClientParams{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		rdb, err := app.NewRedisClient(cfg.redisURL())
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		defer func() {
			_ = rdb.Close()
		}()

		mq, err := amqp091.Dial(cfg.amqpURL())
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		defer func() {
			_ = mq.Close()
		}()

		recordings := &recording.Store{Root: cfg.recordingsDir()}
		progressStore := &progress.Store{Redis: rdb}

		srv := server.New(&cfg.Server, slog.Default(), &server.Deps{
			Progress: progressStore,
			Extractor: &extract.Extractor{
				Progress:    progressStore,
				Validator:   &extract.Validator{},
				Recordings:  recordings,
				ScratchRoot: cfg.scratchDir(),
			},
			Coordinator: &task.Coordinator{
				Broker:     &taskamqp.Broker{MQ: mq},
				Recordings: recordings,
			},
			Recordings: recordings,
			Deleter: &recording.Deleter{
				Recordings: recordings,
				UploadDir:  cfg.uploadDir(),
			},
			Videos: &video.Mirror{
				S3:     s3Client,
				Bucket: cfg.S3Bucket,
				Prefix: cfg.S3VideoPrefix,
			},
			UploadDir: cfg.uploadDir(),
		})

		slog.Info("starting server", "addr", srv.Addr)
		err = srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		return 0
	}
	os.Exit(run())
}
