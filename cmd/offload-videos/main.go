// Command offload-videos uploads recording videos to S3 and records the
// key in each status side-car, freeing space on shared storage. With no
// arguments it offloads every recording; recording ids can be passed to
// offload a subset.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/antosomzi/traffic-sign-app/internal/app"
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

		s3Client, err := app.NewS3Client(ctx, &app.AWSClientParams{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		recordings := &recording.Store{Root: cfg.recordingsDir()}
		offloader := &video.Offloader{
			Recordings: recordings,
			Videos: &video.Mirror{
				S3:     s3Client,
				Bucket: cfg.S3Bucket,
				Prefix: cfg.S3VideoPrefix,
			},
			KeepLocal: cfg.KeepLocal,
		}

		ids := os.Args[1:]
		if len(ids) == 0 {
			entries, err := recordings.List()
			if err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return 1
			}
			for _, e := range entries {
				ids = append(ids, e.RecordingID)
			}
		}

		failed := 0
		for _, id := range ids {
			key, err := offloader.Offload(ctx, id)
			switch {
			case errors.Is(err, video.ErrNoCameraFolder), errors.Is(err, video.ErrNoVideo):
				slog.Info("skipped", "recording_id", id, "reason", err)
			case err != nil:
				slog.Error("couldn't offload video", "recording_id", id, "err", err)
				failed++
			default:
				slog.Info("offloaded video", "recording_id", id, "key", key)
			}
		}

		if failed > 0 {
			_, _ = fmt.Fprintf(os.Stderr, "error: %d of %d recordings failed\n", failed, len(ids))
			return 1
		}
		return 0
	}
	os.Exit(run())
}
