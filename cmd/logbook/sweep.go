package main

import (
	"context"
	"fmt"

	"logbook/internal/db"
	"logbook/internal/storage"
	"logbook/internal/store"
	"logbook/internal/sweep"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var sweepCommand = &cli.Command{
	Name:  "sweep",
	Usage: "Delete stored photos and documents whose tool or event no longer exists",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Only report what would be deleted",
		},
		&cli.DurationFlag{
			Name:  "min-age",
			Usage: "Skip objects younger than this",
			Value: sweep.DefaultMinAge,
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger := newLogger(cfg)
		ctx := context.Background()

		awsConfig, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return err
		}

		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		objects := storage.NewS3Storage(awsConfig, storage.S3Options{
			Region:        cfg.AWSRegion,
			Endpoint:      cfg.S3Endpoint,
			PathStyle:     cfg.S3PathStyle,
			PublicBaseURL: cfg.StoragePublicBaseURL,
			MaxAttempts:   cfg.StorageMaxAttempts,
		})

		eventRepo := store.NewEventRepository(pool)
		toolRepo := store.NewToolRepository(pool)

		sweeper := sweep.New(logger, objects, nil, sweep.Options{
			DryRun: c.Bool("dry-run"),
			MinAge: c.Duration("min-age"),
		})

		results, err := sweeper.Run(ctx,
			sweep.Target{Bucket: cfg.ToolImagesBucket, Exists: toolRepo.ExistingToolIDs},
			sweep.Target{Bucket: cfg.EventDocumentsBucket, Exists: eventRepo.ExistingEventIDs},
		)
		for _, result := range results {
			logger.WithFields(logrus.Fields{
				"bucket":   result.Bucket,
				"scanned":  result.Scanned,
				"skipped":  result.Skipped,
				"orphaned": len(result.Orphaned),
				"deleted":  result.Deleted,
				"dry_run":  c.Bool("dry-run"),
			}).Info("sweep finished")
		}

		return err
	},
}
