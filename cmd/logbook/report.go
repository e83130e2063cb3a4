package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"logbook/internal/db"
	"logbook/internal/reports"
	"logbook/internal/store"
	"logbook/internal/validate"

	"github.com/k0kubun/pp/v3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var reportCommand = &cli.Command{
	Name:  "report",
	Usage: "Write the PDF usage report of events completed in a date range",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "from",
			Usage:    "First day, YYYY-MM-DD",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "to",
			Usage:    "Last day, YYYY-MM-DD",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "Output directory or file; defaults to the suggested file name",
		},
		&cli.BoolFlag{
			Name:  "dump",
			Usage: "Print the aggregated report instead of writing a PDF",
		},
	},
	Action: report,
}

func report(c *cli.Context) error {
	from, err := reports.ParseDate(c.String("from"), time.Local)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := reports.ParseDate(c.String("to"), time.Local)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}
	if err := validate.ReportRange(from, to); err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	generator := reports.NewGenerator(logger, store.NewEventRepository(pool), nil)

	result, err := generator.Generate(ctx, from, to)
	if err != nil {
		return err
	}

	if c.Bool("dump") {
		pp.Println(result)
		return nil
	}

	path := reports.FileName(result)
	if out := c.String("out"); out != "" {
		path = out
		if info, err := os.Stat(out); err == nil && info.IsDir() {
			path = filepath.Join(out, reports.FileName(result))
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := reports.WritePDF(f, result); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"path":   path,
		"events": result.TotalEvents,
	}).Info("report written")

	return nil
}
