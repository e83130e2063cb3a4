package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"logbook/internal/db"
	"logbook/internal/events"
	"logbook/internal/idalloc"
	"logbook/internal/metrics"
	"logbook/internal/reports"
	"logbook/internal/server"
	"logbook/internal/storage"
	"logbook/internal/store"
	"logbook/internal/tools"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Start the HTTP API",
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := loadConfig(cCtx)
	if err != nil {
		return err
	}

	issuer := config.CognitoIssuer()
	if issuer == "" || config.CognitoClientID == "" {
		return fmt.Errorf("set COGNITO_CLIENT_ID and either COGNITO_ISSUER_URL or COGNITO_USER_POOL_ID")
	}

	logger := newLogger(config)

	awsConfig, err := loadAWSConfig(ctx, config)
	if err != nil {
		return err
	}

	cognitoClient := cognitoidentityprovider.NewFromConfig(awsConfig)
	objects := storage.NewS3Storage(awsConfig, storage.S3Options{
		Region:        config.AWSRegion,
		Endpoint:      config.S3Endpoint,
		PathStyle:     config.S3PathStyle,
		PublicBaseURL: config.StoragePublicBaseURL,
		MaxAttempts:   config.StorageMaxAttempts,
	})

	pool, err := db.Connect(ctx, config)
	if err != nil {
		return err
	}
	defer pool.Close()

	eventRepo := store.NewEventRepository(pool)
	toolRepo := store.NewToolRepository(pool)
	categoryRepo := store.NewCategoryRepository(pool)

	recorder := metrics.New()
	images := storage.NewBatchUploader(logger, objects, config.ToolImagesBucket, config.UploadConcurrency)

	eventManager := events.New(
		logger,
		eventRepo,
		toolRepo,
		objects,
		images,
		idalloc.New(eventRepo, config.PublicIDMaxAttempts),
		recorder,
		events.Options{
			DocumentsBucket:   config.EventDocumentsBucket,
			MaxUploadBytes:    config.MaxUploadBytes,
			ImageMaxDimension: config.ImageMaxDimension,
		},
	)

	registry := tools.New(
		logger,
		toolRepo,
		eventRepo,
		categoryRepo,
		objects,
		images,
		recorder,
		tools.Options{
			MaxUploadBytes:    config.MaxUploadBytes,
			ImageMaxDimension: config.ImageMaxDimension,
		},
	)

	generator := reports.NewGenerator(logger, eventRepo, recorder)

	jwkCache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return fmt.Errorf("failed to initialize jwk cache: %w", err)
	}

	jwksURL := fmt.Sprintf("%s/.well-known/jwks.json", issuer)

	err = jwkCache.Register(ctx, jwksURL)
	if err != nil {
		return fmt.Errorf("failed to register cognito jwks with cache: %w", err)
	}

	srv, err := server.New(
		config,
		logger,
		cognitoClient,
		eventManager,
		registry,
		generator,
		recorder,
		pool,
		jwkCache,
		jwksURL,
	)
	if err != nil {
		return err
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":        config.ServerPort,
			"environment": config.Environment,
		}).Infof("server starting http://localhost:%d", config.ServerPort)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Stop(shutdownCtx)
}
