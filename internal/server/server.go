package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"logbook/internal/events"
	"logbook/internal/metrics"
	"logbook/internal/reports"
	"logbook/internal/tools"
	"logbook/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/go-playground/form/v4"
	"github.com/gorilla/securecookie"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/sirupsen/logrus"
)

var decoder = form.NewDecoder()

// CognitoClient is the part of the Cognito API used for sign in and out.
type CognitoClient interface {
	InitiateAuth(ctx context.Context, params *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
	GlobalSignOut(ctx context.Context, params *cognitoidentityprovider.GlobalSignOutInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GlobalSignOutOutput, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	logger   *logrus.Logger
	config   *types.Config
	events   *events.Manager
	tools    *tools.Registry
	reports  *reports.Generator
	recorder *metrics.Recorder
	db       Pinger

	cognitoClient CognitoClient
	cookie        *securecookie.SecureCookie

	jwksCache *jwk.Cache
	jwksURL   string

	// authn guards the /api routes; RequireAuth outside of tests.
	authn func(http.Handler) http.Handler

	server *http.Server
}

func New(
	config *types.Config,
	logger *logrus.Logger,
	cognitoClient CognitoClient,
	eventManager *events.Manager,
	registry *tools.Registry,
	generator *reports.Generator,
	recorder *metrics.Recorder,
	db Pinger,
	jwkCache *jwk.Cache,
	jwksURL string,
) (*Service, error) {
	mux := flow.New()

	hashKey, err := base64.StdEncoding.DecodeString(config.CookieHashKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cookie hash key: %w", err)
	}
	blockKey, err := base64.StdEncoding.DecodeString(config.CookieBlockKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cookie block key: %w", err)
	}

	s := &Service{
		logger:        logger,
		config:        config,
		events:        eventManager,
		tools:         registry,
		reports:       generator,
		recorder:      recorder,
		db:            db,
		cognitoClient: cognitoClient,
		cookie:        securecookie.New(hashKey, blockKey),

		jwksCache: jwkCache,
		jwksURL:   jwksURL,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.ServerPort),
			Handler:           mux,
			ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
			ReadHeaderTimeout: time.Duration(config.ReadTimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(config.WriteTimeoutSec) * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}
	s.authn = s.RequireAuth

	s.buildRouter(mux)

	return s, nil
}

func (s *Service) Start() error {
	return s.server.ListenAndServe()
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Service) buildRouter(r *flow.Mux) {
	r.Use(s.RequestID)
	r.Use(s.StripTrailingSlash)
	r.Use(s.LoggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth, http.MethodGet)
	if s.recorder != nil {
		r.Handle("/metrics", s.recorder.Handler(), http.MethodGet)
	}

	r.HandleFunc("/api/login", s.handlePostLogin, http.MethodPost)
	r.HandleFunc("/api/logout", s.handlePostLogout, http.MethodPost)

	r.Group(func(r *flow.Mux) {
		r.Use(s.authn)

		r.HandleFunc("/api/categories", s.handleGetCategories, http.MethodGet)

		r.HandleFunc("/api/events", s.handleGetEvents, http.MethodGet)
		r.HandleFunc("/api/events", s.handlePostEvent, http.MethodPost)
		r.HandleFunc("/api/events/:publicID", s.handleGetEvent, http.MethodGet)
		r.HandleFunc("/api/events/:publicID", s.handlePatchEvent, http.MethodPatch)
		r.HandleFunc("/api/events/:publicID", s.handleDeleteEvent, http.MethodDelete)
		r.HandleFunc("/api/events/:publicID/start", s.handlePostStartEvent, http.MethodPost)
		r.HandleFunc("/api/events/:publicID/end", s.handlePostEndEvent, http.MethodPost)

		r.HandleFunc("/api/events/:publicID/tools", s.handleGetEventTools, http.MethodGet)
		r.HandleFunc("/api/events/:publicID/tools", s.handlePostTool, http.MethodPost)
		r.HandleFunc("/api/tools/:toolID", s.handleGetTool, http.MethodGet)
		r.HandleFunc("/api/tools/:toolID", s.handlePatchTool, http.MethodPatch)
		r.HandleFunc("/api/tools/:toolID", s.handleDeleteTool, http.MethodDelete)

		r.HandleFunc("/api/reports", s.handleGetReport, http.MethodGet)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.db.Ping(ctx); err != nil {
			s.logger.WithError(err).Error("health check failed to reach database")
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
