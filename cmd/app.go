package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"homesync/internal/auth"
	"homesync/internal/config"
	"homesync/internal/database"
	"homesync/internal/events"
	"homesync/internal/logging"
	"homesync/internal/metrics"
	"homesync/internal/shopping"
	"homesync/internal/store"

	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

// app holds the collaborators shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *gorm.DB
	store   *store.Store
	metrics *metrics.Collector
	keys    *auth.KeySet
}

// newApp loads the configuration and opens the database. Callers must Close
// the result. Validation is left to the command, since only serve needs the
// auth settings.
func newApp() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(database.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: config.Duration(cfg.Database.ConnMaxLifetime, 30*time.Minute),
		LogMode:         cfg.Log.Level == "debug",
	})
	if err != nil {
		logger.Sync()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		store:   store.New(db, cfg.GetQueryTimeout()),
		metrics: metrics.NewCollector(),
	}, nil
}

func (a *app) Close() {
	if a.keys != nil {
		a.keys.Close()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	a.logger.Sync()
}

// verifier builds the token verifier from the auth settings. The key set is
// fetched once here and then in the background until Close.
func (a *app) verifier(ctx context.Context) (*auth.Verifier, error) {
	opts := auth.VerifierOptions{
		Audience: a.cfg.Auth.Audience,
		Issuer:   a.cfg.Auth.Issuer,
		Leeway:   config.Duration(a.cfg.Auth.Leeway, 30*time.Second),
	}
	if a.cfg.Auth.HS256Secret != "" {
		opts.Secret = []byte(a.cfg.Auth.HS256Secret)
	}
	if a.cfg.Auth.JWKSURL != "" {
		keys, err := auth.NewKeySet(ctx, auth.KeySetOptions{
			URL:       a.cfg.Auth.JWKSURL,
			TTL:       config.Duration(a.cfg.Auth.JWKSTTL, 10*time.Minute),
			Logger:    a.logger.Named("jwks"),
			OnRefresh: a.metrics.RecordJWKSRefresh,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure token verification: %w", err)
		}
		a.keys = keys
		opts.Keys = keys
	}

	v, err := auth.NewVerifier(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to configure token verification: %w", err)
	}
	return v, nil
}

func (a *app) reconciler(publisher events.Publisher) *shopping.Reconciler {
	opts := []shopping.Option{
		shopping.WithLogger(a.logger.Named("shopping")),
		shopping.WithRecorder(a.metrics),
	}
	if publisher != nil {
		opts = append(opts, shopping.WithPublisher(publisher))
	}
	return shopping.NewReconciler(a.store, opts...)
}

// originChecker admits websocket handshakes from the configured CORS origins,
// or from anywhere when none are configured.
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
