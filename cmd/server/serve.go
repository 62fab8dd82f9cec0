package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"meetings-backend/internal/auth"
	"meetings-backend/internal/cache"
	"meetings-backend/internal/config"
	"meetings-backend/internal/directory"
	"meetings-backend/internal/handlers"
	"meetings-backend/internal/hub"
	"meetings-backend/internal/ingest"
	"meetings-backend/internal/ledger"
	"meetings-backend/internal/logging"
	mw "meetings-backend/internal/middleware"
	"meetings-backend/internal/models"
	"meetings-backend/internal/natsbus"
	"meetings-backend/internal/reveal"
	"meetings-backend/internal/session"
	"meetings-backend/internal/storage"
	"meetings-backend/internal/workers"
)

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := connectDB(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := storage.Migrate(ctx, db.DB); err != nil {
			return err
		}
	}
	store := storage.NewStorage(db)

	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	g, gctx := errgroup.WithContext(ctx)

	// With NATS the audit trail goes through JetStream and the consumer
	// archives it; without it entries are written straight to Postgres.
	var sink ledger.AuditSink = ledger.StoreSink{Store: store}
	if cfg.NATS.URL != "" {
		natsClient, err := natsbus.Connect(cfg.NATS, logger)
		if err != nil {
			return err
		}
		defer natsClient.Close()
		sink = natsClient.LedgerSink()

		consumer := ingest.NewLedgerConsumer(natsClient.JS(), natsbus.StreamSubjects(cfg.NATS.Subject)[0], store, logger)
		g.Go(func() error { return consumer.Run(gctx) })
	} else {
		logger.Info("NATS not configured, audit entries go to postgres directly")
	}

	auditor := ledger.NewAuditor(cfg.Ledger.AuditBuffer, logger, sink)
	// The auditor outlives the HTTP server so in-flight spends still get
	// their audit entries; it is stopped after Shutdown returns.
	auditCtx, stopAudit := context.WithCancel(context.Background())
	defer stopAudit()
	g.Go(func() error { return auditor.Run(auditCtx) })
	accounts := ledger.New(store, auditor, cfg.Ledger.StartingTokens, logger)

	source, err := directory.NewSource(ctx, cfg.Dataset.URL, cfg.Dataset.S3)
	if err != nil {
		return err
	}
	dir := directory.New(source, logger)
	if err := dir.Reload(ctx); err != nil {
		logger.Warn("starting with an empty directory", zap.Error(err))
	}
	g.Go(func() error { return workers.RunDatasetRefresher(gctx, dir, cfg.Dataset.Refresh, logger) })

	events := hub.NewHub(logger)

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(store, accounts, issuer, redisClient, events, logger)
	authn := auth.Middleware(issuer, redisClient, logger)

	reveals := reveal.New(dir, store, accounts, events, reveal.Costs{
		models.RevealEmail:      cfg.Ledger.EmailCost,
		models.RevealScheduling: cfg.Ledger.SchedulingCost,
	}, cfg.Ledger.RevealTimeout, logger)
	sessions := session.NewService(store, accounts, reveals)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	authHandler := auth.NewHandler(authSvc, logger)
	r.Route("/auth", func(r chi.Router) {
		limited := mw.RateLimit(redisClient, "auth", cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateWindow)
		r.With(limited).Post("/signup", authHandler.SignUp)
		r.With(limited).Post("/login", authHandler.Login)
		r.With(authn).Post("/logout", authHandler.Logout)
		if cfg.Auth.GoogleEnabled() {
			google := auth.NewGoogleOAuth(cfg.Auth, cfg.Site.AppURL, authSvc, logger)
			r.Get("/oauth/google", google.Start)
			r.Get("/oauth/google/callback", google.Callback)
		}
	})

	api := handlers.New(handlers.Deps{
		Directory: dir,
		Reveals:   reveals,
		Sessions:  sessions,
		Users:     store,
		Events:    events,
		Stats:     redisClient,
		Probes:    map[string]handlers.Pinger{"postgres": store, "redis": redisClient},
		Site:      cfg.Site,
		StaticDir: cfg.HTTP.StaticDir,
		Logger:    logger,
	})
	api.RegisterRoutes(r, authn)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", cfg.HTTP.Addr), zap.Int("directory_rows", dir.Len()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		events.Close()
		err := server.Shutdown(shutdownCtx)
		stopAudit()
		return err
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}
