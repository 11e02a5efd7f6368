// The caregate server wires the enrollment lifecycle, the document
// verification pipeline, and the notification dispatcher behind one HTTP
// surface. Stores run on PostgreSQL when POSTGRES_DSN is set and fall back to
// in-memory implementations for local development.
package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"caregate/internal/authz"
	"caregate/internal/blobstore"
	"caregate/internal/document/claim"
	dochandler "caregate/internal/document/handler"
	docmetrics "caregate/internal/document/metrics"
	docservice "caregate/internal/document/service"
	docstore "caregate/internal/document/store"
	enrhandler "caregate/internal/enrollment/handler"
	enrservice "caregate/internal/enrollment/service"
	enrstore "caregate/internal/enrollment/store"
	"caregate/internal/extraction"
	ivstore "caregate/internal/interview/store"
	notifmetrics "caregate/internal/notification/metrics"
	notifservice "caregate/internal/notification/service"
	notifstore "caregate/internal/notification/store"
	"caregate/internal/platform/config"
	"caregate/internal/platform/httpserver"
	"caregate/internal/platform/logger"
	"caregate/internal/platform/metrics"
	"caregate/internal/platform/ratelimit"
	platformredis "caregate/internal/platform/redis"
	httptransport "caregate/internal/transport/http"
	"caregate/pkg/platform/audit/publisher"
	auditmem "caregate/pkg/platform/audit/store/memory"
	auditpg "caregate/pkg/platform/audit/store/postgres"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence. A DSN selects PostgreSQL; otherwise everything runs in
	// process memory.
	var db *sql.DB
	if cfg.Postgres.DSN != "" {
		var err error
		db, err = sql.Open("pgx", cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		defer db.Close()
	}

	var (
		enrollments enrstore.Store
		documents   docstore.Store
		interviews  ivstore.Store
		deliveries  notifstore.Store
		auditStore  publisher.Store
		aggregateTx enrservice.AggregateTx
	)
	if db != nil {
		enrollments = enrstore.NewPostgresStore(db)
		documents = docstore.NewPostgresStore(db)
		interviews = ivstore.NewPostgres(db)
		deliveries = notifstore.NewPostgresStore(db)
		auditStore = auditpg.New(db)
		aggregateTx = enrservice.NewSQLTx(db)
	} else {
		enrollments = enrstore.NewInMemoryStore()
		documents = docstore.NewInMemoryStore()
		interviews = ivstore.NewMemory()
		deliveries = notifstore.NewInMemoryStore()
		auditStore = auditmem.New()
		aggregateTx = enrservice.NewShardedTx()
	}

	// Processing claims. Redis serializes workers across processes; the
	// in-memory claimer covers single-process runs.
	var claimer claim.Claimer = claim.NewInMemoryClaimer()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		claimer = claim.NewRedisClaimer(redisClient.Client)
	}

	// Document content store, encrypted at rest.
	blobKey := sha256.Sum256([]byte(cfg.Blob.EncryptionKey))
	blobs, err := blobstore.NewEncrypted(blobstore.NewMemory(), blobKey[:])
	if err != nil {
		return err
	}

	gate := authz.NewPolicyGate()
	jwtService := authz.NewJWTService(cfg.Server.JWTSigningKey, "caregate", "caregate")
	auditPublisher := publisher.New(auditStore)
	httpMetrics := metrics.New()

	dispatcher := notifservice.New(deliveries, auditPublisher,
		cfg.Notification.TargetURL, []byte(cfg.Notification.SigningSecret),
		notifservice.WithLogger(log),
		notifservice.WithMetrics(notifmetrics.New()),
		notifservice.WithRetryPolicy(cfg.Notification.Retry),
		notifservice.WithHTTPClient(&http.Client{Timeout: cfg.Notification.Timeout}),
	)

	lifecycle := enrservice.New(enrollments, documents, interviews, gate, auditPublisher, aggregateTx,
		enrservice.WithLogger(log),
		enrservice.WithNotifier(dispatcher),
	)

	var extractor extraction.Client = &extraction.StubClient{}
	if cfg.Extraction.BaseURL != "" {
		extractor = extraction.NewHTTPClient(cfg.Extraction.BaseURL, cfg.Extraction.APIKey, cfg.Extraction.Timeout)
	} else {
		log.Warn("EXTRACTION_BASE_URL not set, using the in-process stub extractor")
	}
	pipeline := docservice.New(documents, enrollments, lifecycle, blobs, extractor, claimer, gate, auditPublisher,
		docservice.WithLogger(log),
		docservice.WithMetrics(docmetrics.New()),
		docservice.WithRetryPolicy(cfg.Extraction.Retry),
		docservice.WithConfidenceThreshold(cfg.Extraction.ConfidenceThreshold),
		docservice.WithMaxUploadBytes(cfg.Document.MaxUploadBytes),
	)
	pool := docservice.NewWorkerPool(pipeline, cfg.Document.Workers, 0, log)

	var limitStore ratelimit.Store = ratelimit.NewInMemoryStore()
	if redisClient != nil {
		limitStore = ratelimit.NewRedisStore(redisClient.Client)
	}
	uploadLimiter := ratelimit.Middleware(limitStore, cfg.RateLimit.UploadsPerMinute, time.Minute, log)

	router := httptransport.NewRouter(
		enrhandler.New(lifecycle, log, httpMetrics, jwtService),
		dochandler.New(pipeline, pool, log, httpMetrics, jwtService,
			dochandler.WithUploadLimiter(uploadLimiter)),
		httptransport.NewAuditHandler(auditPublisher, gate, log, httpMetrics, jwtService),
		httptransport.NewNotificationHandler(dispatcher, gate, log, httpMetrics, jwtService),
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(ctx) })
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error {
		log.Info("caregate server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("caregate server stopped")
	return nil
}
