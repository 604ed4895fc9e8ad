package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"limsd/internal/catalog"
	"limsd/internal/erp"
	"limsd/internal/events"
	"limsd/internal/identity"
	invhandler "limsd/internal/investigation/handler"
	invmetrics "limsd/internal/investigation/metrics"
	invsvc "limsd/internal/investigation/service"
	invstore "limsd/internal/investigation/store"
	notifhandler "limsd/internal/notification/handler"
	notifsvc "limsd/internal/notification/service"
	notifstore "limsd/internal/notification/store"
	"limsd/internal/platform/config"
	"limsd/internal/platform/httpserver"
	"limsd/internal/platform/logger"
	"limsd/internal/platform/metrics"
	"limsd/internal/platform/middleware"
	"limsd/internal/platform/redis"
	"limsd/internal/platform/sequence"
	qchandler "limsd/internal/qc/handler"
	qcmetrics "limsd/internal/qc/metrics"
	qcsvc "limsd/internal/qc/service"
	qcstore "limsd/internal/qc/store"
	samplehandler "limsd/internal/sample/handler"
	samplemetrics "limsd/internal/sample/metrics"
	samplesvc "limsd/internal/sample/service"
	samplestore "limsd/internal/sample/store"
)

// main wires stores, services, the event dispatcher, and the HTTP router.
// Business logic lives in the internal service packages; everything here is
// assembly and lifecycle.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	procMetrics := metrics.New()

	// Stores. Memory backends keep local development dependency-free; a
	// Postgres DSN switches everything to durable storage.
	var (
		cat interface {
			samplesvc.Catalog
			erp.Catalog
		}
		sampleStore samplesvc.Store
		chartStore  qcsvc.Store
		invStore    invsvc.Store
		notifStore  notifsvc.Store
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}

		// Chart ingestion goes through pgx for its tighter numeric handling;
		// the remaining stores share the pq connection pool.
		qcDB, err := qcstore.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open qc postgres: %w", err)
		}
		defer qcDB.Close()

		cat = catalog.NewPostgres(db)
		sampleStore = samplestore.NewPostgres(db)
		chartStore = qcstore.NewPostgres(qcDB)
		invStore = invstore.NewPostgres(db)
		notifStore = notifstore.NewPostgres(db)
		log.Info("using postgres storage")
	} else {
		mem := catalog.NewMemoryStore()
		catalog.SeedDev(mem)
		cat = mem
		sampleStore = samplestore.NewMemoryStore()
		chartStore = qcstore.NewMemoryStore()
		invStore = invstore.NewMemoryStore()
		notifStore = notifstore.NewMemoryStore()
		log.Info("using in-memory storage with seeded catalog")
	}

	// Document numbering. Redis keeps numbers unique across instances; the
	// memory fallback is fine for a single process.
	var seq sequence.Sequence = sequence.NewMemory()
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		seq = sequence.NewRedis(redisClient.Client)
		log.Info("using redis sequences")
	}

	// Workflow services. The dispatcher is created after the sink services
	// but injected into the emitting services, so events flow one way:
	// sample/qc -> dispatcher -> investigation/notification/kafka.
	notifService, err := notifsvc.New(notifStore, notifsvc.WithLogger(log))
	if err != nil {
		return err
	}
	invService, err := invsvc.New(invStore, seq, cfg.Investigation,
		invsvc.WithLogger(log),
		invsvc.WithMetrics(invmetrics.New(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		return err
	}

	sinks := []events.Sink{notifService, invService}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(ctx, cfg.Kafka)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		log.Info("kafka sink enabled", "topic", cfg.Kafka.Topic)
	}
	dispatcher := events.NewDispatcher(cfg.EventBuffer, sinks,
		events.WithLogger(log),
		events.WithMetrics(procMetrics),
	)

	// Investigations raise assignment notifications of their own, so they
	// emit back into the dispatcher. Emit never blocks, so the cycle is safe.
	invsvc.WithEmitter(dispatcher)(invService)

	sampleService, err := samplesvc.New(sampleStore, cat, seq,
		samplesvc.WithLogger(log),
		samplesvc.WithEmitter(dispatcher),
		samplesvc.WithMetrics(samplemetrics.New(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		return err
	}
	qcService, err := qcsvc.New(chartStore, cat,
		qcsvc.WithLogger(log),
		qcsvc.WithEmitter(dispatcher),
		qcsvc.WithMetrics(qcmetrics.New(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		return err
	}
	importer, err := erp.New(sampleStore, cat,
		erp.WithLogger(log),
		erp.WithEmitter(dispatcher),
	)
	if err != nil {
		return err
	}

	validator := identity.NewValidator(cfg.JWTSigningKey)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Instrument(procMetrics))
	r.Use(middleware.ContentTypeJSON)

	samplehandler.New(sampleService, log, validator).Register(r)
	qchandler.New(qcService, log, validator).Register(r)
	invhandler.New(invService, log, validator).Register(r)
	notifhandler.New(notifService, log, validator).Register(r)
	erp.NewHandler(importer, log, validator).Register(r)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting limsd", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
