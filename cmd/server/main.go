package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sony/gobreaker"

	"github.com/wakala/payments/internal/api"
	"github.com/wakala/payments/internal/config"
	"github.com/wakala/payments/internal/domain"
	"github.com/wakala/payments/internal/events"
	"github.com/wakala/payments/internal/idempotency"
	"github.com/wakala/payments/internal/metrics"
	"github.com/wakala/payments/internal/orchestrator"
	"github.com/wakala/payments/internal/processor"
	"github.com/wakala/payments/internal/repository"
	"github.com/wakala/payments/internal/settlement"
)

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer closeStore.Close()

	if cfg.CacheSize > 0 {
		cached, err := idempotency.NewCachedStore(store, cfg.CacheSize)
		if err != nil {
			log.Fatalf("Failed to create outcome cache: %v", err)
		}
		store = cached
		log.Printf("Outcome cache enabled (%d entries)", cfg.CacheSize)
	}

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Processor client.
	var breaker *gobreaker.CircuitBreaker
	if cfg.BreakerFailures > 0 {
		breaker = processor.NewBreaker("processor", cfg.BreakerFailures, cfg.BreakerOpenDuration)
		log.Printf("Circuit breaker enabled (opens after %d consecutive failures)", cfg.BreakerFailures)
	}
	client := processor.NewClient(processor.Config{
		BaseURL:    cfg.ProcessorURL,
		AuthToken:  cfg.AuthToken,
		AuthHeader: cfg.AuthHeader,
		Timeout:    cfg.ProcessorTimeout,
		Breaker:    breaker,
	})

	// Outcome events.
	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		log.Printf("Publishing outcomes to kafka topic %s", cfg.KafkaTopic)
	}
	notifier := events.NewNotifier(publisher, 5*time.Second)

	// Services.
	poller := settlement.NewPoller(client, cfg.PollInterval, cfg.PollTimeout, m)
	guard := idempotency.NewGuard(store, cfg.Policy)
	guard.OnOutcome(notifier.Notify)
	svc := orchestrator.NewService(client, poller, guard, m)

	router := api.NewRouter(svc, metrics.Handler(reg))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Card payment orchestrator")
	log.Printf("Processor: %s (poll every %s, settle within %s)", cfg.ProcessorURL, cfg.PollInterval, cfg.PollTimeout)
	log.Printf("Idempotency store: %s, policy %s", cfg.StoreBackend, cfg.Policy)
	log.Printf("Listening on http://localhost:%s", cfg.Port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  POST   /card/{cardId}/payment")
	log.Printf("  GET    /payments/{key}")
	log.Printf("  GET    /reconciliation")
	log.Printf("  GET    /health")
	log.Printf("  GET    /metrics")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down")

	// In-flight orchestrations may need the whole settlement window and a
	// capture call.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.PollTimeout+2*cfg.ProcessorTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARNING: shutdown: %v", err)
	}
	if err := notifier.Close(); err != nil {
		log.Printf("WARNING: close publisher: %v", err)
	}
}

// openStore builds the configured backend. The returned closer releases it.
func openStore(cfg *config.Config) (idempotency.Store, io.Closer, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		log.Printf("Initializing database at %s", cfg.DBPath)
		db, err := repository.InitDB(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewOutcomeRepo(db)
		counts, err := repo.CountByStatus(context.Background())
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Printf("Database has %d success, %d failed, %d error outcomes",
			counts[domain.OutcomeSuccess], counts[domain.OutcomeFailed], counts[domain.OutcomeError])
		return repo, db, nil

	case config.BackendBolt:
		s, err := idempotency.OpenBoltStore(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case config.BackendRedis:
		s := idempotency.NewRedisStore(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s, nil

	default:
		return idempotency.NewMemoryStore(), nopCloser{}, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
