// The mirror keeps the Redis document store in sync with the upstream
// change feed: driver apps, the dispatch backend and the payment
// webhooks publish document revisions to Kafka, and this process applies
// them to the per-collection hashes the dashboard subscribes to, then
// announces the change so live queries re-snapshot.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/taxi-ops/internal/config"
	"github.com/example/taxi-ops/internal/docstore"
	"github.com/example/taxi-ops/internal/logging"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mirror_messages_consumed_total",
		Help: "Total document change messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mirror_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	docsApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mirror_documents_applied_total",
		Help: "Total document revisions applied to redis",
	})
	applyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mirror_apply_errors_total",
		Help: "Total redis apply failures after retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, docsApplied, applyErrors)
}

// changeEvent is one upstream document revision. A null doc is a delete.
type changeEvent struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Doc        json.RawMessage `json:"doc"`
}

func (e changeEvent) valid() bool {
	switch e.Collection {
	case docstore.CollectionDrivers, docstore.CollectionTrips, docstore.CollectionUsers:
		return e.ID != ""
	}
	return false
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on (overrides METRICS_ADDR)")
	flag.Parse()

	cfg := config.LoadMirrorConfig()
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	logger := logging.NewLogger(cfg.LogLevel)

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	writer := &redisWriter{c: rc, prefix: cfg.RedisPrefix}

	// metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("mirror consuming", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down mirror")
				return
			}
			logger.Error("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var ev changeEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil || !ev.valid() {
			msgsInvalid.Inc()
			logger.Warn("invalid change message", "error", err, "offset", m.Offset)
			continue
		}

		if err := applyWithRetry(ctx, writer, ev, 3, 200*time.Millisecond); err != nil {
			applyErrors.Inc()
			logger.Error("redis apply failed", "collection", ev.Collection, "id", ev.ID, "error", err)
			continue
		}
		docsApplied.Inc()
	}
}

// DocWriter is the small subset of store operations the mirror needs,
// kept as an interface for tests.
type DocWriter interface {
	Apply(ctx context.Context, collection, id string, doc []byte) error
	Announce(ctx context.Context, collection, id string) error
}

type redisWriter struct {
	c      *redis.Client
	prefix string
}

func (r *redisWriter) Apply(ctx context.Context, collection, id string, doc []byte) error {
	key := docstore.CollectionKey(r.prefix, collection)
	if len(doc) == 0 || string(doc) == "null" {
		return r.c.HDel(ctx, key, id).Err()
	}
	return r.c.HSet(ctx, key, id, string(doc)).Err()
}

func (r *redisWriter) Announce(ctx context.Context, collection, id string) error {
	return r.c.Publish(ctx, docstore.EventsChannel(r.prefix, collection), id).Err()
}

// applyWithRetry writes a document revision and its invalidation with
// bounded retry/backoff. The announce must follow a successful apply or
// subscribers would re-read a stale snapshot.
func applyWithRetry(ctx context.Context, w DocWriter, ev changeEvent, attempts int, delay time.Duration) error {
	for i := 0; i < attempts; i++ {
		if err := w.Apply(ctx, ev.Collection, ev.ID, ev.Doc); err != nil {
			if i == attempts-1 {
				return err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		if err := w.Announce(ctx, ev.Collection, ev.ID); err != nil {
			if i == attempts-1 {
				return err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		return nil
	}
	return nil
}
