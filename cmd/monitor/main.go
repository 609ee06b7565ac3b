package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/roadwatch/internal/config"
	"github.com/your-org/roadwatch/internal/detect"
	"github.com/your-org/roadwatch/internal/media"
	"github.com/your-org/roadwatch/internal/monitor"
	"github.com/your-org/roadwatch/internal/observability"
	"github.com/your-org/roadwatch/internal/queue"
	"github.com/your-org/roadwatch/internal/storage"
)

func cleanupClips(ctx context.Context, db *storage.PostgresStore, minio *storage.MinIOStore, retention int) {
	cameras, err := db.ListCameras(ctx)
	if err != nil {
		slog.Warn("cleanup: list cameras", "error", err)
		return
	}
	for _, cam := range cameras {
		prefix := fmt.Sprintf("clips/%s/", cam.ID.String())
		keys, err := minio.ListObjects(ctx, prefix)
		if err != nil {
			slog.Warn("cleanup: list objects", "prefix", prefix, "error", err)
			continue
		}
		if len(keys) <= retention {
			continue
		}
		toDelete := keys[:len(keys)-retention]
		if err := minio.DeleteObjects(ctx, toDelete); err != nil {
			slog.Warn("cleanup: delete objects", "prefix", prefix, "error", err)
			continue
		}
		slog.Info("cleanup: deleted old clips", "camera_id", cam.ID, "deleted", len(toDelete), "remaining", retention)
	}
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting roadwatch monitor service")

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	detector := detect.NewClient(cfg.Detection)
	decoder := &media.FFmpeg{}

	dispatcher := monitor.NewDispatcher(db, detector, producer)
	manager := monitor.NewManager(db, decoder, dispatcher, minioStore, producer, cfg.Monitor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start sessions for every camera already marked active.
	if err := manager.StartAll(ctx); err != nil {
		slog.Error("start monitoring sessions", "error", err)
	}

	// Control commands arrive on a raw NATS subject, not JetStream.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	sub, err := consumer.SubscribeControl(func(data []byte) {
		cmd, err := monitor.ParseCommand(data)
		if err != nil {
			slog.Error("parse command", "error", err)
			return
		}

		slog.Info("received command", "action", cmd.Action, "camera_id", cmd.CameraID)
		if err := manager.HandleCommand(ctx, cmd); err != nil {
			slog.Error("handle command", "error", err, "action", cmd.Action, "camera_id", cmd.CameraID)
		}
	})
	if err != nil {
		slog.Error("subscribe to control", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sub.Unsubscribe() }()

	// Clip cleanup goroutine
	if cfg.Monitor.ClipRetention > 0 {
		slog.Info("clip cleanup enabled", "retention", cfg.Monitor.ClipRetention)
		go func() {
			ticker := time.NewTicker(60 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					cleanupClips(ctx, db, minioStore, cfg.Monitor.ClipRetention)
				}
			}
		}()
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("monitor metrics listening", "addr", ":8081")
		if err := http.ListenAndServe(":8081", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down monitor...")
	cancel()
	manager.StopAll()

	// Give sessions time to stop
	time.Sleep(2 * time.Second)
	slog.Info("monitor stopped")
}
