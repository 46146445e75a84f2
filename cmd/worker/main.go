package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/visionpipe/video-detection-service/domain"
	"github.com/visionpipe/video-detection-service/infrastructure"
	"github.com/visionpipe/video-detection-service/usecase"
)

func main() {
	cfg := infrastructure.LoadConfig()

	db := mustConnectDB(cfg)
	defer db.Close()

	queue, err := infrastructure.DialRabbitMQ(cfg.AMQPURL(), cfg.QueueName)
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}
	defer queue.Close()

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := infrastructure.NewMinioObjectStore(initCtx,
		cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	cancelInit()
	if err != nil {
		log.Fatalf("minio: %v", err)
	}

	videoRepo := infrastructure.NewPostgresVideoRepository(db)
	taskRepo := infrastructure.NewPostgresTaskRepository(db)
	frameRepo := infrastructure.NewPostgresFrameRepository(db)

	processor := &usecase.ProcessVideoUseCase{
		Videos:              videoRepo,
		Tasks:               taskRepo,
		Frames:              frameRepo,
		Store:               store,
		Detector:            infrastructure.NewHTTPDetector(cfg.DetectorEndpoint, cfg.DetectorModel, cfg.ConfidenceThreshold),
		Extractor:           infrastructure.NewFFmpegExtractor(),
		MaxAttempts:         cfg.MaxAttempts,
		FrameInterval:       cfg.FrameInterval,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		OnFramePersisted: func(detections int) {
			infrastructure.FramesProcessed.Inc()
			infrastructure.DetectionsPersisted.Add(float64(detections))
		},
	}

	reconciler := &usecase.RequeueStaleUseCase{
		Videos: videoRepo,
		Tasks:  taskRepo,
		Queue:  queue,
		Age:    cfg.ReconcileAge,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := func(taskCtx context.Context, msg domain.TaskMessage) domain.Disposition {
		start := time.Now()
		disp, outcome := processor.Execute(taskCtx, msg)
		infrastructure.TasksTotal.WithLabelValues(outcome).Inc()
		infrastructure.TaskDuration.Observe(time.Since(start).Seconds())
		return disp
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tag := fmt.Sprintf("worker-%d", n)
			if err := queue.Consume(ctx, tag, cfg.VisibilityTimeout, handler); err != nil && ctx.Err() == nil {
				log.Printf("ERROR: %s stopped: %v", tag, err)
			}
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runReconciler(ctx, reconciler, cfg.ReconcileInterval)
	}()

	// Metrics endpoint for the worker process.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil {
			log.Printf("ERROR: metrics server: %v", err)
		}
	}()

	log.Printf(" [*] %d workers consuming %q, waiting for tasks", cfg.WorkerCount, cfg.QueueName)
	<-ctx.Done()
	log.Println("shutting down...")
	wg.Wait()
}

func runReconciler(ctx context.Context, uc *usecase.RequeueStaleUseCase, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := uc.Execute(ctx)
			if err != nil {
				log.Printf("ERROR: reconciliation sweep: %v", err)
				continue
			}
			if n > 0 {
				infrastructure.RequeuedVideos.Add(float64(n))
			}
		}
	}
}

func mustConnectDB(cfg infrastructure.Config) *sql.DB {
	var db *sql.DB
	var err error
	for i := 0; i < 5; i++ {
		db, err = sql.Open("postgres", cfg.DSN())
		if err == nil {
			if err = db.Ping(); err == nil {
				log.Println("connected to PostgreSQL")
				return db
			}
		}
		log.Printf("database not ready, retrying in 5s... (%d/5)", i+1)
		time.Sleep(5 * time.Second)
	}
	log.Fatalf("could not connect to database: %v", err)
	return nil
}
