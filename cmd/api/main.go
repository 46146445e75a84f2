package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := infrastructure.NewMinioObjectStore(ctx,
		cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	cancel()
	if err != nil {
		log.Fatalf("minio: %v", err)
	}

	videoRepo := infrastructure.NewPostgresVideoRepository(db)
	taskRepo := infrastructure.NewPostgresTaskRepository(db)
	frameRepo := infrastructure.NewPostgresFrameRepository(db)

	handlers := infrastructure.NewVideoHandlers(
		&usecase.UploadVideoUseCase{
			Videos:         videoRepo,
			Store:          store,
			Queue:          queue,
			MaxUploadBytes: cfg.MaxUploadBytes,
		},
		&usecase.QueryUseCase{
			Videos: videoRepo,
			Tasks:  taskRepo,
			Frames: frameRepo,
		},
	)

	router := gin.Default()
	router.MaxMultipartMemory = cfg.MaxUploadBytes

	router.GET("/health", infrastructure.HealthHandler(db, queue, store))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.Register(router, cfg.JWTSecret)

	log.Printf("API listening on :%s", cfg.Port)
	log.Fatal(router.Run(":" + cfg.Port))
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
