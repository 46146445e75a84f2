package infrastructure

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration, read once at startup.
// Changing detector identity or thresholds requires a restart.
type Config struct {
	Port string

	DBHost string
	DBPort string
	DBUser string
	DBPass string
	DBName string

	RabbitMQHost string
	RabbitMQPort string
	RabbitMQUser string
	RabbitMQPass string
	QueueName    string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	DetectorEndpoint    string
	DetectorModel       string
	ConfidenceThreshold float64
	FrameInterval       int

	MaxAttempts       int
	VisibilityTimeout time.Duration
	WorkerCount       int
	MaxUploadBytes    int64

	ReconcileInterval time.Duration
	ReconcileAge      time.Duration

	JWTSecret string
}

func LoadConfig() Config {
	return Config{
		Port: getenv("PORT", "8080"),

		DBHost: getenv("DB_HOST", "db"),
		DBPort: getenv("DB_PORT", "5432"),
		DBUser: getenv("DB_USER", "user"),
		DBPass: getenv("DB_PASS", "password"),
		DBName: getenv("DB_NAME", "video_pipeline"),

		RabbitMQHost: getenv("RABBITMQ_HOST", "rabbitmq"),
		RabbitMQPort: getenv("RABBITMQ_PORT", "5672"),
		RabbitMQUser: getenv("RABBITMQ_USER", "guest"),
		RabbitMQPass: getenv("RABBITMQ_PASS", "guest"),
		QueueName:    getenv("QUEUE_NAME", "video_processing_queue"),

		MinioEndpoint:  getenv("MINIO_ENDPOINT", "minio:9000"),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getenv("MINIO_BUCKET", "videos"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),

		DetectorEndpoint:    getenv("DETECTOR_ENDPOINT", "http://detector:8000"),
		DetectorModel:       getenv("DETECTOR_MODEL", "yolov8n"),
		ConfidenceThreshold: getenvFloat("CONFIDENCE_THRESHOLD", 0.5),
		FrameInterval:       getenvInt("FRAME_INTERVAL", 30),

		MaxAttempts:       getenvInt("MAX_ATTEMPTS", 3),
		VisibilityTimeout: getenvDuration("VISIBILITY_TIMEOUT", 10*time.Minute),
		WorkerCount:       getenvInt("WORKER_COUNT", 4),
		MaxUploadBytes:    int64(getenvInt("MAX_UPLOAD_BYTES", 500<<20)),

		ReconcileInterval: getenvDuration("RECONCILE_INTERVAL", time.Minute),
		ReconcileAge:      getenvDuration("RECONCILE_AGE", 5*time.Minute),

		JWTSecret: os.Getenv("JWT_SECRET"),
	}
}

// DSN returns the postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}

// AMQPURL returns the RabbitMQ connection string.
func (c Config) AMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.RabbitMQUser, c.RabbitMQPass, c.RabbitMQHost, c.RabbitMQPort)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
