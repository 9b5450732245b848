package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"promptjudge/internal/common/cache"
	"promptjudge/internal/common/db"
	commonmw "promptjudge/internal/common/http/middleware"
	"promptjudge/internal/common/mq"
	"promptjudge/internal/common/storage"
	"promptjudge/internal/evaluation/agent"
	"promptjudge/internal/evaluation/controller"
	"promptjudge/internal/evaluation/progress"
	"promptjudge/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 20 * time.Minute
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second

	envAgentServerURL = "AGENT_SERVER_URL"
	envMySQLDSN       = "MYSQL_DSN"
	envRedisAddr      = "REDIS_ADDR"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string              `yaml:"addr"`
	ReadTimeout     time.Duration       `yaml:"readTimeout"`
	WriteTimeout    time.Duration       `yaml:"writeTimeout"`
	IdleTimeout     time.Duration       `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration       `yaml:"shutdownTimeout"`
	CORS            commonmw.CORSConfig `yaml:"cors"`
}

// TimeoutConfig holds timeouts for infrastructure calls.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Storage time.Duration `yaml:"storage"`
	MQ      time.Duration `yaml:"mq"`
}

// EvaluationConfig holds pipeline settings.
type EvaluationConfig struct {
	BuildLogLimit      int                     `yaml:"buildLogLimit"`
	MaxFilesBytes      int                     `yaml:"maxFilesBytes"`
	ArtifactBucket     string                  `yaml:"artifactBucket"`
	ArtifactPrefix     string                  `yaml:"artifactPrefix"`
	EventsTopic        string                  `yaml:"eventsTopic"`
	ProblemCacheTTL    time.Duration           `yaml:"problemCacheTTL"`
	SubmissionCacheTTL time.Duration           `yaml:"submissionCacheTTL"`
	EmptyCacheTTL      time.Duration           `yaml:"emptyCacheTTL"`
	Timeouts           TimeoutConfig           `yaml:"timeouts"`
	Stream             controller.StreamConfig `yaml:"stream"`
}

// AppConfig holds evaluator-service configuration.
type AppConfig struct {
	Server     ServerConfig        `yaml:"server"`
	Logger     logger.Config       `yaml:"logger"`
	Database   db.MySQLConfig      `yaml:"database"`
	Redis      cache.RedisConfig   `yaml:"redis"`
	MinIO      storage.MinIOConfig `yaml:"minio"`
	Kafka      mq.KafkaConfig      `yaml:"kafka"`
	Agent      agent.Config        `yaml:"agent"`
	Progress   progress.Config     `yaml:"progress"`
	Evaluation EvaluationConfig    `yaml:"evaluation"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads the YAML file, applies .env overrides and fills defaults.
// A missing .env file is not an error.
func loadAppConfig(path, envPath string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file failed: %w", err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	if strings.TrimSpace(cfg.Agent.ServerURL) == "" {
		return nil, fmt.Errorf("agent serverURL is required")
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Progress.Backend == progress.BackendRedis && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required for the redis progress backend")
	}
	return &cfg, nil
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv(envAgentServerURL); v != "" {
		cfg.Agent.ServerURL = v
	}
	if v := os.Getenv(envMySQLDSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(envRedisAddr); v != "" {
		cfg.Redis.Addr = v
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	// Submit holds the request open for the whole pipeline.
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.Progress.Backend == "" {
		cfg.Progress.Backend = progress.BackendMemory
	}

	if cfg.Evaluation.ProblemCacheTTL == 0 {
		cfg.Evaluation.ProblemCacheTTL = 30 * time.Minute
	}
	if cfg.Evaluation.SubmissionCacheTTL == 0 {
		cfg.Evaluation.SubmissionCacheTTL = 10 * time.Minute
	}
	if cfg.Evaluation.EmptyCacheTTL == 0 {
		cfg.Evaluation.EmptyCacheTTL = time.Minute
	}
	if cfg.Evaluation.Timeouts.DB == 0 {
		cfg.Evaluation.Timeouts.DB = 3 * time.Second
	}
	if cfg.Evaluation.Timeouts.Storage == 0 {
		cfg.Evaluation.Timeouts.Storage = 10 * time.Second
	}
	if cfg.Evaluation.Timeouts.MQ == 0 {
		cfg.Evaluation.Timeouts.MQ = 3 * time.Second
	}
	cfg.Evaluation.Stream.AllowedOrigins = cfg.Server.CORS.AllowedOrigins
	if cfg.Evaluation.ArtifactBucket == "" {
		cfg.Evaluation.ArtifactBucket = cfg.MinIO.Bucket
	}
}
