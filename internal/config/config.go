package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Queue     QueueConfig
	Admission AdmissionConfig
	Watchdog  WatchdogConfig
	TTS       TTSConfig
	Storage   StorageConfig
	LLM       LLMConfig
	Image     ImageConfig
	Translit  TranslitConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

// QueueConfig holds the worker-side knobs. LockDuration must exceed the
// worst-case single-job runtime or the broker treats the job as abandoned
// and re-queues it while the handler is still running.
type QueueConfig struct {
	Concurrency       int
	MaxAttempts       int
	BackoffBaseDelay  time.Duration
	LockDuration      time.Duration
	DrainDelay        time.Duration
	RatePerInterval   int
	RateInterval      time.Duration
	RetentionDuration time.Duration
}

type AdmissionConfig struct {
	CooldownDuration time.Duration
	QuotaLimit       int
	QuotaWindow      time.Duration
}

type WatchdogConfig struct {
	Timeout          time.Duration
	WarningThreshold time.Duration
}

// TTSConfig selects the synthesis provider at construction time. Mode is
// "edge" (self-hosted edge-tts service) or "cloud".
type TTSConfig struct {
	Mode         string
	EdgeURL      string
	CloudURL     string
	CloudAPIKey  string
	Timeout      int // seconds
	SpeedTiers   []float64
	DefaultVoice string
}

type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type ImageConfig struct {
	ServiceURL string
	Timeout    int // seconds
}

type TranslitConfig struct {
	ServiceURL string
	Timeout    int // seconds
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("LLM_API_KEY")
	readSecret("TTS_CLOUD_API_KEY")
	readSecret("STORAGE_ACCOUNT_ID")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("queue.concurrency", "QUEUE_CONCURRENCY")
	_ = viper.BindEnv("queue.max_attempts", "QUEUE_MAX_ATTEMPTS")
	_ = viper.BindEnv("queue.backoff_base_ms", "QUEUE_BACKOFF_BASE_MS")
	_ = viper.BindEnv("queue.lock_duration_sec", "QUEUE_LOCK_DURATION_SEC")
	_ = viper.BindEnv("queue.drain_delay_sec", "QUEUE_DRAIN_DELAY_SEC")
	_ = viper.BindEnv("queue.rate_per_interval", "QUEUE_RATE_PER_INTERVAL")
	_ = viper.BindEnv("queue.rate_interval_sec", "QUEUE_RATE_INTERVAL_SEC")
	_ = viper.BindEnv("queue.retention_hours", "QUEUE_RETENTION_HOURS")
	_ = viper.BindEnv("admission.cooldown_sec", "ADMISSION_COOLDOWN_SEC")
	_ = viper.BindEnv("admission.quota_limit", "ADMISSION_QUOTA_LIMIT")
	_ = viper.BindEnv("admission.quota_window_hours", "ADMISSION_QUOTA_WINDOW_HOURS")
	_ = viper.BindEnv("watchdog.timeout_ms", "WATCHDOG_TIMEOUT_MS")
	_ = viper.BindEnv("watchdog.warning_ms", "WATCHDOG_WARNING_MS")
	_ = viper.BindEnv("tts.mode", "TTS_MODE")
	_ = viper.BindEnv("tts.edge_url", "TTS_EDGE_URL")
	_ = viper.BindEnv("tts.cloud_url", "TTS_CLOUD_URL")
	_ = viper.BindEnv("tts.cloud_api_key", "TTS_CLOUD_API_KEY")
	_ = viper.BindEnv("tts.timeout", "TTS_TIMEOUT")
	_ = viper.BindEnv("tts.speed_tiers", "TTS_SPEED_TIERS")
	_ = viper.BindEnv("tts.default_voice", "TTS_DEFAULT_VOICE")
	_ = viper.BindEnv("storage.account_id", "STORAGE_ACCOUNT_ID")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = viper.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = viper.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = viper.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = viper.BindEnv("llm.model", "LLM_MODEL")
	_ = viper.BindEnv("image.service_url", "IMAGE_SERVICE_URL")
	_ = viper.BindEnv("image.timeout", "IMAGE_SERVICE_TIMEOUT")
	_ = viper.BindEnv("translit.service_url", "TRANSLIT_SERVICE_URL")
	_ = viper.BindEnv("translit.timeout", "TRANSLIT_SERVICE_TIMEOUT")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")

	// Queue defaults. Lock duration is deliberately generous: an audio job
	// synthesizes every segment at every speed tier inside one attempt.
	viper.SetDefault("queue.concurrency", 4)
	viper.SetDefault("queue.max_attempts", 3)
	viper.SetDefault("queue.backoff_base_ms", 5000)
	viper.SetDefault("queue.lock_duration_sec", 900)
	viper.SetDefault("queue.drain_delay_sec", 5)
	viper.SetDefault("queue.rate_per_interval", 10)
	viper.SetDefault("queue.rate_interval_sec", 60)
	viper.SetDefault("queue.retention_hours", 24)

	// Admission defaults: one request per 5 minutes, 20 per week
	viper.SetDefault("admission.cooldown_sec", 300)
	viper.SetDefault("admission.quota_limit", 20)
	viper.SetDefault("admission.quota_window_hours", 168)

	// Watchdog defaults
	viper.SetDefault("watchdog.timeout_ms", 120000)
	viper.SetDefault("watchdog.warning_ms", 45000)

	// TTS defaults
	viper.SetDefault("tts.mode", "edge")
	viper.SetDefault("tts.edge_url", "http://localhost:8086")
	viper.SetDefault("tts.cloud_url", "https://texttospeech.googleapis.com/v1")
	viper.SetDefault("tts.timeout", 60)
	viper.SetDefault("tts.speed_tiers", "0.7,0.85,1.0")
	viper.SetDefault("tts.default_voice", "en-US-JennyNeural")

	// Auxiliary service defaults
	viper.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("llm.model", "llama-3.3-70b-versatile")
	viper.SetDefault("image.service_url", "http://localhost:8085")
	viper.SetDefault("image.timeout", 120)
	viper.SetDefault("translit.service_url", "http://localhost:8087")
	viper.SetDefault("translit.timeout", 15)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		Queue: QueueConfig{
			Concurrency:       viper.GetInt("queue.concurrency"),
			MaxAttempts:       viper.GetInt("queue.max_attempts"),
			BackoffBaseDelay:  time.Duration(viper.GetInt("queue.backoff_base_ms")) * time.Millisecond,
			LockDuration:      time.Duration(viper.GetInt("queue.lock_duration_sec")) * time.Second,
			DrainDelay:        time.Duration(viper.GetInt("queue.drain_delay_sec")) * time.Second,
			RatePerInterval:   viper.GetInt("queue.rate_per_interval"),
			RateInterval:      time.Duration(viper.GetInt("queue.rate_interval_sec")) * time.Second,
			RetentionDuration: time.Duration(viper.GetInt("queue.retention_hours")) * time.Hour,
		},
		Admission: AdmissionConfig{
			CooldownDuration: time.Duration(viper.GetInt("admission.cooldown_sec")) * time.Second,
			QuotaLimit:       viper.GetInt("admission.quota_limit"),
			QuotaWindow:      time.Duration(viper.GetInt("admission.quota_window_hours")) * time.Hour,
		},
		Watchdog: WatchdogConfig{
			Timeout:          time.Duration(viper.GetInt("watchdog.timeout_ms")) * time.Millisecond,
			WarningThreshold: time.Duration(viper.GetInt("watchdog.warning_ms")) * time.Millisecond,
		},
		TTS: TTSConfig{
			Mode:         viper.GetString("tts.mode"),
			EdgeURL:      viper.GetString("tts.edge_url"),
			CloudURL:     viper.GetString("tts.cloud_url"),
			CloudAPIKey:  viper.GetString("tts.cloud_api_key"),
			Timeout:      viper.GetInt("tts.timeout"),
			SpeedTiers:   parseSpeedTiers(viper.GetString("tts.speed_tiers")),
			DefaultVoice: viper.GetString("tts.default_voice"),
		},
		Storage: StorageConfig{
			AccountID:       viper.GetString("storage.account_id"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			BucketName:      viper.GetString("storage.bucket_name"),
			PublicURL:       viper.GetString("storage.public_url"),
		},
		LLM: LLMConfig{
			APIKey:  viper.GetString("llm.api_key"),
			BaseURL: viper.GetString("llm.base_url"),
			Model:   viper.GetString("llm.model"),
		},
		Image: ImageConfig{
			ServiceURL: viper.GetString("image.service_url"),
			Timeout:    viper.GetInt("image.timeout"),
		},
		Translit: TranslitConfig{
			ServiceURL: viper.GetString("translit.service_url"),
			Timeout:    viper.GetInt("translit.timeout"),
		},
	}

	return cfg, nil
}

// parseSpeedTiers parses a comma-separated speed list ("0.7,0.85,1.0"),
// keeping the configured order. Tiers are processed slowest-first by
// convention but the order here is authoritative.
func parseSpeedTiers(raw string) []float64 {
	fallback := []float64{0.7, 0.85, 1.0}
	parts := strings.Split(raw, ",")
	tiers := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || f <= 0 {
			continue
		}
		tiers = append(tiers, f)
	}
	if len(tiers) == 0 {
		return fallback
	}
	return tiers
}
