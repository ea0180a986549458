package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	Store StoreConfig
	LLM   LLMConfig
}

type StoreConfig struct {
	// Backend selects disk, memory, postgres, or sqlite.
	Backend     string
	Root        string
	DatabaseURL string
	SQLitePath  string

	S3 S3Config
}

type S3Config struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type LLMConfig struct {
	Model   string
	Timeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:  *port,
		Env:   env,
		Store: loadStoreConfig(env),
		LLM:   loadLLMConfig(),
	}, nil
}

func loadStoreConfig(env string) StoreConfig {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("WIDGET_STORE_BACKEND")))
	if backend == "" {
		backend = "disk"
	}
	root := strings.TrimSpace(os.Getenv("WIDGET_STORE_ROOT"))
	if root == "" {
		root = ".vibewidget"
	}
	return StoreConfig{
		Backend:     backend,
		Root:        root,
		DatabaseURL: strings.TrimSpace(os.Getenv("WIDGET_DATABASE_URL")),
		SQLitePath:  firstNonEmpty(strings.TrimSpace(os.Getenv("WIDGET_SQLITE_PATH")), "widgets.db"),
		S3:          loadS3Config(env),
	}
}

func loadS3Config(env string) S3Config {
	endpoint := resolveS3Endpoint(env)
	return S3Config{
		Enabled:   endpoint != "" && parseBool(os.Getenv("WIDGET_S3_MIRROR"), false),
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("WIDGET_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("WIDGET_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("WIDGET_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("WIDGET_S3_BUCKET")), "vibewidget-artifacts"),
		UseSSL:    resolveS3UseSSL(env),
	}
}

func resolveS3Endpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return firstNonEmpty(strings.TrimSpace(os.Getenv("WIDGET_MINIO_ENDPOINT")), "minio:9000")
	}
	return strings.TrimSpace(os.Getenv("WIDGET_S3_ENDPOINT"))
}

func resolveS3UseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	return parseBool(os.Getenv("WIDGET_S3_USE_SSL"), true)
}

func loadLLMConfig() LLMConfig {
	model := strings.TrimSpace(os.Getenv("LLM_MODEL"))
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := 120 * time.Second
	if v := strings.TrimSpace(os.Getenv("LLM_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}
	return LLMConfig{Model: model, Timeout: timeout}
}

func parseBool(raw string, fallback bool) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
