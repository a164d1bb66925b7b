// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity Provider
	IdentityAPIURL   string
	IdentityAPIToken string

	// Payments Provider
	PaymentsAPIURL        string
	PaymentsSecretKey     string
	PaymentsWebhookSecret string

	// Object Storage
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool

	// Background Jobs
	JobRunnerURL   string
	JobRunnerToken string
	JobTimeout     time.Duration

	// Email
	EmailAPIKey   string
	EmailListID   string
	OperatorEmail string

	// Source Control / Social
	GitAPIToken    string
	SocialAPIToken string

	// Workflow
	SessionRequestTTL time.Duration
	WorkflowTTL       time.Duration

	// Worker
	ReaperInterval  time.Duration
	PublishInterval time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitPublish int

	// Server
	ServerPort string
	BaseURL    string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	required := []struct {
		name string
		dst  *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"IDENTITY_API_URL", &cfg.IdentityAPIURL},
		{"IDENTITY_API_TOKEN", &cfg.IdentityAPIToken},
		{"PAYMENTS_API_URL", &cfg.PaymentsAPIURL},
		{"PAYMENTS_SECRET_KEY", &cfg.PaymentsSecretKey},
		{"PAYMENTS_WEBHOOK_SECRET", &cfg.PaymentsWebhookSecret},
		{"STORAGE_ENDPOINT", &cfg.StorageEndpoint},
		{"STORAGE_ACCESS_KEY", &cfg.StorageAccessKey},
		{"STORAGE_SECRET_KEY", &cfg.StorageSecretKey},
		{"STORAGE_BUCKET", &cfg.StorageBucket},
		{"JOB_RUNNER_URL", &cfg.JobRunnerURL},
		{"BASE_URL", &cfg.BaseURL},
	}

	for _, f := range required {
		*f.dst = os.Getenv(f.name)
		if *f.dst == "" {
			missing = append(missing, f.name)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.StorageUseSSL = getEnvBool("STORAGE_USE_SSL", true)
	cfg.JobRunnerToken = os.Getenv("JOB_RUNNER_TOKEN")
	cfg.JobTimeout = getEnvDuration("JOB_TIMEOUT", 15*time.Minute)
	cfg.EmailAPIKey = os.Getenv("EMAIL_API_KEY")
	cfg.EmailListID = os.Getenv("EMAIL_LIST_ID")
	cfg.OperatorEmail = os.Getenv("OPERATOR_EMAIL")
	cfg.GitAPIToken = os.Getenv("GIT_API_TOKEN")
	cfg.SocialAPIToken = os.Getenv("SOCIAL_API_TOKEN")
	cfg.SessionRequestTTL = getEnvDuration("SESSION_REQUEST_TTL", 10*time.Minute)
	cfg.WorkflowTTL = getEnvDuration("WORKFLOW_TTL", 24*time.Hour)
	cfg.ReaperInterval = getEnvDuration("REAPER_INTERVAL", 10*time.Minute)
	cfg.PublishInterval = getEnvDuration("PUBLISH_INTERVAL", time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPublish = getEnvInt("RATE_LIMIT_PUBLISH", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
