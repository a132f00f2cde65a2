package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Slack    SlackConfig
	Advisor  AdvisorConfig
	Postgres PostgresConfig
	Kube     KubeConfig
	Loki     LokiConfig
	Auth     AuthConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

type SlackConfig struct {
	BotToken  string
	ChannelID string
}

type AdvisorConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type KubeConfig struct {
	// Kubeconfig path used outside the cluster; in-cluster config wins
	// when available.
	Kubeconfig string
}

type LokiConfig struct {
	BaseURL string
}

type AuthConfig struct {
	JWTSecret     string
	AdminID       string
	AdminPassword string
	OIDCIssuer    string
	OIDCClientID  string
}

type PipelineConfig struct {
	ConfidenceThreshold float64
	AutoActionEnabled   bool

	// Actions forced to the high risk tier regardless of their default,
	// comma-separated action names.
	RequireApprovalFor []string

	// Fallback target used when neither the advisor params nor the alert
	// name a namespace or deployment.
	TargetNamespace  string
	TargetDeployment string

	// Grace wait before verification starts, then poll window and interval.
	VerifyGrace    time.Duration
	VerifyWindow   time.Duration
	VerifyInterval time.Duration

	// ApprovalTTL > 0 enables the expiry sweeper for stale pending
	// approvals. Disabled by default.
	ApprovalTTL time.Duration

	// Repeated deliveries of the same fingerprint inside this window are
	// treated as duplicates.
	DedupeWindow time.Duration
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Port:           getenv("PORT", "8080"),
			AllowedOrigins: getlist("CORS_ALLOWED_ORIGINS"),
		},
		Slack: SlackConfig{
			BotToken:  os.Getenv("SLACK_BOT_TOKEN"),
			ChannelID: os.Getenv("SLACK_CHANNEL_ID"),
		},
		Advisor: AdvisorConfig{
			APIKey:         os.Getenv("AI_API_KEY"),
			Model:          getenv("AI_MODEL", "gemini-2.0-flash"),
			EmbeddingModel: getenv("AI_EMBEDDING_MODEL", "text-embedding-004"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		Kube: KubeConfig{
			Kubeconfig: os.Getenv("KUBECONFIG"),
		},
		Loki: LokiConfig{
			BaseURL: os.Getenv("LOKI_URL"),
		},
		Auth: AuthConfig{
			JWTSecret:     os.Getenv("JWT_SECRET"),
			AdminID:       getenv("ADMIN_ID", "admin"),
			AdminPassword: os.Getenv("ADMIN_PASSWORD"),
			OIDCIssuer:    os.Getenv("OIDC_ISSUER"),
			OIDCClientID:  os.Getenv("OIDC_CLIENT_ID"),
		},
		Pipeline: PipelineConfig{
			ConfidenceThreshold: getthreshold("CONFIDENCE_THRESHOLD", 0.8),
			AutoActionEnabled:   getbool("AUTO_ACTION_ENABLED", true),
			RequireApprovalFor:  getlist("REQUIRE_APPROVAL_FOR"),
			TargetNamespace:     os.Getenv("TARGET_NAMESPACE"),
			TargetDeployment:    os.Getenv("TARGET_DEPLOYMENT"),
			VerifyGrace:         getduration("VERIFY_GRACE", 30*time.Second),
			VerifyWindow:        getduration("VERIFY_WINDOW", 60*time.Second),
			VerifyInterval:      getduration("VERIFY_INTERVAL", 5*time.Second),
			ApprovalTTL:         getduration("APPROVAL_TTL", 0),
			DedupeWindow:        getduration("DEDUPE_WINDOW", 10*time.Minute),
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getfloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

// getthreshold reads a confidence threshold, falling back when the value is
// outside (0,1].
func getthreshold(key string, fallback float64) float64 {
	f := getfloat(key, fallback)
	if f <= 0 || f > 1 {
		return fallback
	}
	return f
}

func getbool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getduration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

func getlist(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
