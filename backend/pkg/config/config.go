package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// AI
	LiteLLMURL       string
	ModelID          string
	OpenRouterAPIKey string

	// Neo4j transcript store (optional; in-memory history when disabled)
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jEnabled  bool

	// Engagement heuristics. The thresholds and step sizes are
	// hand-tuned; treat them as defaults, not derived quantities.
	EngagementDecayAfter   time.Duration // idle time before engagement starts decaying
	EngagementDecayStep    float64
	EngagementFloor        float64
	SatisfactionDecayAfter time.Duration // idle time before satisfaction starts decaying
	SatisfactionDecayStep  float64
	SatisfactionFloor      float64
	LowEngagement          float64 // below this the entertainment goal auto-activates
	HoldIdleHandoffAfter   time.Duration

	// Proactive timing
	StatusTickInterval time.Duration
	GreetingDelay      time.Duration
	KickoffDelay       time.Duration // after the greeting fires
	HoldUpdateInterval time.Duration
	QueueSettleDelay   time.Duration // between a release and the next queued action
	InvocationTimeout  time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		LiteLLMURL:       getEnv("LITELLM_URL", "http://localhost:4000"),
		ModelID:          getEnv("MODEL_ID", "openrouter/anthropic/claude-3.5-sonnet"),
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		Neo4jURI:         getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:        getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:    getEnv("NEO4J_PASSWORD", "password"),
		Neo4jEnabled:     getEnvBool("NEO4J_ENABLED", false),

		EngagementDecayAfter:   getEnvDuration("ENGAGEMENT_DECAY_AFTER", 180*time.Second),
		EngagementDecayStep:    getEnvFloat("ENGAGEMENT_DECAY_STEP", 0.05),
		EngagementFloor:        getEnvFloat("ENGAGEMENT_FLOOR", 0.1),
		SatisfactionDecayAfter: getEnvDuration("SATISFACTION_DECAY_AFTER", 120*time.Second),
		SatisfactionDecayStep:  getEnvFloat("SATISFACTION_DECAY_STEP", 0.02),
		SatisfactionFloor:      getEnvFloat("SATISFACTION_FLOOR", 0.3),
		LowEngagement:          getEnvFloat("LOW_ENGAGEMENT_THRESHOLD", 0.4),
		HoldIdleHandoffAfter:   getEnvDuration("HOLD_IDLE_HANDOFF_AFTER", 300*time.Second),

		StatusTickInterval: getEnvDuration("STATUS_TICK_INTERVAL", 5*time.Second),
		GreetingDelay:      getEnvDuration("GREETING_DELAY", 500*time.Millisecond),
		KickoffDelay:       getEnvDuration("KICKOFF_DELAY", 250*time.Millisecond),
		HoldUpdateInterval: getEnvDuration("HOLD_UPDATE_INTERVAL", 10*time.Minute),
		QueueSettleDelay:   getEnvDuration("QUEUE_SETTLE_DELAY", 2*time.Second),
		InvocationTimeout:  getEnvDuration("INVOCATION_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.LiteLLMURL == "" {
		return fmt.Errorf("LITELLM_URL is required")
	}
	if c.ModelID == "" {
		return fmt.Errorf("MODEL_ID is required")
	}
	if c.Neo4jEnabled {
		if c.Neo4jURI == "" {
			return fmt.Errorf("NEO4J_URI is required when NEO4J_ENABLED is set")
		}
		if c.Neo4jUser == "" {
			return fmt.Errorf("NEO4J_USER is required when NEO4J_ENABLED is set")
		}
	}
	if c.EngagementDecayStep <= 0 || c.SatisfactionDecayStep <= 0 {
		return fmt.Errorf("decay steps must be positive")
	}
	if c.QueueSettleDelay < 0 {
		return fmt.Errorf("QUEUE_SETTLE_DELAY must not be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "yes":
		return true
	case "0", "false", "FALSE", "no":
		return false
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
