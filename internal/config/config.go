// Package config provides application configuration with multi-source
// priority:
//
//  1. Environment variables (BARON_* plus GOOGLE_API_KEY, runtime override)
//  2. Config file (config.yaml)
//  3. Default values
//
// Validation lives in validation.go and uses sentinel errors so callers
// can check categories with errors.Is().
package config

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Config stores the full application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Search    SearchConfig    `mapstructure:"search"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Fields    FieldsConfig    `mapstructure:"fields"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig configures the HTTP service boundary.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst"`

	// MaxTurnRetries bounds how many times a failed turn is re-attempted
	// with a rebuilt LLM client before the stream simply ends.
	MaxTurnRetries int `mapstructure:"max_turn_retries"`
}

// LLMConfig configures the hosted model API.
type LLMConfig struct {
	APIKey    string `mapstructure:"api_key"`
	ModelName string `mapstructure:"model_name"`
}

// EmbeddingConfig configures query embedding for retrieval.
type EmbeddingConfig struct {
	ModelName      string `mapstructure:"model_name"`
	Dimensionality int32  `mapstructure:"dimensionality"`
}

// StorageConfig configures the PostgreSQL backend (history, counters,
// article vectors).
type StorageConfig struct {
	// URL is a postgres:// connection URL.
	URL string `mapstructure:"url"`
}

// SearchConfig configures vector retrieval.
type SearchConfig struct {
	MinScore    float64 `mapstructure:"min_score"`
	SearchLimit int     `mapstructure:"search_limit"`
}

// ChatConfig configures quota, limits and user-facing canned texts.
// All message texts are Hebrew by default; they are model input or
// user-visible output, never parsed.
type ChatConfig struct {
	MaxUserMessages int `mapstructure:"max_user_messages"`
	TokenLimit      int `mapstructure:"token_limit"`
	HistoryTTLSecs  int `mapstructure:"history_ttl_seconds"`

	WarnTemplate    string `mapstructure:"warn_template"`
	WarnLastMessage string `mapstructure:"warn_last_message"`
	BlockedMessage  string `mapstructure:"blocked_message"`
	LongRequest     string `mapstructure:"long_request"`
	NonPaying       string `mapstructure:"non_paying_message"`
	GenericError    string `mapstructure:"generic_error"`
	NoResult        string `mapstructure:"no_result"`

	SystemInstruction string `mapstructure:"system_instruction"`
}

// FieldsConfig controls which article fields reach the model and which
// reach the frontend teaser payload. The frontend projection is the
// more restrictive of the two.
type FieldsConfig struct {
	ForLLM      []string `mapstructure:"for_llm"`
	ForFrontend []string `mapstructure:"for_frontend"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug | info | warn | error
	JSON  bool   `mapstructure:"json"`
}

// SlogLevel parses Level into its slog value. Unknown or empty levels
// fall back to Info rather than failing startup.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads configuration from the given file path (optional, "" skips
// the file), applies env overrides and defaults, and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BARON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Common external names take precedence over nothing but lose to
	// explicit BARON_* variables.
	_ = v.BindEnv("llm.api_key", "BARON_LLM_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("storage.url", "BARON_STORAGE_URL", "DATABASE_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.rate_burst", 60)
	v.SetDefault("server.max_turn_retries", 2)

	v.SetDefault("llm.model_name", "gemini-2.5-flash")
	v.SetDefault("embedding.model_name", "gemini-embedding-001")
	v.SetDefault("embedding.dimensionality", 768)

	v.SetDefault("search.min_score", 0.35)
	v.SetDefault("search.search_limit", 10)

	v.SetDefault("chat.max_user_messages", 10)
	v.SetDefault("chat.token_limit", 2000)
	v.SetDefault("chat.history_ttl_seconds", 86400)

	v.SetDefault("chat.warn_template", "שימו לב: %s\n")
	v.SetDefault("chat.warn_last_message", "זוהי ההודעה האחרונה שלך בשיחה זו.")
	v.SetDefault("chat.blocked_message", "הגעת למכסת ההודעות לשיחה זו. פתחו שיחה חדשה כדי להמשיך.")
	v.SetDefault("chat.long_request", "ההודעה ארוכה מדי. נסו לנסח אותה בקצרה.")
	v.SetDefault("chat.non_paying_message", "שירות ההמלצות זמין למנויים בלבד.")
	v.SetDefault("chat.generic_error", "אירעה שגיאה בעיבוד ההודעה.")
	v.SetDefault("chat.no_result", "לא נמצאו תוצאות")

	v.SetDefault("fields.for_llm", []string{
		"article_id", "title", "genre", "platform", "media_type",
		"writer", "tone", "stars", "publish_date", "review",
	})
	v.SetDefault("fields.for_frontend", []string{
		"article_id", "title", "genre", "platform", "writer", "stars", "publish_date",
	})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}
