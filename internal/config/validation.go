package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingAPIKey indicates the model API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidStorageURL indicates the PostgreSQL URL is missing or malformed.
	ErrInvalidStorageURL = errors.New("invalid storage URL")

	// ErrInvalidQuota indicates the per-conversation message cap is out of range.
	ErrInvalidQuota = errors.New("invalid message quota")

	// ErrInvalidSearchLimit indicates the retrieval result ceiling is out of range.
	ErrInvalidSearchLimit = errors.New("invalid search limit")

	// ErrInvalidFields indicates the field projection lists are unusable.
	ErrInvalidFields = errors.New("invalid field projection")
)

// Validate checks the configuration for values that would break the
// service at runtime. It returns the first problem found, wrapped
// around its sentinel error.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%w: set GOOGLE_API_KEY or llm.api_key", ErrMissingAPIKey)
	}
	if c.LLM.ModelName == "" {
		return fmt.Errorf("%w: llm.model_name is empty", ErrInvalidModelName)
	}
	if c.Storage.URL == "" {
		return fmt.Errorf("%w: storage.url is empty", ErrInvalidStorageURL)
	}
	if !strings.HasPrefix(c.Storage.URL, "postgres://") && !strings.HasPrefix(c.Storage.URL, "postgresql://") {
		return fmt.Errorf("%w: %q is not a postgres URL", ErrInvalidStorageURL, c.Storage.URL)
	}
	if c.Chat.MaxUserMessages <= 0 || c.Chat.MaxUserMessages > 1000 {
		return fmt.Errorf("%w: max_user_messages=%d, want 1..1000", ErrInvalidQuota, c.Chat.MaxUserMessages)
	}
	if c.Search.SearchLimit <= 0 || c.Search.SearchLimit > 100 {
		return fmt.Errorf("%w: search_limit=%d, want 1..100", ErrInvalidSearchLimit, c.Search.SearchLimit)
	}
	if len(c.Fields.ForLLM) == 0 || len(c.Fields.ForFrontend) == 0 {
		return fmt.Errorf("%w: for_llm and for_frontend must be non-empty", ErrInvalidFields)
	}
	return nil
}
