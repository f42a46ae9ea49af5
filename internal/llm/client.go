// Package llm wraps the Gemini SDK behind a small surface the chat
// engine can drive: opening streaming sessions with tool declarations,
// counting tokens, translating retrieval queries and embedding text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/baronchat/baron/internal/conv"
	"github.com/baronchat/baron/internal/log"
)

var (
	// ErrMissingAPIKey indicates no Gemini API key was configured.
	ErrMissingAPIKey = errors.New("llm: missing API key")

	// ErrEmptyEmbedding indicates the embedding endpoint returned no vector.
	ErrEmptyEmbedding = errors.New("llm: empty embedding response")
)

// Config holds the settings for a Client.
type Config struct {
	// APIKey authenticates against the Gemini API.
	APIKey string

	// ModelName is the generative model, e.g. "gemini-2.5-flash".
	ModelName string

	// EmbedModel is the embedding model, e.g. "gemini-embedding-001".
	EmbedModel string

	// EmbedDim truncates embeddings to this dimensionality.
	EmbedDim int32

	// SystemInstruction is prepended to every session.
	SystemInstruction string

	// Temperature for generation. Zero means SDK default.
	Temperature float32
}

func (c *Config) validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.ModelName == "" {
		return fmt.Errorf("llm: model name is required")
	}
	return nil
}

// Client is an immutable handle to the Gemini API. All fields are set
// at construction; a broken client is replaced, never mutated, so a
// *Client can be shared across goroutines freely.
type Client struct {
	genc   *genai.Client
	cfg    Config
	logger log.Logger
}

// New dials the Gemini API and returns a ready Client.
func New(ctx context.Context, cfg Config, logger log.Logger) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}

	genc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Client{genc: genc, cfg: cfg, logger: logger}, nil
}

// ModelName returns the configured generative model name.
func (c *Client) ModelName() string {
	return c.cfg.ModelName
}

// Open starts a streaming chat session seeded with prior history. The
// session carries the system instruction and the tool declarations.
func (c *Client) Open(ctx context.Context, history []conv.Turn) (*Session, error) {
	cfg := &genai.GenerateContentConfig{
		Tools: Tools(),
	}
	if c.cfg.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(c.cfg.SystemInstruction, genai.RoleUser)
	}
	if c.cfg.Temperature > 0 {
		temp := c.cfg.Temperature
		cfg.Temperature = &temp
	}

	chat, err := c.genc.Chats.Create(ctx, c.cfg.ModelName, cfg, toContents(history))
	if err != nil {
		return nil, fmt.Errorf("creating chat session: %w", err)
	}
	return &Session{chat: chat, logger: c.logger}, nil
}

// CountTokens returns the model token count of the history plus any
// extra texts. Function call and result parts are counted through their
// JSON form, same as they travel on the wire.
func (c *Client) CountTokens(ctx context.Context, history []conv.Turn, texts ...string) (int, error) {
	contents := toCountContents(history)
	for _, t := range texts {
		if t == "" {
			continue
		}
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	if len(contents) == 0 {
		return 0, nil
	}

	resp, err := c.genc.Models.CountTokens(ctx, c.cfg.ModelName, contents, nil)
	if err != nil {
		return 0, fmt.Errorf("counting tokens: %w", err)
	}
	return int(resp.TotalTokens), nil
}

// TranslateQuery rewrites an English retrieval query into Hebrew so it
// matches the language of the indexed articles. Queries that already
// contain Hebrew are returned unchanged, and any translation failure
// falls back to the original query rather than aborting the search.
func (c *Client) TranslateQuery(ctx context.Context, query string) string {
	if query == "" || ContainsHebrew(query) {
		return query
	}

	prompt := fmt.Sprintf("Translate the following English query to Hebrew: '%s'. Return only the translation.", query)
	resp, err := c.genc.Models.GenerateContent(ctx, c.cfg.ModelName,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, nil)
	if err != nil {
		c.logger.Warn("query translation failed, using original", "error", err)
		return query
	}

	translated := strings.TrimSpace(resp.Text())
	if translated == "" {
		return query
	}
	return translated
}

// Embed returns the embedding vector for text, truncated to the
// configured dimensionality.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{}
	if c.cfg.EmbedDim > 0 {
		dim := c.cfg.EmbedDim
		cfg.OutputDimensionality = &dim
	}

	resp, err := c.genc.Models.EmbedContent(ctx, c.cfg.EmbedModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Embeddings[0].Values, nil
}

// ContainsHebrew reports whether s contains at least one Hebrew
// character, including the presentation-forms block.
func ContainsHebrew(s string) bool {
	for _, r := range s {
		if (r >= 0x0590 && r <= 0x05FF) || (r >= 0xFB1D && r <= 0xFB4F) {
			return true
		}
	}
	return false
}
