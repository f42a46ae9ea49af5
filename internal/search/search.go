// Package search retrieves review articles by vector similarity over
// the articles table, applying the tool-call filters and excluding
// articles the conversation has already surfaced.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/baronchat/baron/internal/log"
)

// ErrNoResults indicates the search ran fine but matched nothing above
// the score threshold.
var ErrNoResults = errors.New("search: no results")

// Embedder turns a query string into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds search tuning knobs.
type Config struct {
	// Limit caps how many articles one search returns.
	Limit int

	// MinScore is the cosine similarity floor; matches below it are
	// discarded.
	MinScore float64
}

// Filters narrows a search by article metadata. Empty fields do not
// filter.
type Filters struct {
	Platforms []string
	Genres    []string
	MediaType string
	Writers   []string
}

// Article is one retrieved article's payload. Projections for the
// model and the frontend pick subsets of its keys.
type Article map[string]any

// ID returns the article's id, or "" when absent.
func (a Article) ID() string {
	id, _ := a["article_id"].(string)
	return id
}

// Project returns a copy of a restricted to the given keys. Keys the
// article lacks map to nil so downstream consumers see a stable shape.
func (a Article) Project(fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f] = a[f]
	}
	return out
}

// Searcher runs similarity search over the articles table. Safe for
// concurrent use.
type Searcher struct {
	pool     *pgxpool.Pool
	embedder Embedder
	cfg      Config
	logger   log.Logger
}

// New creates a Searcher.
func New(pool *pgxpool.Pool, embedder Embedder, cfg Config, logger log.Logger) (*Searcher, error) {
	if pool == nil {
		return nil, fmt.Errorf("search: pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("search: embedder is required")
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("search: limit must be positive, got %d", cfg.Limit)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Searcher{pool: pool, embedder: embedder, cfg: cfg, logger: logger}, nil
}

// Search embeds the query, ranks articles by cosine similarity and
// returns the survivors of the metadata filters, the exclusion set and
// title dedup, capped at the configured limit.
func (s *Searcher) Search(ctx context.Context, query string, f Filters, exclude []string) ([]Article, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding search query: %w", err)
	}

	if exclude == nil {
		exclude = []string{}
	}
	platforms := orEmpty(f.Platforms)
	genres := orEmpty(f.Genres)
	writers := orEmpty(f.Writers)

	// Over-fetch so title dedup below still fills the limit.
	rows, err := s.pool.Query(ctx,
		`SELECT article_id, title, review, genre, platform, media_type,
		        writer, tone, stars, publish_date,
		        1 - (embedding <=> $1) AS score
		 FROM articles
		 WHERE ($2::text[] = '{}' OR platform && $2)
		   AND ($3::text[] = '{}' OR genre && $3)
		   AND ($4 = '' OR media_type = $4)
		   AND ($5::text[] = '{}' OR writer = ANY($5))
		   AND NOT (article_id = ANY($6))
		   AND 1 - (embedding <=> $1) >= $7
		 ORDER BY embedding <=> $1
		 LIMIT $8`,
		pgvector.NewVector(vec), platforms, genres, f.MediaType, writers,
		exclude, s.cfg.MinScore, s.cfg.Limit*2)
	if err != nil {
		return nil, fmt.Errorf("searching articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var (
			id, title, review, mediaType, writer, tone string
			genre, platform                            []string
			stars                                      int
			publishDate                                *time.Time
			score                                      float64
		)
		err := rows.Scan(&id, &title, &review, &genre, &platform, &mediaType,
			&writer, &tone, &stars, &publishDate, &score)
		if err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}

		a := Article{
			"article_id": id,
			"title":      title,
			"review":     review,
			"genre":      genre,
			"platform":   platform,
			"media_type": mediaType,
			"writer":     writer,
			"tone":       tone,
			"stars":      stars,
			"score":      score,
		}
		if publishDate != nil {
			a["publish_date"] = publishDate.Format("2006-01-02")
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search results: %w", err)
	}

	articles = DedupByTitle(articles)
	if len(articles) > s.cfg.Limit {
		articles = articles[:s.cfg.Limit]
	}
	if len(articles) == 0 {
		return nil, ErrNoResults
	}

	s.logger.Debug("article search", "query", query, "results", len(articles))
	return articles, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
