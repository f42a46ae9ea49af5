package chat

import (
	"context"
	"errors"

	"github.com/baronchat/baron/internal/conv"
	"github.com/baronchat/baron/internal/llm"
	"github.com/baronchat/baron/internal/search"
)

// searchErrorContent is what the model sees when the retrieval backend
// fails. The model composes an apology from it; the failure never
// propagates up through the turn.
const searchErrorContent = "article search error"

// trollArticle is the fixed easter-egg item returned when the model
// decides the user is trolling. The handler only formats it; detection
// is entirely the model's call.
var trollArticle = search.Article{
	"article_id":   "troll-2016",
	"title":        "טרולים",
	"review":       "כשמתחשק לכם להתגרות בבוט, אין כמו סרט על טרולים אמיתיים. מוזיקה קצבית, צבעים זועקים והמון שמחת חיים.",
	"genre":        []string{"אנימציה", "ילדים ולכל המשפחה"},
	"platform":     []string{"Netflix"},
	"media_type":   "movie",
	"writer":       "",
	"tone":         "playful",
	"stars":        5,
	"publish_date": "2016-11-03",
}

// dispatch carries the per-turn inputs a handler may need.
type dispatch struct {
	model   Model
	message string
	seen    []string
}

// handler executes one model function call. It returns the parts fed
// back to the model and, when the call surfaced concrete items, the raw
// results for the frontend teaser projection.
type handler func(ctx context.Context, d dispatch, call conv.FunctionCall) (parts []conv.Part, results []search.Article)

// handlers returns the registry keyed by tool name. Call names absent
// from the registry are logged and skipped; an unknown tool degrades
// silently instead of failing the turn.
func (e *Engine) handlers() map[string]handler {
	return map[string]handler{
		llm.ToolDatasetArticles: e.handleDatasetArticles,
		llm.ToolTrollResponse:   e.handleTrollResponse,
	}
}

func (e *Engine) handleDatasetArticles(ctx context.Context, d dispatch, call conv.FunctionCall) ([]conv.Part, []search.Article) {
	query, _ := call.Args[llm.ArgQuery].(string)
	if query == "" {
		// No derivable query is not an error; fall back to the raw
		// user message.
		query = d.message
	}
	filters := filtersFromArgs(call.Args)

	e.logger.Info("executing article search",
		"query", query,
		"platforms", filters.Platforms,
		"genres", filters.Genres,
		"media_type", filters.MediaType,
		"writers", filters.Writers)

	translated := d.model.TranslateQuery(ctx, query)
	articles, err := e.retriever.Search(ctx, translated, filters, d.seen)
	switch {
	case errors.Is(err, search.ErrNoResults):
		return []conv.Part{conv.ResultPart(call.Name, map[string]any{
			"content": []any{e.cfg.NoResultMessage},
		})}, nil
	case err != nil:
		e.logger.Error("article search failed", "error", err)
		return []conv.Part{conv.ResultPart(call.Name, map[string]any{
			"content": searchErrorContent,
		})}, nil
	}

	content := make([]any, len(articles))
	for i, a := range articles {
		content[i] = a.Project(e.cfg.FieldsForLLM)
	}
	return []conv.Part{conv.ResultPart(call.Name, map[string]any{
		"content": content,
	})}, articles
}

func (e *Engine) handleTrollResponse(_ context.Context, _ dispatch, call conv.FunctionCall) ([]conv.Part, []search.Article) {
	e.logger.Debug("triggering troll response")
	return []conv.Part{conv.ResultPart(call.Name, map[string]any{
		"content": []any{trollArticle.Project(e.cfg.FieldsForLLM)},
	})}, []search.Article{trollArticle}
}

// filtersFromArgs lifts the loosely typed call arguments into search
// filters. Anything that is not the expected shape is ignored.
func filtersFromArgs(args map[string]any) search.Filters {
	return search.Filters{
		Platforms: stringSlice(args[llm.ArgStreamingPlatforms]),
		Genres:    stringSlice(args[llm.ArgGenres]),
		MediaType: stringArg(args[llm.ArgMediaType]),
		Writers:   stringSlice(args[llm.ArgWriterFilter]),
	}
}

func stringArg(v any) string {
	s, _ := v.(string)
	return s
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// extractSeenIDs collects every article id surfaced by prior dataset
// calls in the conversation, so retrieval can exclude them.
func extractSeenIDs(history []conv.Turn) []string {
	var seen []string
	for _, turn := range history {
		for _, part := range turn.Parts {
			if part.Result == nil || part.Result.Name != llm.ToolDatasetArticles {
				continue
			}
			content, ok := part.Result.Response["content"].([]any)
			if !ok {
				continue
			}
			for _, item := range content {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if id, ok := m["article_id"].(string); ok && id != "" {
					seen = append(seen, id)
				}
			}
		}
	}
	return seen
}
