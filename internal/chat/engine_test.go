package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/baronchat/baron/internal/conv"
	"github.com/baronchat/baron/internal/llm"
	"github.com/baronchat/baron/internal/search"
)

func TestPlainTurn(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	session := &fakeSession{phases: [][]conv.Chunk{
		{textChunk("שלום, "), textChunk("הנה המלצה")},
	}}
	model := &fakeModel{sessions: []*fakeSession{session}}
	e := newTestEngine(t, store, &fakeRetriever{}, testConfig())

	events, err := collect(e.Send(context.Background(), model, "k", "מה לראות?"))
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if got := replyText(events); got != "שלום, הנה המלצה" {
		t.Errorf("reply text = %q", got)
	}
	logs := eventsOfKind(events, EventLog)
	if len(logs) != 1 {
		t.Fatalf("got %d log events, want 1", len(logs))
	}
	if events[len(events)-1].Kind != EventLog {
		t.Error("log must be the final event")
	}
	if got := logs[0].Log.AdditionalInfo.RemainingMessages; got != 9 {
		t.Errorf("remaining = %d, want 9", got)
	}
	if len(eventsOfKind(events, EventInfo)) != 0 {
		t.Error("plain turn should emit no info sidecar")
	}

	// Persist order: user turn then model text.
	turns := store.history["k"]
	if len(turns) != 2 {
		t.Fatalf("persisted %d turns, want 2", len(turns))
	}
	if turns[0].Role != conv.RoleUser || turns[0].FirstText() != "מה לראות?" {
		t.Errorf("user turn = %+v", turns[0])
	}
	if turns[1].Role != conv.RoleModel || turns[1].FirstText() != "שלום, הנה המלצה" {
		t.Errorf("model turn = %+v", turns[1])
	}
}

func TestBoldMarkerSplitAcrossChunks(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	// Each '**' marker arrives torn in half, one '*' per chunk.
	session := &fakeSession{phases: [][]conv.Chunk{
		{textChunk("המלצה על *"), textChunk("*סרט מצוין*"), textChunk("* לערב")},
	}}
	model := &fakeModel{sessions: []*fakeSession{session}}
	e := newTestEngine(t, store, &fakeRetriever{}, testConfig())

	events, err := collect(e.Send(context.Background(), model, "k", "מה לראות?"))
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	const want = "המלצה על <strong>סרט מצוין</strong> לערב"
	got := replyText(events)
	if got != want {
		t.Errorf("reply text = %q, want %q", got, want)
	}
	if strings.Contains(got, "*") {
		t.Errorf("raw markers leaked to the caller: %q", got)
	}

	turns := store.history["k"]
	if len(turns) != 2 || turns[1].FirstText() != want {
		t.Errorf("persisted model turn = %+v, want text %q", turns, want)
	}
}

func TestQuotaBlockedAfterCap(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Quota.Cap = 1
	store := newFakeStore()
	e := newTestEngine(t, store, &fakeRetriever{}, cfg)

	model := &fakeModel{sessions: []*fakeSession{
		{phases: [][]conv.Chunk{{textChunk("ok")}}},
	}}
	if _, err := collect(e.Send(context.Background(), model, "k", "hi")); err != nil {
		t.Fatalf("first Send() error: %v", err)
	}

	events, err := collect(e.Send(context.Background(), &fakeModel{}, "k", "hi again"))
	if err != nil {
		t.Fatalf("blocked Send() error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventReply || events[0].Text != cfg.Quota.BlockedMessage {
		t.Errorf("blocked turn events = %+v, want single blocked reply", events)
	}
	if store.usage["k"] != 1 {
		t.Errorf("blocked turn incremented usage: %d", store.usage["k"])
	}
}

func TestQuotaWarningPrepended(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Quota.Cap = 3
	store := newFakeStore()
	store.usage["k"] = 1 // this turn leaves 1 remaining
	session := &fakeSession{phases: [][]conv.Chunk{{textChunk("ok")}}}
	model := &fakeModel{sessions: []*fakeSession{session}}
	e := newTestEngine(t, store, &fakeRetriever{}, cfg)

	if _, err := collect(e.Send(context.Background(), model, "k", "hi")); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	sent := session.received[0][0].Text
	if !strings.Contains(sent, "one final message") || !strings.Contains(sent, "User query: hi") {
		t.Errorf("model input missing warning prefix: %q", sent)
	}
	persisted := store.history["k"][0].FirstText()
	if persisted != sent {
		t.Errorf("persisted user turn %q differs from model input %q", persisted, sent)
	}
}

func TestLastMessageInfoWithoutCalls(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Quota.Cap = 1
	store := newFakeStore()
	session := &fakeSession{phases: [][]conv.Chunk{{textChunk("bye")}}}
	model := &fakeModel{sessions: []*fakeSession{session}}
	e := newTestEngine(t, store, &fakeRetriever{}, cfg)

	events, err := collect(e.Send(context.Background(), model, "k", "hi"))
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	infos := eventsOfKind(events, EventInfo)
	if len(infos) != 1 {
		t.Fatalf("got %d info events, want 1", len(infos))
	}
	if !infos[0].Info.System.LastMessage {
		t.Error("last_message flag not set")
	}
}

func TestDatasetCallTurn(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	session := &fakeSession{phases: [][]conv.Chunk{
		{textChunk("בודק... "), callChunk(llm.ToolDatasetArticles, map[string]any{
			"query":  "קומדיה רומנטית",
			"genres": []any{"קומדיה"},
		})},
		{textChunk("הנה שלוש המלצות")},
	}}
	model := &fakeModel{sessions: []*fakeSession{session}}
	retriever := &fakeRetriever{articles: []search.Article{
		{"article_id": "a1", "title": "t1", "review": "r1", "stars": 4},
		{"article_id": "a2", "title": "t2", "review": "r2", "stars": 5},
		{"article_id": "a3", "title": "t3", "review": "r3", "stars": 3},
	}}
	e := newTestEngine(t, store, retriever, testConfig())

	events, err := collect(e.Send(context.Background(), model, "k", "משהו רומנטי"))
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	infos := eventsOfKind(events, EventInfo)
	if len(infos) != 1 {
		t.Fatalf("got %d info events, want exactly 1", len(infos))
	}
	teasers, ok := infos[0].Info.Teasers.([]map[string]any)
	if !ok || len(teasers) != 3 {
		t.Fatalf("teasers = %v", infos[0].Info.Teasers)
	}
	if _, leaked := teasers[0]["review"]; leaked {
		t.Error("frontend projection leaked the review field")
	}
	if teasers[0]["article_id"] != "a1" {
		t.Errorf("teaser id = %v", teasers[0]["article_id"])
	}

	if got := replyText(events); got != "בודק... הנה שלוש המלצות" {
		t.Errorf("reply text = %q", got)
	}
	if len(retriever.filters) != 1 || retriever.filters[0].Genres[0] != "קומדיה" {
		t.Errorf("filters not passed: %+v", retriever.filters)
	}

	// Persist order: user, function result, model text.
	turns := store.history["k"]
	if len(turns) != 3 {
		t.Fatalf("persisted %d turns, want 3", len(turns))
	}
	if turns[1].Role != conv.RoleModel || turns[1].Parts[0].Result == nil {
		t.Errorf("second persisted turn should hold the function result: %+v", turns[1])
	}

	logs := eventsOfKind(events, EventLog)
	if len(logs) != 1 {
		t.Fatalf("got %d log events, want 1", len(logs))
	}
	ai := logs[0].Log.AdditionalInfo
	if len(ai.ArticleIDs) != 3 || ai.ArticleIDs[0] != "a1" {
		t.Errorf("log article ids = %v", ai.ArticleIDs)
	}
	if len(ai.FunctionCallsArgs) != 1 {
		t.Errorf("log call args = %v", ai.FunctionCallsArgs)
	}
	if ai.TrollTriggered {
		t.Error("troll flag set on dataset call")
	}
}

func TestSeenIDsExcluded(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.history["k"] = []conv.Turn{
		conv.UserTurn("earlier"),
		{Role: conv.RoleModel, Parts: []conv.Part{conv.ResultPart(llm.ToolDatasetArticles, map[string]any{
			"content": []any{
				map[string]any{"article_id": "seen-1"},
				map[string]any{"article_id": "seen-2"},
			},
		})}},
		conv.ModelTurn("earlier reply"),
	}

	session := &fakeSession{phases: [][]conv.Chunk{
		{callChunk(llm.ToolDatasetArticles, map[string]any{"query": "עוד"})},
		{textChunk("עוד המלצות")},
	}}
	model := &fakeModel{sessions: []*fakeSession{session}}
	retriever := &fakeRetriever{articles: []search.Article{{"article_id": "new-1", "title": "t"}}}
	e := newTestEngine(t, store, retriever, testConfig())

	if _, err := collect(e.Send(context.Background(), model, "k", "עוד")); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if len(retriever.excludes) != 1 {
		t.Fatalf("retriever called %d times", len(retriever.excludes))
	}
	got := retriever.excludes[0]
	if len(got) != 2 || got[0] != "seen-1" || got[1] != "seen-2" {
		t.Errorf("exclude ids = %v, want seen-1 and seen-2", got)
	}
}

func TestNoResultsTurn(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	store := newFakeStore()
	session := &fakeSession{phases: [][]conv.Chunk{
		{callChunk(llm.ToolDatasetArticles, map[string]any{"query": "ספציפי מאוד"})},
		{textChunk("מצטער, לא מצאתי")},
	}}
	model := &fakeModel{sessions: []*fakeSession{session}}
	retriever := &fakeRetriever{err: search.ErrNoResults}
	e := newTestEngine(t, store, retriever, cfg)

	events, err := collect(e.Send(context.Background(), model, "k", "חפש"))
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if len(eventsOfKind(events, EventInfo)) != 0 {
		t.Error("no-result turn should emit no info sidecar")
	}
	if len(eventsOfKind(events, EventLog)) != 1 {
		t.Error("no-result turn should still emit a log sidecar")
	}

	// Model-facing payload carries the canned no-result string.
	result := session.received[1][0].Result
	if result == nil {
		t.Fatal("followup input should be a function result part")
	}
	content, _ := result.Response["content"].([]any)
	if len(content) != 1 || content[0] != cfg.NoResultMessage {
		t.Errorf("model payload = %v, want canned no-result string", result.Response)
	}
}

func TestRetrievalFailureSurfacedToModel(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	session := &fakeSession{phases: [][]conv.Chunk{
		{callChunk(llm.ToolDatasetArticles, map[string]any{"query": "q"})},
		{textChunk("סליחה, נסו שוב")},
	}}
	model := &fakeModel{sessions: []*fakeSession{session}}
	retriever := &fakeRetriever{err: context.DeadlineExceeded}
	e := newTestEngine(t, store, retriever, testConfig())

	events, err := collect(e.Send(context.Background(), model, "k", "חפש"))
	if err != nil {
		t.Fatalf("retrieval failure must not fail the turn: %v", err)
	}
	if len(eventsOfKind(events, EventLog)) != 1 {
		t.Error("turn should complete with a log sidecar")
	}
	result := session.received[1][0].Result
	if result == nil || result.Response["content"] != searchErrorContent {
		t.Errorf("model payload = %+v, want literal search error string", result)
	}
}

func TestReservedTagAborts(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	session := &fakeSession{phases: [][]conv.Chunk{
		{textChunk("תשובה "), textChunk("זדונית <logs> כאן")},
	}}
	model := &fakeModel{sessions: []*fakeSession{session}}
	e := newTestEngine(t, store, &fakeRetriever{}, testConfig())

	events, err := collect(e.Send(context.Background(), model, "k", "hi"))
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	last := events[len(events)-1]
	if last.Kind != EventAbort {
		t.Fatalf("last event = %+v, want abort", last)
	}
	if len(eventsOfKind(events, EventLog)) != 0 {
		t.Error("aborted turn must not emit a log sidecar")
	}
	if len(store.history["k"]) != 0 {
		t.Error("aborted turn must not persist anything")
	}
}

func TestUnknownToolIgnored(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	session := &fakeSession{phases: [][]conv.Chunk{
		{textChunk("טקסט"), callChunk("future_tool", map[string]any{"x": 1.0})},
	}}
	model := &fakeModel{sessions: []*fakeSession{session}}
	e := newTestEngine(t, store, &fakeRetriever{}, testConfig())

	events, err := collect(e.Send(context.Background(), model, "k", "hi"))
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if session.streamed != 1 {
		t.Errorf("no handler parts means no followup stream, got %d streams", session.streamed)
	}
	if len(eventsOfKind(events, EventLog)) != 1 {
		t.Error("turn should still complete with a log")
	}
	// No function-result turn persisted.
	if len(store.history["k"]) != 2 {
		t.Errorf("persisted %d turns, want 2", len(store.history["k"]))
	}
}

func TestTrollCall(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	session := &fakeSession{phases: [][]conv.Chunk{
		{callChunk(llm.ToolTrollResponse, nil)},
		{textChunk("יש לי בדיוק סרט בשבילך")},
	}}
	model := &fakeModel{sessions: []*fakeSession{session}}
	e := newTestEngine(t, store, &fakeRetriever{}, testConfig())

	events, err := collect(e.Send(context.Background(), model, "k", "אתה בוט מטומטם"))
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	infos := eventsOfKind(events, EventInfo)
	if len(infos) != 1 {
		t.Fatalf("got %d info events, want 1", len(infos))
	}
	logs := eventsOfKind(events, EventLog)
	if len(logs) != 1 || !logs[0].Log.AdditionalInfo.TrollTriggered {
		t.Error("troll flag missing from log")
	}
}

func TestRegenerate(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.history["k"] = []conv.Turn{
		conv.UserTurn("שאלה ראשונה"),
		conv.ModelTurn("תשובה ראשונה"),
		conv.UserTurn("שאלה שנייה"),
		conv.ModelTurn("תשובה שנייה"),
	}
	session := &fakeSession{phases: [][]conv.Chunk{{textChunk("תשובה חדשה")}}}
	model := &fakeModel{sessions: []*fakeSession{session}}
	e := newTestEngine(t, store, &fakeRetriever{}, testConfig())

	events, err := collect(e.Regenerate(context.Background(), model, "k"))
	if err != nil {
		t.Fatalf("Regenerate() error: %v", err)
	}

	if got := session.received[0][0].Text; got != "שאלה שנייה" {
		t.Errorf("replayed message = %q, want the popped user text", got)
	}
	logs := eventsOfKind(events, EventLog)
	if len(logs) != 1 || !logs[0].Log.AdditionalInfo.Regenerate {
		t.Error("regenerate flag missing from log")
	}
	if store.usage["k"] != 1 {
		t.Errorf("regenerate should consume a quota credit, usage = %d", store.usage["k"])
	}

	turns := store.history["k"]
	if len(turns) != 4 {
		t.Fatalf("history has %d turns, want 4", len(turns))
	}
	if turns[3].FirstText() != "תשובה חדשה" {
		t.Errorf("final turn = %+v", turns[3])
	}
}

func TestTransportErrorPropagates(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	session := &fakeSession{
		phases: [][]conv.Chunk{{textChunk("partial")}},
		errs:   []error{context.DeadlineExceeded},
	}
	model := &fakeModel{sessions: []*fakeSession{session}}
	e := newTestEngine(t, store, &fakeRetriever{}, testConfig())

	events, err := collect(e.Send(context.Background(), model, "k", "hi"))
	if err == nil {
		t.Fatal("transport error should propagate")
	}
	if len(eventsOfKind(events, EventLog)) != 0 {
		t.Error("failed turn must not emit a log sidecar")
	}
	if len(store.history["k"]) != 0 {
		t.Error("failed turn must not persist")
	}
}
