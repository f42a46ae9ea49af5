package search

import (
	"reflect"
	"testing"
)

func art(id, title, date string) Article {
	return Article{"article_id": id, "title": title, "publish_date": date}
}

func ids(articles []Article) []string {
	out := make([]string, len(articles))
	for i, a := range articles {
		out[i] = a.ID()
	}
	return out
}

func TestDedupByTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []Article
		want []string
	}{
		{
			name: "no duplicates",
			in:   []Article{art("1", "a", "2024-01-01"), art("2", "b", "2024-01-02")},
			want: []string{"1", "2"},
		},
		{
			name: "later date wins",
			in: []Article{
				art("1", "same", "2024-01-01"),
				art("2", "same", "2024-06-01"),
			},
			want: []string{"2"},
		},
		{
			name: "earlier date dropped regardless of rank",
			in: []Article{
				art("1", "same", "2024-06-01"),
				art("2", "same", "2024-01-01"),
			},
			want: []string{"1"},
		},
		{
			name: "relevance order preserved among survivors",
			in: []Article{
				art("1", "a", "2024-01-01"),
				art("2", "b", "2023-01-01"),
				art("3", "a", "2023-06-01"),
				art("4", "c", "2024-02-01"),
			},
			want: []string{"1", "2", "4"},
		},
		{
			name: "empty",
			in:   nil,
			want: []string{},
		},
		{
			name: "missing dates keep first occurrence",
			in: []Article{
				{"article_id": "1", "title": "x"},
				{"article_id": "2", "title": "x"},
			},
			want: []string{"1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ids(DedupByTitle(tt.in))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DedupByTitle() ids = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestArticleProject(t *testing.T) {
	t.Parallel()

	a := Article{"article_id": "1", "title": "t", "review": "long text", "stars": 4}
	got := a.Project([]string{"article_id", "title", "missing"})

	if len(got) != 3 {
		t.Fatalf("got %d keys, want 3", len(got))
	}
	if got["article_id"] != "1" || got["title"] != "t" {
		t.Errorf("projection lost values: %v", got)
	}
	if v, ok := got["missing"]; !ok || v != nil {
		t.Errorf("missing key should map to nil, got %v (present=%v)", v, ok)
	}
	if _, ok := got["review"]; ok {
		t.Error("unselected key leaked into projection")
	}
}
