package search

// DedupByTitle keeps one article per title, preferring the most recent
// publish date. Relative order of the survivors follows the input
// ranking, so the relevance order is preserved.
func DedupByTitle(articles []Article) []Article {
	if len(articles) < 2 {
		return articles
	}

	winner := make(map[string]int, len(articles))
	for i, a := range articles {
		title, _ := a["title"].(string)
		j, ok := winner[title]
		if !ok || publishDate(a) > publishDate(articles[j]) {
			winner[title] = i
		}
	}

	out := make([]Article, 0, len(winner))
	for i, a := range articles {
		title, _ := a["title"].(string)
		if winner[title] == i {
			out = append(out, a)
		}
	}
	return out
}

// publishDate returns the article's publish date as a sortable string.
// ISO dates compare correctly as plain strings.
func publishDate(a Article) string {
	d, _ := a["publish_date"].(string)
	return d
}
