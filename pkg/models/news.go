package models

// NewsItem is a single normalized news result for a coin, regardless of
// whether it came from the search API's news collection, its web collection,
// or an RSS fallback feed.
type NewsItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// NewsResult holds the news lookup outcome for one coin. Exactly one of
// Items, Message, or Error is meaningful: Items when results were found,
// Message when the search succeeded but matched nothing, Error when the
// lookup failed.
type NewsResult struct {
	Coin    string     `json:"coin"`
	Items   []NewsItem `json:"items,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   string     `json:"error,omitempty"`
}
