package search

// ContentRecord is the data we index for a content entity.
type ContentRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Level       string   `json:"level"`
	Tags        []string `json:"tags"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Category string `json:"category"`
	Level    string `json:"level"`
}

// Query describes a search request.
type Query struct {
	Text           string
	FilterCategory string // empty = all categories
	FilterLevel    string // empty = all levels
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a content search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}
