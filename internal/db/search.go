package db

// ExactQuery is the input for exact/near-exact pattern search.
type ExactQuery struct {
	IndexName    string
	Query        string
	TopK         int
	ReturnFields []string
}

// FuzzyQuery is the input for edit-distance-tolerant search.
// Distance selects the RediSearch fuzzy expansion level (1 or 2).
type FuzzyQuery struct {
	IndexName    string
	Query        string
	Distance     int
	TopK         int
	ReturnFields []string
}

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
