package search

// sources of retrieved documents
const (
	SourceMilvus   = "milvus"
	SourceBM25     = "bm25"
	SourceReranked = "reranked"
)

// Sources lists known sources in display order
var Sources = []string{SourceMilvus, SourceBM25, SourceReranked}

// Query is the body of search and retrieve calls
type Query struct {
	Query string `json:"query"`
	Model string `json:"model"`
}

// Answer of /api/search
type Answer struct {
	Answer string `json:"answer"`
}

// Retrieved of /api/retrieve
type Retrieved struct {
	Milvus   Documents `json:"milvus_retrieved_doc"`
	BM25     Documents `json:"bm25_retrieved_doc"`
	Reranked Documents `json:"reranked"`
}

// Result merges search and retrieve
type Result struct {
	Answer string
	Retrieved
}

// BySource ...
func (z Retrieved) BySource(source string) (Documents, bool) {
	switch source {
	case SourceMilvus:
		return z.Milvus, true
	case SourceBM25:
		return z.BM25, true
	case SourceReranked:
		return z.Reranked, true
	}
	return nil, false
}

// Documents is a list of retrieved texts, addressed by 1-based index
type Documents []string

// First returns the first document and index 1, or empty text when none
func (z Documents) First() (string, int) {
	if len(z) == 0 {
		return "", 1
	}
	return z[0], 1
}

// Step moves from current by direction and wraps around on both ends.
// An empty list yields empty text and index 1.
func (z Documents) Step(current, direction int) (string, int) {
	n := len(z)
	if n == 0 {
		return "", 1
	}
	current += direction
	if current < 1 {
		current = n
	} else if current > n {
		current = 1
	}
	return z[current-1], current
}
