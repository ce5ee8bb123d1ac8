package models

import "time"

// Record is one complaint row that survived the product/narrative filter.
type Record struct {
	ComplaintID  string
	Product      string
	Narrative    string
	Cleaned      string
	WordCount    int
	DateReceived string
	Company      string
	Issue        string
	State        string
}

// Chunk represents a window of a cleaned narrative with its source
type Chunk struct {
	Content     string
	ComplaintID string
	Product     string
	ChunkID     int
}

// Entry is what a vector store persists.
type Entry struct {
	ID        string
	Embedding []float32
	Content   string
	Metadata  map[string]string
}

// QueryResult is a single hit; Distance is smaller for closer entries.
type QueryResult struct {
	ID       string
	Content  string
	Metadata map[string]string
	Distance float32
	// Seq is the insertion sequence number, used to order equal distances.
	Seq int64
}

// Schema is the persisted description of a collection, verified on every open.
type Schema struct {
	Name      string    `yaml:"name"`
	Dimension int       `yaml:"dimension"`
	Metric    string    `yaml:"metric"`
	CreatedAt time.Time `yaml:"created_at"`
}

type PromptResponse struct {
	Query   string
	Source  string
	Content string
	Results []QueryResult
}

// Documents returns the retrieved chunk texts in relevance order.
func (r *PromptResponse) Documents() []string {
	docs := make([]string, len(r.Results))
	for i, res := range r.Results {
		docs[i] = res.Content
	}
	return docs
}

func (r *PromptResponse) Metadatas() []map[string]string {
	metas := make([]map[string]string, len(r.Results))
	for i, res := range r.Results {
		metas[i] = res.Metadata
	}
	return metas
}
