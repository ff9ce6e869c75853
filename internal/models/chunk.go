package models

// Chunk is the immutable product of text segmentation. ChunkID is
// "<source>_<index>"; Metadata always carries the "source" key.
type Chunk struct {
	ChunkID    string            `json:"chunk_id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata"`
	TokenCount int               `json:"token_count"`
	ChunkIndex int               `json:"chunk_index"`
}

// Source returns the originating source path of the chunk.
func (c *Chunk) Source() string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata["source"]
}

// VectorRecord is a chunk indexed for semantic search within a collection.
// Embeddings within one collection share dimensionality; collection names
// match use-case keys for per-use-case scoping.
type VectorRecord struct {
	ChunkID    string            `json:"chunk_id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata"`
	Embedding  []float32         `json:"embedding,omitempty"`
	Collection string            `json:"collection"`
	TokenCount int               `json:"token_count"`
}

// SearchResult pairs a stored record with its similarity to a query.
type SearchResult struct {
	Record     VectorRecord `json:"record"`
	Similarity float64      `json:"similarity"`
}
