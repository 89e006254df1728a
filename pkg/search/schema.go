package search

import "time"

// Document is one indexed record. The schema is fixed, so a map keeps
// the client decoupled from per-index field sets while still keying on
// chunk_id.
type Document map[string]any

// ChunkID returns the document key, if present.
func (d Document) ChunkID() string {
	if v, ok := d["chunk_id"].(string); ok {
		return v
	}
	if v, ok := d["id"].(string); ok {
		return v
	}
	return ""
}

// Query describes one search request.
type Query struct {
	Text   string
	Filter string
	Select []string
	Top    int
}

// IndexerState summarizes an indexer's current and last-run status.
type IndexerState struct {
	Status        string
	LastRunStatus string
	LastRunError  string
	LastRunEnded  time.Time
}

// Field is one index schema field.
type Field struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Key        bool   `json:"key,omitempty"`
	Searchable bool   `json:"searchable"`
	Filterable bool   `json:"filterable"`
	Sortable   bool   `json:"sortable"`
	Facetable  bool   `json:"facetable"`

	Dimensions          int    `json:"dimensions,omitempty"`
	VectorSearchProfile string `json:"vectorSearchProfile,omitempty"`
}

// VectorSearch configures the HNSW algorithm and profile a vector field
// references.
type VectorSearch struct {
	Algorithms []VectorAlgorithm `json:"algorithms"`
	Profiles   []VectorProfile   `json:"profiles"`
}

// VectorAlgorithm names one approximate-nearest-neighbor configuration.
type VectorAlgorithm struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// VectorProfile binds a profile name to an algorithm.
type VectorProfile struct {
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
}

// IndexDefinition is the create/update payload for an index.
type IndexDefinition struct {
	Name         string        `json:"name"`
	Fields       []Field       `json:"fields"`
	VectorSearch *VectorSearch `json:"vectorSearch,omitempty"`
}

// DocumentIndexSchema is the fixed schema every document index uses:
// id as key, searchable content, and the blob metadata_storage_* fields
// for filtering by source file.
func DocumentIndexSchema(name string) IndexDefinition {
	return IndexDefinition{
		Name: name,
		Fields: []Field{
			{Name: "id", Type: "Edm.String", Key: true, Filterable: true},
			{Name: "chunk_id", Type: "Edm.String", Filterable: true},
			{Name: "content", Type: "Edm.String", Searchable: true},
			{Name: "metadata_storage_name", Type: "Edm.String", Searchable: true, Filterable: true},
			{Name: "metadata_storage_path", Type: "Edm.String", Filterable: true},
			{Name: "metadata_storage_content_type", Type: "Edm.String", Filterable: true},
			{Name: "metadata_storage_size", Type: "Edm.Int64", Filterable: true},
			{Name: "metadata_storage_last_modified", Type: "Edm.DateTimeOffset", Filterable: true, Sortable: true},
		},
	}
}

// VectorIndexSchema extends the document schema with an embedding field
// of the given dimensionality.
func VectorIndexSchema(name string, dimensions int) IndexDefinition {
	def := DocumentIndexSchema(name)
	def.Fields = append(def.Fields, Field{
		Name:                "content_vector",
		Type:                "Collection(Edm.Single)",
		Searchable:          true,
		Dimensions:          dimensions,
		VectorSearchProfile: "default",
	})
	def.VectorSearch = &VectorSearch{
		Algorithms: []VectorAlgorithm{{Name: "hnsw-default", Kind: "hnsw"}},
		Profiles:   []VectorProfile{{Name: "default", Algorithm: "hnsw-default"}},
	}
	return def
}
