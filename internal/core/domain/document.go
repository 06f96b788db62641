package domain

// Document is the searchable text form of a record, produced by a
// document builder. Documents are transient: they exist only between
// transformation and the index write.
type Document struct {
	// ID is the stable document key, derived from the record identity
	// via RecordRef.DocumentID.
	ID string

	// Content is the full text to embed and index.
	Content string

	// Metadata contains scalar key-value pairs stored alongside the
	// vector for filtering and display.
	Metadata map[string]any
}

// IndexRecord is what the vector index persists for one document.
type IndexRecord struct {
	// ID is the document key. Upserting the same ID overwrites.
	ID string

	// Vector is the embedding of Content.
	Vector []float32

	// Content is the document text.
	Content string

	// Metadata mirrors Document.Metadata.
	Metadata map[string]any
}
