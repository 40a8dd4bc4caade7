package document

// Filter keys understood by the chunk and document stores.
const (
	FilterDocumentID = "document_id"
	FilterFilename   = "filename"
)

// SearchRequest describes a chunk or document search. Query drives lexical
// matching and Vector drives similarity; either may be empty.
type SearchRequest struct {
	Query   string
	Vector  []float32
	Size    int
	Filters map[string]string
}
