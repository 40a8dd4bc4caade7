// Package document holds the entities produced by the document converter
// export: documents, the chunks derived from them, and their pictures and
// tables.
package document

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Origin identifies the source file a document was converted from.
type Origin struct {
	Mimetype   string `json:"mimetype"`
	BinaryHash uint64 `json:"binary_hash"`
	Filename   string `json:"filename"`
}

// DocItem is a reference from a chunk to one of the document's elements.
type DocItem struct {
	SelfRef   string `json:"self_ref"`
	Label     string `json:"label"`
	ParentRef string `json:"parent_ref,omitempty"`
	PictureID string `json:"picture_id,omitempty"`
}

// IsPicture reports whether the item refers to a picture element.
func (d DocItem) IsPicture() bool {
	return strings.Contains(strings.ToLower(d.Label), "picture")
}

// ChunkMeta carries structural context for a chunk.
type ChunkMeta struct {
	Headings []string  `json:"headings,omitempty"`
	DocItems []DocItem `json:"doc_items,omitempty"`
	Origin   *Origin   `json:"origin,omitempty"`
}

// Chunk is a retrievable passage of a document.
type Chunk struct {
	ID         string    `json:"id,omitempty"`
	DocumentID string    `json:"document_id"`
	Text       string    `json:"text"`
	Meta       ChunkMeta `json:"meta"`
	Vector     []float32 `json:"vector,omitempty"`
}

// PictureIDs returns the picture ids referenced by the chunk's doc items,
// in order and without duplicates.
func (c Chunk) PictureIDs() []string {
	var ids []string
	seen := make(map[string]bool)
	for _, item := range c.Meta.DocItems {
		if !item.IsPicture() {
			continue
		}
		id := ResolvePictureID(c.DocumentID, item)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// PictureID builds the stored id of the index-th picture of a document.
func PictureID(documentID string, index int) string {
	return fmt.Sprintf("%s_picture_%d", documentID, index)
}

// ResolvePictureID returns the explicit picture id of a doc item, or derives
// it from a "#/pictures/N" self reference.
func ResolvePictureID(documentID string, item DocItem) string {
	if item.PictureID != "" {
		return item.PictureID
	}
	const prefix = "#/pictures/"
	if documentID == "" || !strings.HasPrefix(item.SelfRef, prefix) {
		return ""
	}
	n, err := strconv.Atoi(strings.TrimPrefix(item.SelfRef, prefix))
	if err != nil || n < 0 {
		return ""
	}
	return PictureID(documentID, n)
}

// ImageData is an embedded image, usually a base64 data URI.
type ImageData struct {
	Mimetype string `json:"mimetype"`
	DPI      int    `json:"dpi"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	URI      string `json:"uri"`
}

// Picture is a picture element of a document.
type Picture struct {
	PictureID  string     `json:"picture_id"`
	DocumentID string     `json:"document_id"`
	Label      string     `json:"label"`
	Captions   []string   `json:"captions,omitempty"`
	Image      *ImageData `json:"image,omitempty"`
}

// Table is a table element of a document. Cell data is kept as exported.
type Table struct {
	TableID    string          `json:"table_id"`
	DocumentID string          `json:"document_id"`
	Label      string          `json:"label"`
	Captions   []string        `json:"captions,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Document is a converted source document.
type Document struct {
	DocumentID string          `json:"document_id"`
	Name       string          `json:"name"`
	Origin     *Origin         `json:"origin,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Export is a converted document together with its pre-computed chunks,
// pictures and tables, ready to be indexed.
type Export struct {
	Document Document  `json:"document"`
	Chunks   []Chunk   `json:"chunks"`
	Pictures []Picture `json:"pictures,omitempty"`
	Tables   []Table   `json:"tables,omitempty"`
}

// AssignDocumentID stamps documentID on the export and all of its parts.
// Pictures without an id get the positional id.
func (e *Export) AssignDocumentID(documentID string) {
	e.Document.DocumentID = documentID
	for i := range e.Chunks {
		e.Chunks[i].DocumentID = documentID
	}
	for i := range e.Pictures {
		e.Pictures[i].DocumentID = documentID
		if e.Pictures[i].PictureID == "" {
			e.Pictures[i].PictureID = PictureID(documentID, i)
		}
	}
	for i := range e.Tables {
		e.Tables[i].DocumentID = documentID
		if e.Tables[i].TableID == "" {
			e.Tables[i].TableID = fmt.Sprintf("%s_table_%d", documentID, i)
		}
	}
}
