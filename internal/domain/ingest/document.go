package ingest

import (
	"time"

	"github.com/google/uuid"
)

// Document is the source text a pipeline run ingests. Rows are created by
// the upload collaborator; this core only reads them and derives chunks.
type Document struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SourceURL string    `gorm:"column:source_url" json:"source_url,omitempty"`
	Title     string    `gorm:"column:title" json:"title,omitempty"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Document) TableName() string { return "document" }

// DocumentChunk is one overlapping word window over a Document. CharStart
// and CharEnd are byte offsets into Document.Content shared with fact
// evidence spans.
type DocumentChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index:idx_chunk_doc_seq,unique" json:"document_id"`
	ChunkIndex int       `gorm:"column:chunk_index;not null;index:idx_chunk_doc_seq,unique" json:"chunk_index"`
	Content    string    `gorm:"column:content;type:text;not null" json:"content"`
	CharStart  int       `gorm:"column:char_start;not null" json:"char_start"`
	CharEnd    int       `gorm:"column:char_end;not null" json:"char_end"`
	WordCount  int       `gorm:"column:word_count;not null" json:"word_count"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }
