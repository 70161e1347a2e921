package ingest

import (
	"time"

	"github.com/google/uuid"
)

// Fact lifecycle statuses. Superseded facts are never deleted, only
// transitioned by external processes.
const (
	FactPending    = "pending"
	FactVerified   = "verified"
	FactDisputed   = "disputed"
	FactSuperseded = "superseded"
)

// Fact is a persisted subject-predicate-object claim. The typed value
// columns are an enrichment of the untyped Object string: at most one of
// the number/date/money/percent/country/code/entity interpretations is set.
// A Fact row is never written without non-empty evidence text and a
// resolvable evidence document.
type Fact struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RunID     uuid.UUID `gorm:"type:uuid;not null;index" json:"run_id"`
	Subject   string    `gorm:"column:subject;not null;index" json:"subject"`
	Predicate string    `gorm:"column:predicate;not null;index" json:"predicate"`
	Object    string    `gorm:"column:object;not null" json:"object"`

	ValueNumber   *float64   `gorm:"column:value_number" json:"value_number,omitempty"`
	ValueDate     *time.Time `gorm:"column:value_date" json:"value_date,omitempty"`
	ValueMoney    *float64   `gorm:"column:value_money" json:"value_money,omitempty"`
	ValueCurrency *string    `gorm:"column:value_currency;size:3" json:"value_currency,omitempty"`
	ValuePercent  *float64   `gorm:"column:value_percent" json:"value_percent,omitempty"`
	ValueCountry  *string    `gorm:"column:value_country;size:2" json:"value_country,omitempty"`
	ValueCode     *string    `gorm:"column:value_code" json:"value_code,omitempty"`
	ValueEntityID *uuid.UUID `gorm:"type:uuid;column:value_entity_id" json:"value_entity_id,omitempty"`

	EvidenceText  string    `gorm:"column:evidence_text;not null" json:"evidence_text"`
	EvidenceDocID uuid.UUID `gorm:"type:uuid;column:evidence_doc_id;not null;index" json:"evidence_doc_id"`
	EvidenceStart *int      `gorm:"column:evidence_start" json:"evidence_start,omitempty"`
	EvidenceEnd   *int      `gorm:"column:evidence_end" json:"evidence_end,omitempty"`

	Confidence float64    `gorm:"column:confidence;not null" json:"confidence"`
	Status     string     `gorm:"column:status;not null;index" json:"status"`
	AsOf       *time.Time `gorm:"column:as_of" json:"as_of,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;default:now();index" json:"created_at"`
}

func (Fact) TableName() string { return "fact" }
