package ingest

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Entity is a company/person/product mention surfaced by normalization.
// Entities are stored as soon as normalization succeeds; they are not gated
// on the policy decision.
type Entity struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name          string         `gorm:"column:name;not null;index" json:"name"`
	Type          string         `gorm:"column:type;index" json:"type,omitempty"`
	Identifiers   datatypes.JSON `gorm:"column:identifiers;type:jsonb" json:"identifiers,omitempty"`
	Addresses     datatypes.JSON `gorm:"column:addresses;type:jsonb" json:"addresses,omitempty"`
	Relationships datatypes.JSON `gorm:"column:relationships;type:jsonb" json:"relationships,omitempty"`
	Metadata      datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (Entity) TableName() string { return "entity" }
