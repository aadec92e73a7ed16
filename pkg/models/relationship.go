package models

import (
	"time"

	"github.com/google/uuid"
)

// RelationshipType classifies a directed edge between two tables.
type RelationshipType string

const (
	RelationshipForeignKey RelationshipType = "foreign_key"
	RelationshipDerived    RelationshipType = "derived"
	RelationshipAggregated RelationshipType = "aggregated"
	RelationshipJoined     RelationshipType = "joined"
)

// ValidRelationshipTypes contains all valid relationship type values.
var ValidRelationshipTypes = []RelationshipType{
	RelationshipForeignKey,
	RelationshipDerived,
	RelationshipAggregated,
	RelationshipJoined,
}

// IsValid checks if the relationship type is one of the known values.
func (t RelationshipType) IsValid() bool {
	for _, v := range ValidRelationshipTypes {
		if v == t {
			return true
		}
	}
	return false
}

// TableRelationship is a directed lineage edge source -> target. Uniqueness
// is on (source, target, type); re-deriving an existing edge is a no-op,
// never an error.
type TableRelationship struct {
	ID               uuid.UUID        `json:"id"`
	SourceTableID    uuid.UUID        `json:"source_table_id"`
	TargetTableID    uuid.UUID        `json:"target_table_id"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Description      *string          `json:"description,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// ForeignKeyDecl is a caller-declared foreign key: a column of the declaring
// table references a column of the target table.
type ForeignKeyDecl struct {
	SourceColumn string `json:"source_column"`
	TargetSchema string `json:"target_schema"`
	TargetTable  string `json:"target_table"`
	TargetColumn string `json:"target_column"`
}
