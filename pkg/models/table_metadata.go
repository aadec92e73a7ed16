package models

import (
	"time"

	"github.com/google/uuid"
)

// TableType classifies a cataloged table.
type TableType string

const (
	TableTypeTable            TableType = "table"
	TableTypeView             TableType = "view"
	TableTypeMaterializedView TableType = "materialized_view"
	TableTypeExternal         TableType = "external_table"
)

// ValidTableTypes contains all valid table type values.
var ValidTableTypes = []TableType{
	TableTypeTable,
	TableTypeView,
	TableTypeMaterializedView,
	TableTypeExternal,
}

// IsValid checks if the table type is one of the known values.
func (t TableType) IsValid() bool {
	for _, v := range ValidTableTypes {
		if v == t {
			return true
		}
	}
	return false
}

// TableMetadata represents one cataloged table. The `(schema_name,
// table_name)` pair is unique; a row is created on the first successful
// profiling job for that key and updated on every re-profile.
type TableMetadata struct {
	ID             uuid.UUID  `json:"id"`
	SchemaName     string     `json:"schema_name"`
	TableName      string     `json:"table_name"`
	TableType      TableType  `json:"table_type"`
	Description    *string    `json:"description,omitempty"`
	RowCount       *int64     `json:"row_count,omitempty"`
	SizeBytes      *int64     `json:"size_bytes,omitempty"`
	LastAnalyzedAt *time.Time `json:"last_analyzed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Key returns the canonical "schema.table" identifier used for cache keys
// and the per-table in-flight lock.
func (t *TableMetadata) Key() string {
	return TableKey(t.SchemaName, t.TableName)
}

// TableKey builds the canonical "schema.table" identifier.
func TableKey(schemaName, tableName string) string {
	return schemaName + "." + tableName
}

// TableProfile is the profile shape returned to collaborators: the table
// summary plus its column records.
type TableProfile struct {
	Table   TableMetadata    `json:"table"`
	Columns []ColumnMetadata `json:"columns"`
}
