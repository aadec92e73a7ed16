package models

import (
	"time"

	"github.com/google/uuid"
)

// ColumnType is the closed set of inferred column types. Inference uses a
// fixed precedence order: boolean > integer > float > datetime > json/array
// > string (the fallback).
type ColumnType string

const (
	ColumnTypeString   ColumnType = "string"
	ColumnTypeInteger  ColumnType = "integer"
	ColumnTypeFloat    ColumnType = "float"
	ColumnTypeBoolean  ColumnType = "boolean"
	ColumnTypeDatetime ColumnType = "datetime"
	ColumnTypeJSON     ColumnType = "json"
	ColumnTypeArray    ColumnType = "array"
)

// ValidColumnTypes contains all valid column type values.
var ValidColumnTypes = []ColumnType{
	ColumnTypeString,
	ColumnTypeInteger,
	ColumnTypeFloat,
	ColumnTypeBoolean,
	ColumnTypeDatetime,
	ColumnTypeJSON,
	ColumnTypeArray,
}

// IsValid checks if the column type is one of the known values.
func (t ColumnType) IsValid() bool {
	for _, v := range ValidColumnTypes {
		if v == t {
			return true
		}
	}
	return false
}

// IsNumeric reports whether columns of this type carry an average value.
func (t ColumnType) IsNumeric() bool {
	return t == ColumnTypeInteger || t == ColumnTypeFloat
}

// ColumnMetadata represents the profiled statistics for one column. Column
// records are replaced wholesale on each re-profile of the owning table so
// stale statistics never survive.
type ColumnMetadata struct {
	ID           uuid.UUID  `json:"id"`
	TableID      uuid.UUID  `json:"table_id"`
	ColumnName   string     `json:"column_name"`
	ColumnType   ColumnType `json:"column_type"`
	IsNullable   bool       `json:"is_nullable"`
	IsPrimaryKey bool       `json:"is_primary_key"`
	IsForeignKey bool       `json:"is_foreign_key"`
	Description  *string    `json:"description,omitempty"`
	NullCount    int64      `json:"null_count"`
	UniqueCount  int64      `json:"unique_count"`
	// UniqueIsEstimate is true when the distinct count crossed the exact
	// tracking ceiling and the reported value is a sampled estimate.
	UniqueIsEstimate bool      `json:"unique_is_estimate"`
	MinValue         *string   `json:"min_value,omitempty"`
	MaxValue         *string   `json:"max_value,omitempty"`
	AvgValue         *float64  `json:"avg_value,omitempty"` // numeric columns only
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
