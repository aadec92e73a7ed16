package services

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/lumenlake/catalog-engine/pkg/models"
)

// Candidate types are tried from most to least specific. A column is
// promoted to a candidate only when at least promotionThreshold of its
// sampled non-null values parse cleanly; otherwise it falls through to the
// next candidate and ultimately to string, which accepts anything.
var typePrecedence = []models.ColumnType{
	models.ColumnTypeBoolean,
	models.ColumnTypeInteger,
	models.ColumnTypeFloat,
	models.ColumnTypeDatetime,
	models.ColumnTypeJSON,
	models.ColumnTypeArray,
}

var booleanTokens = map[string]struct{}{
	"true": {}, "false": {},
	"1": {}, "0": {},
	"yes": {}, "no": {},
	"t": {}, "f": {},
}

var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func inferColumnType(samples []string, promotionThreshold float64) models.ColumnType {
	if len(samples) == 0 {
		return models.ColumnTypeString
	}

	counts := make(map[models.ColumnType]int, len(typePrecedence))
	for _, raw := range samples {
		for _, candidate := range typePrecedence {
			if parsesAs(raw, candidate) {
				counts[candidate]++
			}
		}
	}

	for _, candidate := range typePrecedence {
		clean := float64(counts[candidate]) / float64(len(samples))
		if counts[candidate] > 0 && clean >= promotionThreshold {
			return candidate
		}
	}
	return models.ColumnTypeString
}

func parsesAs(raw string, t models.ColumnType) bool {
	switch t {
	case models.ColumnTypeBoolean:
		_, ok := booleanTokens[strings.ToLower(strings.TrimSpace(raw))]
		return ok
	case models.ColumnTypeInteger:
		_, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		return err == nil
	case models.ColumnTypeFloat:
		_, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		return err == nil
	case models.ColumnTypeDatetime:
		_, ok := parseDatetime(raw)
		return ok
	case models.ColumnTypeJSON:
		s := strings.TrimSpace(raw)
		return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
	case models.ColumnTypeArray:
		s := strings.TrimSpace(raw)
		return strings.HasPrefix(s, "[") && json.Valid([]byte(s))
	default:
		return true
	}
}

func parseDatetime(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseFloatValue(raw string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	return f, err == nil
}
