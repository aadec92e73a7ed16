package dataset

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lumenlake/catalog-engine/pkg/apperrors"
)

// FormatInfo describes a registered dataset format for API discovery.
type FormatInfo struct {
	Format      string   `json:"format"`
	DisplayName string   `json:"display_name"`
	Extensions  []string `json:"extensions"`
}

// Registration contains info plus the open function for a format.
type Registration struct {
	Info FormatInfo
	Open func(path string) (Reader, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each format's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Format] = reg
}

// RegisteredFormats returns info for all registered formats, sorted by name.
func RegisteredFormats() []FormatInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]FormatInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Format < result[j].Format })
	return result
}

// Open opens a source file with the named format. An empty format is
// detected from the file extension.
func Open(path, format string) (Reader, error) {
	if format == "" {
		var ok bool
		format, ok = detectFormat(path)
		if !ok {
			return nil, fmt.Errorf("%w: unrecognized extension %q",
				apperrors.ErrUnsupportedFormat, filepath.Ext(path))
		}
	}

	registryMu.RLock()
	reg, ok := registry[format]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format)
	}
	return reg.Open(path)
}

func detectFormat(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))

	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, reg := range registry {
		for _, e := range reg.Info.Extensions {
			if e == ext {
				return reg.Info.Format, true
			}
		}
	}
	return "", false
}
