package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValidationSummary aggregates validation results for one measurement type over
// one interval. PerErrorCount holds "type:count" entries. The per-type counts are
// expected to sum to ErrorCount but nothing enforces it on write; see Consistent.
type ValidationSummary struct {
	ID              string
	MeasurementType string
	TimestampStart  time.Time
	TimestampEnd    time.Time
	RecordCount     int64
	ErrorCount      int64
	PerErrorCount   []string
}

// SetErrorByType replaces PerErrorCount with one "type:count" entry per error
// type, sorted by type for stable storage.
func (s *ValidationSummary) SetErrorByType(counts map[string]int64) {
	types := make([]string, 0, len(counts))
	for k := range counts {
		types = append(types, k)
	}
	sort.Strings(types)
	s.PerErrorCount = make([]string, 0, len(types))
	for _, k := range types {
		s.PerErrorCount = append(s.PerErrorCount, fmt.Sprintf("%s:%d", k, counts[k]))
	}
}

// ErrorByType parses PerErrorCount back into a map. The count is taken after the
// last colon so error types may themselves contain colons.
func (s *ValidationSummary) ErrorByType() (map[string]int64, error) {
	out := make(map[string]int64, len(s.PerErrorCount))
	for _, entry := range s.PerErrorCount {
		i := strings.LastIndex(entry, ":")
		if i <= 0 {
			return nil, fmt.Errorf("validation: malformed error count %q", entry)
		}
		n, err := strconv.ParseInt(entry[i+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("validation: malformed error count %q: %w", entry, err)
		}
		out[entry[:i]] += n
	}
	return out, nil
}

// Consistent reports whether the per-type counts parse and sum to ErrorCount.
func (s *ValidationSummary) Consistent() bool {
	counts, err := s.ErrorByType()
	if err != nil {
		return false
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return total == s.ErrorCount
}

// ValidationEntry records why one measurement failed validation.
type ValidationEntry struct {
	ID            string
	SummaryID     string
	MeasurementID string
	ErrorTypes    []string
}
