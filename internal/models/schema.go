package models

import (
	"fmt"
	"sort"
	"strconv"
)

// Validate checks a schema read back from storage.
func (s Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema has no collection name")
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("collection %s: invalid dimension %d", s.Name, s.Dimension)
	}
	if !ValidMetric(s.Metric) {
		return fmt.Errorf("collection %s: %w %q", s.Name, ErrUnsupportedMetric, s.Metric)
	}
	return nil
}

// CheckDimension fails with ErrDimensionMismatch when n differs from the
// collection dimension.
func (s Schema) CheckDimension(n int) error {
	if n != s.Dimension {
		return fmt.Errorf("%w: collection %s has %d dimensions, vector has %d", ErrDimensionMismatch, s.Name, s.Dimension, n)
	}
	return nil
}

// SortResults orders by ascending distance, then insertion sequence.
func SortResults(results []QueryResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Seq < results[j].Seq
	})
}

// SplitSeq copies meta without the sequence key and returns the parsed sequence.
func SplitSeq(meta map[string]string) (map[string]string, int64) {
	out := make(map[string]string, len(meta))
	var seq int64
	for k, v := range meta {
		if k == MetaSeq {
			seq, _ = strconv.ParseInt(v, 10, 64)
			continue
		}
		out[k] = v
	}
	return out, seq
}
