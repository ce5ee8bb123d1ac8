package models

import "errors"

var (
	// ErrData covers missing dataset columns and datasets with no eligible rows.
	ErrData              = errors.New("data error")
	ErrStoreNotFound     = errors.New("collection not found")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrGenerationFormat  = errors.New("generation output missing answer")
	ErrUnsupportedMetric = errors.New("unsupported distance metric")
)

// ValidMetric reports whether m names a known distance metric.
func ValidMetric(m string) bool {
	return m == MetricCosine || m == MetricL2
}
