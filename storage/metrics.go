package storage

import (
	"brick-catalog/common"

	"gorm.io/gorm"
)

// Metrics persists request metrics from common.MetricsMiddleware
type Metrics struct {
	db *gorm.DB
}

func NewMetrics(db *gorm.DB) *Metrics {
	return &Metrics{db: db}
}

func (m *Metrics) RecordMetric(metric common.ApiMetric) error {
	return m.db.Create(&ApiMetric{
		RequestID:  metric.RequestID,
		Endpoint:   metric.Endpoint,
		Method:     metric.Method,
		StatusCode: metric.StatusCode,
		DurationMs: metric.DurationMs,
		ItemCount:  metric.ItemCount,
		Errors:     metric.Errors,
		Timestamp:  metric.Timestamp,
	}).Error
}

var _ common.MetricRecorder = (*Metrics)(nil)
