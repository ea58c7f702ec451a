package storage

import (
	"time"
)

// Load run statuses
const (
	RunStatusLoading = "loading"
	RunStatusIndexed = "indexed"
	RunStatusFailed  = "failed"
)

// CacheEntry is one cached API response
type CacheEntry struct {
	Key       string    `gorm:"column:cache_key;primaryKey;type:text" json:"key"`
	Value     []byte    `gorm:"not null" json:"-"`
	Size      int       `gorm:"not null" json:"size"`
	StoredAt  time.Time `gorm:"not null;index" json:"stored_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

// LoadRun tracks one catalog load
type LoadRun struct {
	ID          string     `gorm:"primaryKey;type:text" json:"id"`
	Status      string     `gorm:"not null" json:"status"`
	Step        int        `gorm:"default:0" json:"step"`
	Label       string     `json:"label"`
	Parts       int        `gorm:"default:0" json:"parts"`
	Sets        int        `gorm:"default:0" json:"sets"`
	Minifigs    int        `gorm:"default:0" json:"minifigs"`
	Warnings    int        `gorm:"default:0" json:"warnings"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ApiMetric tracks API performance metrics
type ApiMetric struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RequestID  string    `gorm:"index" json:"request_id"`
	Endpoint   string    `gorm:"not null" json:"endpoint"`
	Method     string    `gorm:"not null" json:"method"`
	StatusCode int       `gorm:"not null" json:"status_code"`
	DurationMs int       `gorm:"not null" json:"duration_ms"`
	ItemCount  int       `gorm:"default:0" json:"item_count"`
	Errors     string    `gorm:"type:text" json:"errors,omitempty"`
	Timestamp  time.Time `gorm:"not null" json:"timestamp"`
}

func (CacheEntry) TableName() string { return "api_cache" }
func (LoadRun) TableName() string    { return "load_runs" }
func (ApiMetric) TableName() string  { return "api_metrics" }
