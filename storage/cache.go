package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultTTL is how long a cached response stays valid
	DefaultTTL = 24 * time.Hour
	// DefaultMaxBytes caps the total size of cached values
	DefaultMaxBytes = 50 * 1024 * 1024
	// cleanTarget is the fraction of the cap a cleanup shrinks the cache to
	cleanTarget = 0.8
)

// Cache keeps API responses in sqlite with a per-entry expiry
type Cache struct {
	db       *gorm.DB
	ttl      time.Duration
	maxBytes int64
	now      func() time.Time
}

// NewCache creates a cache. Non-positive ttl or maxBytes use the defaults.
func NewCache(db *gorm.DB, ttl time.Duration, maxBytes int64) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Cache{db: db, ttl: ttl, maxBytes: maxBytes, now: time.Now}
}

// Get returns a live entry. Expired entries are deleted and reported as missing.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry CacheEntry
	err := c.db.WithContext(ctx).Where("cache_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache %s: %w", key, err)
	}

	if !c.now().Before(entry.ExpiresAt) {
		if err := c.db.WithContext(ctx).Delete(&CacheEntry{}, "cache_key = ?", key).Error; err != nil {
			log.Printf("Cache: failed to delete expired %s: %v", key, err)
		}
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Set stores value under key, replacing any previous entry
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	now := c.now()
	entry := CacheEntry{
		Key:       key,
		Value:     value,
		Size:      len(value),
		StoredAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "size", "stored_at", "expires_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}

	total, err := c.Usage(ctx)
	if err != nil {
		return err
	}
	if total > c.maxBytes {
		if _, err := c.Clean(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Usage returns the total size of cached values in bytes
func (c *Cache) Usage(ctx context.Context) (int64, error) {
	var total int64
	err := c.db.WithContext(ctx).Model(&CacheEntry{}).Select("COALESCE(SUM(size), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("measure cache: %w", err)
	}
	return total, nil
}

// Clean removes expired entries, then the oldest entries until usage is at
// most 80% of the cap. It returns how many entries were removed.
func (c *Cache) Clean(ctx context.Context) (int64, error) {
	db := c.db.WithContext(ctx)

	res := db.Where("expires_at <= ?", c.now()).Delete(&CacheEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired: %w", res.Error)
	}
	removed := res.RowsAffected

	total, err := c.Usage(ctx)
	if err != nil {
		return removed, err
	}
	target := int64(float64(c.maxBytes) * cleanTarget)
	if total <= target {
		return removed, nil
	}

	var oldest []CacheEntry
	if err := db.Select("cache_key", "size").Order("stored_at ASC").Find(&oldest).Error; err != nil {
		return removed, fmt.Errorf("list cache: %w", err)
	}
	var keys []string
	for _, e := range oldest {
		if total <= target {
			break
		}
		keys = append(keys, e.Key)
		total -= int64(e.Size)
	}
	if len(keys) > 0 {
		res := db.Where("cache_key IN ?", keys).Delete(&CacheEntry{})
		if res.Error != nil {
			return removed, fmt.Errorf("evict cache: %w", res.Error)
		}
		removed += res.RowsAffected
	}
	log.Printf("Cache: cleaned %d entries", removed)
	return removed, nil
}

// Clear removes every entry
func (c *Cache) Clear(ctx context.Context) error {
	return c.db.WithContext(ctx).Where("1 = 1").Delete(&CacheEntry{}).Error
}
