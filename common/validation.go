package common

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a single field problem found while normalizing a record
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RecordValidationResult holds validation results for a single record.
// Warnings do not reject the record; the offending field has been nulled.
// Valid is false only when the record had to be dropped.
type RecordValidationResult struct {
	RowNumber int               `json:"row_number"`
	RecordID  string            `json:"record_id,omitempty"`
	Valid     bool              `json:"valid"`
	Warnings  []ValidationError `json:"warnings,omitempty"`
}

// NewResult starts a result for a row that is valid until proven otherwise
func NewResult(rowNum int, recordID string) *RecordValidationResult {
	return &RecordValidationResult{RowNumber: rowNum, RecordID: recordID, Valid: true}
}

// AddWarning records a non-fatal problem with a field
func (r *RecordValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{
		Field:   field,
		Message: message,
	})
}

// Reject marks the record as unusable
func (r *RecordValidationResult) Reject(field, message string) {
	r.Valid = false
	r.AddWarning(field, message)
}

// HasWarnings reports whether anything was recorded
func (r *RecordValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// ToJSON converts warnings to JSON string
func (r *RecordValidationResult) ToJSON() string {
	if len(r.Warnings) == 0 {
		return ""
	}
	data, _ := json.Marshal(r.Warnings)
	return string(data)
}

// ValidateRequired checks if a string field is not empty
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
		}
	}
	return nil
}

// ValidateRange checks that value lies within [min, max]
func ValidateRange(field string, value, min, max int) *ValidationError {
	if value < min || value > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s %d outside range %d-%d", field, value, min, max),
		}
	}
	return nil
}

// ValidateImageURL checks that raw is an absolute http(s) URL.
// Localhost and loopback hosts are rejected unless allowLocal is set.
func ValidateImageURL(raw string, allowLocal bool) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if allowLocal {
		return true
	}
	host := strings.ToLower(u.Hostname())
	return host != "localhost" && host != "127.0.0.1" && host != "::1" && !strings.HasSuffix(host, ".localhost")
}
