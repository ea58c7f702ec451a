package common

import (
	"testing"
)

func TestValidateImageURL(t *testing.T) {
	tests := []struct {
		url   string
		local bool
		valid bool
	}{
		{"https://cdn.rebrickable.com/media/sets/75192-1.jpg", false, true},
		{"http://example.com/a.png", false, true},
		{"", false, false},
		{"/media/sets/75192-1.jpg", false, false},
		{"ftp://example.com/a.png", false, false},
		{"https://localhost/a.png", false, false},
		{"http://127.0.0.1:8080/a.png", false, false},
		{"http://img.localhost/a.png", false, false},
		{"http://localhost:8080/a.png", true, true},
		{"not a url", false, false},
	}

	for _, tt := range tests {
		result := ValidateImageURL(tt.url, tt.local)
		if result != tt.valid {
			t.Errorf("ValidateImageURL(%q, %v) = %v, want %v", tt.url, tt.local, result, tt.valid)
		}
	}
}

func TestValidateRange(t *testing.T) {
	tests := []struct {
		value int
		valid bool
	}{
		{1899, false},
		{1900, true},
		{2024, true},
		{2030, true},
		{2031, false},
	}

	for _, tt := range tests {
		err := ValidateRange("year", tt.value, 1900, 2030)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateRange(%d) error = %v, want valid=%v", tt.value, err, tt.valid)
		}
	}
}

func TestValidateRequired(t *testing.T) {
	if err := ValidateRequired("part_num", "  "); err == nil {
		t.Error("expected error for blank value")
	} else if err.Field != "part_num" {
		t.Errorf("Field = %q, want part_num", err.Field)
	}
	if err := ValidateRequired("part_num", "3001"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRecordValidationResult(t *testing.T) {
	r := NewResult(4, "75192-1")
	if !r.Valid || r.HasWarnings() {
		t.Fatal("new result should be valid and empty")
	}
	if r.ToJSON() != "" {
		t.Errorf("ToJSON() = %q, want empty", r.ToJSON())
	}

	r.AddWarning("year", "year 1899 outside range 1900-2030")
	if !r.Valid {
		t.Error("warning must not invalidate the record")
	}

	r.Reject("set_num", "set_num is required")
	if r.Valid {
		t.Error("Reject should invalidate the record")
	}
	if len(r.Warnings) != 2 {
		t.Errorf("len(Warnings) = %d, want 2", len(r.Warnings))
	}
	want := `[{"field":"year","message":"year 1899 outside range 1900-2030"},{"field":"set_num","message":"set_num is required"}]`
	if got := r.ToJSON(); got != want {
		t.Errorf("ToJSON() = %s, want %s", got, want)
	}
}
