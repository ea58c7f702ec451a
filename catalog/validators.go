package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"brick-catalog/common"
	"brick-catalog/parsers"
)

// Rules holds the plausibility bounds applied while normalizing rows
type Rules struct {
	YearMin     int
	YearMax     int
	CategoryMin int
	CategoryMax int

	// AllowLocalImages accepts image URLs pointing at localhost
	AllowLocalImages bool

	// Templates use {id} as the placeholder for the entity number
	SetImageTemplate     string
	MinifigImageTemplate string
	PartImageTemplate    string
}

// DefaultRules returns the bounds used for the public catalog dump
func DefaultRules() Rules {
	return Rules{
		YearMin:              1900,
		YearMax:              2030,
		CategoryMin:          1,
		CategoryMax:          1000,
		SetImageTemplate:     "https://cdn.rebrickable.com/media/sets/{id}.jpg",
		MinifigImageTemplate: "https://cdn.rebrickable.com/media/minifigs/{id}.jpg",
		PartImageTemplate:    "https://cdn.rebrickable.com/media/parts/ldraw/{id}.png",
	}
}

// SetImageURL builds the CDN image URL for a set
func (r Rules) SetImageURL(setNum string) string {
	return strings.ReplaceAll(r.SetImageTemplate, "{id}", setNum)
}

// MinifigImageURL builds the CDN image URL for a minifig
func (r Rules) MinifigImageURL(figNum string) string {
	return strings.ReplaceAll(r.MinifigImageTemplate, "{id}", figNum)
}

// PartImageURL builds the CDN image URL for a part, optionally in a color
func (r Rules) PartImageURL(partNum string, colorID *int) string {
	u := strings.ReplaceAll(r.PartImageTemplate, "{id}", partNum)
	if colorID != nil {
		u += "?color=" + strconv.Itoa(*colorID)
	}
	return u
}

// toInt coerces a field, falling back to def when it is empty or not a number
func toInt(result *common.RecordValidationResult, rec parsers.Record, field string, def int) int {
	raw := strings.TrimSpace(rec[field])
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		result.AddWarning(field, fmt.Sprintf("%s %q is not a number", field, raw))
		return def
	}
	return n
}

// toOptionalInt coerces a nullable field; empty means null without a warning
func toOptionalInt(result *common.RecordValidationResult, rec parsers.Record, field string) *int {
	raw := strings.TrimSpace(rec[field])
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		result.AddWarning(field, fmt.Sprintf("%s %q is not a number", field, raw))
		return nil
	}
	return &n
}

func toBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "t", "true", "1", "yes":
		return true
	}
	return false
}

func required(result *common.RecordValidationResult, rec parsers.Record, field string) string {
	value := strings.TrimSpace(rec[field])
	if err := common.ValidateRequired(field, value); err != nil {
		result.Reject(err.Field, err.Message)
	}
	return value
}

func (r Rules) imageURL(result *common.RecordValidationResult, raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if common.ValidateImageURL(raw, r.AllowLocalImages) {
		return raw
	}
	if raw != "" {
		result.AddWarning("img_url", fmt.Sprintf("img_url %q replaced with %s", raw, fallback))
	}
	return fallback
}

// NormalizeColor converts a colors.csv row
func (r Rules) NormalizeColor(rec parsers.Record, rowNum int) (Color, *common.RecordValidationResult) {
	result := common.NewResult(rowNum, rec["id"])
	id := toOptionalInt(result, rec, "id")
	if id == nil {
		result.Reject("id", "id is required")
		return Color{}, result
	}
	return Color{
		ID:            *id,
		Name:          rec["name"],
		RGB:           rec["rgb"],
		IsTransparent: toBool(rec["is_trans"]),
		NumParts:      toInt(result, rec, "num_parts", 0),
		NumSets:       toInt(result, rec, "num_sets", 0),
		YearFrom:      toInt(result, rec, "y1", 0),
		YearTo:        toInt(result, rec, "y2", 0),
	}, result
}

// NormalizeTheme converts a themes.csv row
func (r Rules) NormalizeTheme(rec parsers.Record, rowNum int) (Theme, *common.RecordValidationResult) {
	result := common.NewResult(rowNum, rec["id"])
	id := toOptionalInt(result, rec, "id")
	if id == nil {
		result.Reject("id", "id is required")
		return Theme{}, result
	}
	return Theme{
		ID:       *id,
		Name:     rec["name"],
		ParentID: toOptionalInt(result, rec, "parent_id"),
	}, result
}

// NormalizeCategory converts a part_categories.csv row
func (r Rules) NormalizeCategory(rec parsers.Record, rowNum int) (PartCategory, *common.RecordValidationResult) {
	result := common.NewResult(rowNum, rec["id"])
	id := toOptionalInt(result, rec, "id")
	if id == nil {
		result.Reject("id", "id is required")
		return PartCategory{}, result
	}
	return PartCategory{ID: *id, Name: rec["name"]}, result
}

// NormalizePart converts a parts.csv row. A category id outside the
// plausible range is nulled.
func (r Rules) NormalizePart(rec parsers.Record, rowNum int) (Part, *common.RecordValidationResult) {
	result := common.NewResult(rowNum, rec["part_num"])
	partNum := required(result, rec, "part_num")
	if !result.Valid {
		return Part{}, result
	}

	categoryID := toOptionalInt(result, rec, "part_cat_id")
	if categoryID != nil {
		if err := common.ValidateRange("part_cat_id", *categoryID, r.CategoryMin, r.CategoryMax); err != nil {
			result.AddWarning(err.Field, err.Message)
			categoryID = nil
		}
	}

	return Part{
		PartNum:    partNum,
		Name:       rec["name"],
		CategoryID: categoryID,
		Material:   rec["part_material"],
		ImageURL:   r.PartImageURL(partNum, nil),
	}, result
}

// NormalizeSet converts a sets.csv row. Implausible years are nulled and
// unusable image URLs are rebuilt from the CDN template.
func (r Rules) NormalizeSet(rec parsers.Record, rowNum int) (Set, *common.RecordValidationResult) {
	result := common.NewResult(rowNum, rec["set_num"])
	setNum := required(result, rec, "set_num")
	if !result.Valid {
		return Set{}, result
	}

	year := toOptionalInt(result, rec, "year")
	if year != nil {
		if err := common.ValidateRange("year", *year, r.YearMin, r.YearMax); err != nil {
			result.AddWarning(err.Field, err.Message)
			year = nil
		}
	}

	return Set{
		SetNum:   setNum,
		Name:     rec["name"],
		Year:     year,
		ThemeID:  toOptionalInt(result, rec, "theme_id"),
		NumParts: toInt(result, rec, "num_parts", 0),
		ImageURL: r.imageURL(result, rec["img_url"], r.SetImageURL(setNum)),
	}, result
}

// NormalizeMinifig converts a minifigs.csv row
func (r Rules) NormalizeMinifig(rec parsers.Record, rowNum int) (Minifig, *common.RecordValidationResult) {
	result := common.NewResult(rowNum, rec["fig_num"])
	figNum := required(result, rec, "fig_num")
	if !result.Valid {
		return Minifig{}, result
	}
	return Minifig{
		FigNum:   figNum,
		Name:     rec["name"],
		NumParts: toInt(result, rec, "num_parts", 0),
		ImageURL: r.imageURL(result, rec["img_url"], r.MinifigImageURL(figNum)),
	}, result
}

// NormalizeInventory converts an inventories.csv row
func (r Rules) NormalizeInventory(rec parsers.Record, rowNum int) (Inventory, *common.RecordValidationResult) {
	result := common.NewResult(rowNum, rec["id"])
	id := toOptionalInt(result, rec, "id")
	if id == nil {
		result.Reject("id", "id is required")
		return Inventory{}, result
	}
	return Inventory{
		ID:      *id,
		Version: toInt(result, rec, "version", 1),
		SetNum:  strings.TrimSpace(rec["set_num"]),
	}, result
}

// NormalizeInventoryPart converts an inventory_parts row. The set number may
// be empty here; the store resolves it through the inventories table.
func (r Rules) NormalizeInventoryPart(rec parsers.Record, rowNum int) (InventoryPart, *common.RecordValidationResult) {
	result := common.NewResult(rowNum, rec["part_num"])
	partNum := required(result, rec, "part_num")
	if !result.Valid {
		return InventoryPart{}, result
	}
	return InventoryPart{
		InventoryID: toInt(result, rec, "inventory_id", 0),
		SetNum:      strings.TrimSpace(rec["set_num"]),
		PartNum:     partNum,
		ColorID:     toInt(result, rec, "color_id", 0),
		Quantity:    toInt(result, rec, "quantity", 1),
		IsSpare:     toBool(rec["is_spare"]),
	}, result
}

// NormalizeInventorySet converts an inventory_sets.csv row
func (r Rules) NormalizeInventorySet(rec parsers.Record, rowNum int) (InventorySet, *common.RecordValidationResult) {
	result := common.NewResult(rowNum, rec["set_num"])
	return InventorySet{
		InventoryID: toInt(result, rec, "inventory_id", 0),
		SetNum:      strings.TrimSpace(rec["set_num"]),
		Quantity:    toInt(result, rec, "quantity", 1),
	}, result
}

// NormalizeInventoryMinifig converts an inventory_minifigs.csv row
func (r Rules) NormalizeInventoryMinifig(rec parsers.Record, rowNum int) (InventoryMinifig, *common.RecordValidationResult) {
	result := common.NewResult(rowNum, rec["fig_num"])
	figNum := required(result, rec, "fig_num")
	if !result.Valid {
		return InventoryMinifig{}, result
	}
	return InventoryMinifig{
		InventoryID: toInt(result, rec, "inventory_id", 0),
		SetNum:      strings.TrimSpace(rec["set_num"]),
		FigNum:      figNum,
		Quantity:    toInt(result, rec, "quantity", 1),
	}, result
}

// Check normalizes one row of the given kind without storing it
func (r Rules) Check(kind Kind, rec parsers.Record, rowNum int) (*common.RecordValidationResult, error) {
	var result *common.RecordValidationResult
	switch kind {
	case KindColors:
		_, result = r.NormalizeColor(rec, rowNum)
	case KindThemes:
		_, result = r.NormalizeTheme(rec, rowNum)
	case KindCategories:
		_, result = r.NormalizeCategory(rec, rowNum)
	case KindParts:
		_, result = r.NormalizePart(rec, rowNum)
	case KindSets:
		_, result = r.NormalizeSet(rec, rowNum)
	case KindMinifigs:
		_, result = r.NormalizeMinifig(rec, rowNum)
	case KindInventories:
		_, result = r.NormalizeInventory(rec, rowNum)
	case KindInventorySets:
		_, result = r.NormalizeInventorySet(rec, rowNum)
	case KindInventoryMinifigs:
		_, result = r.NormalizeInventoryMinifig(rec, rowNum)
	case KindInventoryParts:
		_, result = r.NormalizeInventoryPart(rec, rowNum)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return result, nil
}
