package catalog

import (
	"fmt"
	"log"
	"strconv"
	"sync"

	"brick-catalog/common"
	"brick-catalog/parsers"
)

// Store holds the catalog tables in memory. The loader is the only writer;
// readers may query concurrently while a load is in progress.
type Store struct {
	mu    sync.RWMutex
	rules Rules

	colors      *table[int, Color]
	themes      *table[int, Theme]
	categories  *table[int, PartCategory]
	parts       *table[string, Part]
	sets        *table[string, Set]
	minifigs    *table[string, Minifig]
	inventories *table[int, Inventory]

	inventorySets     *groups[InventorySet]
	inventoryMinifigs *groups[InventoryMinifig]
	inventoryParts    *groups[InventoryPart]

	index    *Index
	warnings int
}

// NewStore creates an empty store applying the given rules on insertion
func NewStore(rules Rules) *Store {
	return &Store{
		rules:             rules,
		colors:            newTable[int, Color](),
		themes:            newTable[int, Theme](),
		categories:        newTable[int, PartCategory](),
		parts:             newTable[string, Part](),
		sets:              newTable[string, Set](),
		minifigs:          newTable[string, Minifig](),
		inventories:       newTable[int, Inventory](),
		inventorySets:     newGroups[InventorySet](),
		inventoryMinifigs: newGroups[InventoryMinifig](),
		inventoryParts:    newGroups[InventoryPart](),
	}
}

// Rules returns the validation rules in effect
func (s *Store) Rules() Rules { return s.rules }

// ResetGroup clears a grouped kind before it is loaded again.
// Keyed kinds are never cleared: reloading them overwrites by key.
func (s *Store) ResetGroup(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case KindInventorySets:
		s.inventorySets.reset()
	case KindInventoryMinifigs:
		s.inventoryMinifigs.reset()
	case KindInventoryParts:
		s.inventoryParts.reset()
	}
}

// AddRecord normalizes one parsed row of the given kind and stores it.
// Rows with warnings are kept with the offending fields nulled; rows that
// are not valid are dropped. The result is nil when nothing was reported.
func (s *Store) AddRecord(kind Kind, rec parsers.Record, rowNum int) (*common.RecordValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result *common.RecordValidationResult
	switch kind {
	case KindColors:
		var c Color
		if c, result = s.rules.NormalizeColor(rec, rowNum); result.Valid {
			s.colors.put(c.ID, c)
		}
	case KindThemes:
		var t Theme
		if t, result = s.rules.NormalizeTheme(rec, rowNum); result.Valid {
			s.themes.put(t.ID, t)
		}
	case KindCategories:
		var c PartCategory
		if c, result = s.rules.NormalizeCategory(rec, rowNum); result.Valid {
			s.categories.put(c.ID, c)
		}
	case KindParts:
		var p Part
		if p, result = s.rules.NormalizePart(rec, rowNum); result.Valid {
			s.parts.put(p.PartNum, p)
		}
	case KindSets:
		var st Set
		if st, result = s.rules.NormalizeSet(rec, rowNum); result.Valid {
			s.sets.put(st.SetNum, st)
		}
	case KindMinifigs:
		var m Minifig
		if m, result = s.rules.NormalizeMinifig(rec, rowNum); result.Valid {
			s.minifigs.put(m.FigNum, m)
		}
	case KindInventories:
		var inv Inventory
		if inv, result = s.rules.NormalizeInventory(rec, rowNum); result.Valid {
			s.inventories.put(inv.ID, inv)
		}
	case KindInventorySets:
		var is InventorySet
		if is, result = s.rules.NormalizeInventorySet(rec, rowNum); result.Valid {
			if is.SetNum = s.ownerLocked(result, is.SetNum, is.InventoryID); result.Valid {
				s.inventorySets.add(is.SetNum, is)
			}
		}
	case KindInventoryMinifigs:
		var im InventoryMinifig
		if im, result = s.rules.NormalizeInventoryMinifig(rec, rowNum); result.Valid {
			if im.SetNum = s.ownerLocked(result, im.SetNum, im.InventoryID); result.Valid {
				s.inventoryMinifigs.add(im.SetNum, im)
			}
		}
	case KindInventoryParts:
		var ip InventoryPart
		if ip, result = s.rules.NormalizeInventoryPart(rec, rowNum); result.Valid {
			if ip.SetNum = s.ownerLocked(result, ip.SetNum, ip.InventoryID); result.Valid {
				s.inventoryParts.add(ip.SetNum, ip)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if !result.HasWarnings() {
		return nil, nil
	}
	s.warnings += len(result.Warnings)
	log.Printf("Catalog: %s row %d (%s): %s", kind, result.RowNumber, result.RecordID, result.ToJSON())
	return result, nil
}

// ownerLocked returns the set number an inventory row belongs to,
// falling back to the inventories table when the row does not name it.
func (s *Store) ownerLocked(result *common.RecordValidationResult, setNum string, inventoryID int) string {
	if setNum != "" {
		return setNum
	}
	if inv, ok := s.inventories.get(inventoryID); ok && inv.SetNum != "" {
		return inv.SetNum
	}
	result.Reject("set_num", fmt.Sprintf("no set for inventory %d", inventoryID))
	return ""
}

func (s *Store) Color(id int) (Color, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.colors.get(id)
}

func (s *Store) Theme(id int) (Theme, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.themes.get(id)
}

func (s *Store) Category(id int) (PartCategory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categories.get(id)
}

func (s *Store) Part(partNum string) (Part, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parts.get(partNum)
}

func (s *Store) Set(setNum string) (Set, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets.get(setNum)
}

func (s *Store) Minifig(figNum string) (Minifig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.minifigs.get(figNum)
}

func (s *Store) Inventory(id int) (Inventory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inventories.get(id)
}

func (s *Store) Colors() []Color {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.colors.all()
}

func (s *Store) Parts() []Part {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parts.all()
}

func (s *Store) Sets() []Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets.all()
}

func (s *Store) Minifigs() []Minifig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.minifigs.all()
}

// Item looks up one entity by its natural id. For grouped kinds the id is
// a set number and the whole group is returned.
func (s *Store) Item(kind Kind, id string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch kind {
	case KindParts:
		return found(s.parts.get(id))
	case KindSets:
		return found(s.sets.get(id))
	case KindMinifigs:
		return found(s.minifigs.get(id))
	case KindInventorySets:
		return nonEmpty(s.inventorySets.get(id))
	case KindInventoryMinifigs:
		return nonEmpty(s.inventoryMinifigs.get(id))
	case KindInventoryParts:
		return nonEmpty(s.inventoryParts.get(id))
	}

	n, err := strconv.Atoi(id)
	switch kind {
	case KindColors, KindThemes, KindCategories, KindInventories:
		if err != nil {
			return nil, false, nil
		}
	default:
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	switch kind {
	case KindColors:
		return found(s.colors.get(n))
	case KindThemes:
		return found(s.themes.get(n))
	case KindCategories:
		return found(s.categories.get(n))
	default:
		return found(s.inventories.get(n))
	}
}

func found[V any](v V, ok bool) (any, bool, error) {
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func nonEmpty[V any](rows []V) (any, bool, error) {
	if len(rows) == 0 {
		return nil, false, nil
	}
	out := make([]V, len(rows))
	copy(out, rows)
	return out, true, nil
}

// Items returns every entity of a kind in load order
func (s *Store) Items(kind Kind) ([]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch kind {
	case KindColors:
		return toAny(s.colors.all()), nil
	case KindThemes:
		return toAny(s.themes.all()), nil
	case KindCategories:
		return toAny(s.categories.all()), nil
	case KindParts:
		return toAny(s.parts.all()), nil
	case KindSets:
		return toAny(s.sets.all()), nil
	case KindMinifigs:
		return toAny(s.minifigs.all()), nil
	case KindInventories:
		return toAny(s.inventories.all()), nil
	case KindInventorySets:
		return toAny(s.inventorySets.all()), nil
	case KindInventoryMinifigs:
		return toAny(s.inventoryMinifigs.all()), nil
	case KindInventoryParts:
		return toAny(s.inventoryParts.all()), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func toAny[V any](rows []V) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

// ItemsByCategory returns parts in a part category or sets in a theme
func (s *Store) ItemsByCategory(kind Kind, categoryID int) ([]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []any
	switch kind {
	case KindParts:
		for _, p := range s.parts.all() {
			if p.CategoryID != nil && *p.CategoryID == categoryID {
				out = append(out, p)
			}
		}
	case KindSets:
		for _, st := range s.sets.all() {
			if st.ThemeID != nil && *st.ThemeID == categoryID {
				out = append(out, st)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q has no categories", ErrUnknownKind, kind)
	}
	return out, nil
}

// SetInventory returns the parts, minifigs and sub-sets listed under a set
func (s *Store) SetInventory(setNum string) SetInventory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv := SetInventory{
		Parts:    append([]InventoryPart{}, s.inventoryParts.get(setNum)...),
		Minifigs: append([]InventoryMinifig{}, s.inventoryMinifigs.get(setNum)...),
		Sets:     append([]InventorySet{}, s.inventorySets.get(setNum)...),
	}
	return inv
}

// RelatedSets returns the sets whose inventory includes the minifig
func (s *Store) RelatedSets(figNum string) []Set {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Set
	for _, setNum := range s.inventoryMinifigs.keys {
		for _, im := range s.inventoryMinifigs.get(setNum) {
			if im.FigNum != figNum {
				continue
			}
			if st, ok := s.sets.get(setNum); ok {
				out = append(out, st)
			}
			break
		}
	}
	return out
}

// Statistics counts what has been loaded so far
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Statistics{
		Colors:            s.colors.len(),
		Themes:            s.themes.len(),
		Categories:        s.categories.len(),
		Parts:             s.parts.len(),
		Sets:              s.sets.len(),
		Minifigs:          s.minifigs.len(),
		Inventories:       s.inventories.len(),
		InventorySets:     s.inventorySets.size,
		InventoryMinifigs: s.inventoryMinifigs.size,
		InventoryParts:    s.inventoryParts.size,
		Warnings:          s.warnings,
	}
}
