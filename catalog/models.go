package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned for entity kinds the store does not hold
var ErrUnknownKind = errors.New("unknown entity kind")

// Kind names an entity table
type Kind string

const (
	KindColors            Kind = "colors"
	KindThemes            Kind = "themes"
	KindCategories        Kind = "categories"
	KindParts             Kind = "parts"
	KindSets              Kind = "sets"
	KindMinifigs          Kind = "minifigs"
	KindInventories       Kind = "inventories"
	KindInventorySets     Kind = "inventory-sets"
	KindInventoryMinifigs Kind = "inventory-minifigs"
	KindInventoryParts    Kind = "inventory-parts"
)

// Kinds lists every kind in load order
var Kinds = []Kind{
	KindColors, KindThemes, KindCategories, KindParts, KindSets,
	KindMinifigs, KindInventories, KindInventorySets, KindInventoryMinifigs, KindInventoryParts,
}

// ParseKind accepts a kind name, tolerating underscores and the part_categories alias
func ParseKind(s string) (Kind, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	if name == "part-categories" {
		return KindCategories, nil
	}
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Grouped reports whether the kind is a multi-row association keyed by set number
func (k Kind) Grouped() bool {
	return k == KindInventorySets || k == KindInventoryMinifigs || k == KindInventoryParts
}

// Searchable reports whether the kind has a search index
func (k Kind) Searchable() bool {
	return k == KindParts || k == KindSets || k == KindMinifigs
}

type Color struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	RGB           string `json:"rgb"`
	IsTransparent bool   `json:"isTransparent"`
	NumParts      int    `json:"numParts"`
	NumSets       int    `json:"numSets"`
	YearFrom      int    `json:"yearFrom"`
	YearTo        int    `json:"yearTo"`
}

type Theme struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	ParentID *int   `json:"parentId"`
}

type PartCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Part struct {
	PartNum    string `json:"partNum"`
	Name       string `json:"name"`
	CategoryID *int   `json:"categoryId"`
	Material   string `json:"material,omitempty"`
	ImageURL   string `json:"imageUrl"`
}

type Set struct {
	SetNum   string `json:"setNum"`
	Name     string `json:"name"`
	Year     *int   `json:"year"`
	ThemeID  *int   `json:"themeId"`
	NumParts int    `json:"numParts"`
	ImageURL string `json:"imageUrl"`
}

type Minifig struct {
	FigNum   string `json:"figNum"`
	Name     string `json:"name"`
	NumParts int    `json:"numParts"`
	ImageURL string `json:"imageUrl"`
}

// Inventory links one bill-of-materials revision to a set
type Inventory struct {
	ID      int    `json:"id"`
	Version int    `json:"version"`
	SetNum  string `json:"setNum"`
}

type InventoryPart struct {
	InventoryID int    `json:"inventoryId"`
	SetNum      string `json:"setNum"`
	PartNum     string `json:"partNum"`
	ColorID     int    `json:"colorId"`
	Quantity    int    `json:"quantity"`
	IsSpare     bool   `json:"isSpare"`
}

type InventorySet struct {
	InventoryID int    `json:"inventoryId"`
	SetNum      string `json:"setNum"`
	Quantity    int    `json:"quantity"`
}

type InventoryMinifig struct {
	InventoryID int    `json:"inventoryId"`
	SetNum      string `json:"setNum"`
	FigNum      string `json:"figNum"`
	Quantity    int    `json:"quantity"`
}

// SetInventory is everything listed under one set number
type SetInventory struct {
	Parts    []InventoryPart    `json:"parts"`
	Minifigs []InventoryMinifig `json:"minifigs"`
	Sets     []InventorySet     `json:"sets"`
}

// Statistics counts loaded rows per kind
type Statistics struct {
	Colors            int `json:"colors"`
	Themes            int `json:"themes"`
	Categories        int `json:"categories"`
	Parts             int `json:"parts"`
	Sets              int `json:"sets"`
	Minifigs          int `json:"minifigs"`
	Inventories       int `json:"inventories"`
	InventorySets     int `json:"inventorySets"`
	InventoryMinifigs int `json:"inventoryMinifigs"`
	InventoryParts    int `json:"inventoryParts"`
	Warnings          int `json:"warnings"`
}
