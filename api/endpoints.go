package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// DefaultPageSize is used by the search helpers when pageSize is not positive
const DefaultPageSize = 20

// Page is one page of a paginated API listing
type Page struct {
	Count    int               `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []json.RawMessage `json:"results"`
}

func (e *Engine) getPage(ctx context.Context, endpoint string, opts ...Option) (*Page, error) {
	data, err := e.MakeRequest(ctx, endpoint, opts...)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return &page, nil
}

func searchEndpoint(kind, query string, page, pageSize int) string {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	q := url.Values{}
	q.Set("search", query)
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	return "/" + kind + "/?" + q.Encode()
}

func (e *Engine) GetPart(ctx context.Context, partNum string, opts ...Option) (json.RawMessage, error) {
	return e.MakeRequest(ctx, "/parts/"+url.PathEscape(partNum)+"/", opts...)
}

func (e *Engine) GetSet(ctx context.Context, setNum string, opts ...Option) (json.RawMessage, error) {
	return e.MakeRequest(ctx, "/sets/"+url.PathEscape(setNum)+"/", opts...)
}

func (e *Engine) GetMinifig(ctx context.Context, figNum string, opts ...Option) (json.RawMessage, error) {
	return e.MakeRequest(ctx, "/minifigs/"+url.PathEscape(figNum)+"/", opts...)
}

// GetPartColors lists the colors a part has appeared in
func (e *Engine) GetPartColors(ctx context.Context, partNum string, opts ...Option) (*Page, error) {
	return e.getPage(ctx, "/parts/"+url.PathEscape(partNum)+"/colors/", opts...)
}

// GetSetParts lists the inventory of a set
func (e *Engine) GetSetParts(ctx context.Context, setNum string, opts ...Option) (*Page, error) {
	return e.getPage(ctx, "/sets/"+url.PathEscape(setNum)+"/parts/", opts...)
}

// GetMinifigParts lists the inventory of a minifig
func (e *Engine) GetMinifigParts(ctx context.Context, figNum string, opts ...Option) (*Page, error) {
	return e.getPage(ctx, "/minifigs/"+url.PathEscape(figNum)+"/parts/", opts...)
}

func (e *Engine) SearchParts(ctx context.Context, query string, page, pageSize int, opts ...Option) (*Page, error) {
	return e.getPage(ctx, searchEndpoint("parts", query, page, pageSize), opts...)
}

func (e *Engine) SearchSets(ctx context.Context, query string, page, pageSize int, opts ...Option) (*Page, error) {
	return e.getPage(ctx, searchEndpoint("sets", query, page, pageSize), opts...)
}

func (e *Engine) SearchMinifigs(ctx context.Context, query string, page, pageSize int, opts ...Option) (*Page, error) {
	return e.getPage(ctx, searchEndpoint("minifigs", query, page, pageSize), opts...)
}

func (e *Engine) GetColors(ctx context.Context, opts ...Option) (*Page, error) {
	return e.getPage(ctx, "/colors/", opts...)
}

func (e *Engine) GetThemes(ctx context.Context, opts ...Option) (*Page, error) {
	return e.getPage(ctx, "/themes/", opts...)
}

func (e *Engine) GetPartCategories(ctx context.Context, opts ...Option) (*Page, error) {
	return e.getPage(ctx, "/part_categories/", opts...)
}
