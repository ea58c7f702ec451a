package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"brick-catalog/api"
	"brick-catalog/catalog"
	"brick-catalog/loader"
	"brick-catalog/storage"

	"github.com/gin-gonic/gin"
)

const (
	// DefaultPageLimit is the page size for catalog listings
	DefaultPageLimit = 100
	// MaxPageLimit caps a single listing page
	MaxPageLimit = 1000
)

// RemoteAPI is the request engine as seen by the routes
type RemoteAPI interface {
	MakeRequest(ctx context.Context, endpoint string, opts ...api.Option) (json.RawMessage, error)
	Status() api.Status
	Reset()
}

// RunHistory lists recent catalog loads
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]storage.LoadRun, error)
}

// ResponseCache is the persistent cache behind the request engine
type ResponseCache interface {
	Usage(ctx context.Context) (int64, error)
	Clean(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}

// Handler serves the catalog and the remote API passthrough
type Handler struct {
	Loader *loader.Loader
	Remote RemoteAPI
	Images ImageFetcher
	Runs   RunHistory
	Cache  ResponseCache

	// Reload starts a full catalog load in the background. When nil the
	// loader is run directly.
	Reload func()
}

// ListResponse is one page of a catalog listing
type ListResponse struct {
	Kind   string `json:"kind"`
	Total  int    `json:"total"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
	Items  []any  `json:"items"`
}

// StatusResponse describes loader and request engine state
type StatusResponse struct {
	Loader     loader.State       `json:"loader"`
	Statistics catalog.Statistics `json:"statistics"`
	Remote     *api.Status        `json:"remote,omitempty"`
}

// RegisterRoutes mounts the handler under rg
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/catalog/status", h.GetStatus)
	rg.POST("/catalog/reload", h.ReloadCatalog)
	rg.POST("/validate/:kind", h.ValidateFile)
	rg.GET("/runs", h.ListRuns)

	ready := rg.Group("", h.requireIndexed)
	ready.GET("/catalog/:kind", h.ListItems)
	ready.GET("/catalog/:kind/:id", h.GetItem)
	ready.GET("/search/:kind", h.Search)
	ready.GET("/sets/:setNum/inventory", h.GetSetInventory)
	ready.GET("/minifigs/:figNum/sets", h.GetRelatedSets)
	ready.GET("/categories/:kind/:id", h.ListByCategory)
	ready.GET("/export/:kind", h.StreamExport)
	if h.Images != nil {
		ready.GET("/images/:kind/:id", h.GetThumbnail)
	}

	if h.Remote != nil {
		rg.GET("/remote/*endpoint", h.Proxy)
		rg.POST("/remote/reset", h.ResetRemote)
	}
	if h.Cache != nil {
		rg.GET("/cache", h.GetCacheUsage)
		rg.POST("/cache/clean", h.CleanCache)
		rg.DELETE("/cache", h.ClearCache)
	}
}

func (h *Handler) store() *catalog.Store {
	return h.Loader.Store()
}

// requireIndexed answers 503 until the catalog has finished loading
func (h *Handler) requireIndexed(c *gin.Context) {
	state := h.Loader.State()
	if state.Phase != loader.PhaseIndexed {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": "Catalog is not loaded",
			"state": state,
		})
		return
	}
	c.Next()
}

func parseKind(c *gin.Context) (catalog.Kind, bool) {
	kind, err := catalog.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return "", false
	}
	return kind, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

// GetStatus godoc
// @Summary Catalog load state
// @Description Returns loader phase, per-kind counts and request engine diagnostics
// @Tags catalog
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /catalog/status [get]
func (h *Handler) GetStatus(c *gin.Context) {
	resp := StatusResponse{
		Loader:     h.Loader.State(),
		Statistics: h.store().Statistics(),
	}
	if h.Remote != nil {
		status := h.Remote.Status()
		resp.Remote = &status
	}
	c.JSON(http.StatusOK, resp)
}

// ReloadCatalog godoc
// @Summary Reload the catalog from its data source
// @Description Starts a full load in the background. Catalog routes answer 503 until it finishes.
// @Tags catalog
// @Produce json
// @Success 202 {object} loader.State
// @Failure 409 {object} map[string]string "A load is already running"
// @Router /catalog/reload [post]
func (h *Handler) ReloadCatalog(c *gin.Context) {
	if h.Loader.State().Phase == loader.PhaseLoading {
		c.JSON(http.StatusConflict, gin.H{"error": "Catalog load already in progress"})
		return
	}
	if h.Reload != nil {
		h.Reload()
	} else {
		go h.Loader.LoadAll(context.Background())
	}
	c.JSON(http.StatusAccepted, h.Loader.State())
}

// ListItems godoc
// @Summary List catalog items
// @Tags catalog
// @Produce json
// @Param kind path string true "Entity kind (colors, themes, categories, parts, sets, minifigs, inventories, inventory-sets, inventory-minifigs, inventory-parts)"
// @Param offset query int false "Items to skip"
// @Param limit query int false "Page size (max 1000)"
// @Success 200 {object} ListResponse
// @Failure 404 {object} map[string]string "Unknown kind"
// @Router /catalog/{kind} [get]
func (h *Handler) ListItems(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", DefaultPageLimit)
	if !ok {
		return
	}
	if limit == 0 || limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	items, err := h.store().Items(kind)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	total := len(items)
	start := min(offset, total)
	end := min(start+limit, total)
	page := items[start:end]

	c.Set("item_count", len(page))
	c.JSON(http.StatusOK, ListResponse{
		Kind:   string(kind),
		Total:  total,
		Offset: offset,
		Limit:  limit,
		Items:  page,
	})
}

// GetItem godoc
// @Summary Get one catalog item
// @Tags catalog
// @Produce json
// @Param kind path string true "Entity kind"
// @Param id path string true "Natural id (part number, set number, color id, ...)"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string "Not found"
// @Router /catalog/{kind}/{id} [get]
func (h *Handler) GetItem(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	item, found, err := h.store().Item(kind, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}
	c.Set("item_count", 1)
	c.JSON(http.StatusOK, item)
}

// Search godoc
// @Summary Substring search over parts, sets or minifigs
// @Tags catalog
// @Produce json
// @Param kind path string true "parts, sets or minifigs"
// @Param q query string true "Case-insensitive substring"
// @Param limit query int false "Maximum results (default 50)"
// @Success 200 {object} map[string]interface{}
// @Router /search/{kind} [get]
func (h *Handler) Search(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	if !kind.Searchable() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind is not searchable"})
		return
	}
	limit, ok := queryInt(c, "limit", catalog.DefaultSearchLimit)
	if !ok {
		return
	}

	results, err := h.store().Search(kind, c.Query("q"), limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if results == nil {
		results = []any{}
	}
	c.Set("item_count", len(results))
	c.JSON(http.StatusOK, gin.H{"query": c.Query("q"), "results": results})
}

func (h *Handler) GetSetInventory(c *gin.Context) {
	setNum := c.Param("setNum")
	if _, ok := h.store().Set(setNum); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Set not found"})
		return
	}
	inv := h.store().SetInventory(setNum)
	c.Set("item_count", len(inv.Parts)+len(inv.Minifigs)+len(inv.Sets))
	c.JSON(http.StatusOK, inv)
}

func (h *Handler) GetRelatedSets(c *gin.Context) {
	sets := h.store().RelatedSets(c.Param("figNum"))
	if sets == nil {
		sets = []catalog.Set{}
	}
	c.Set("item_count", len(sets))
	c.JSON(http.StatusOK, gin.H{"sets": sets})
}

// ListByCategory returns parts in a part category or sets in a theme
func (h *Handler) ListByCategory(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}
	items, err := h.store().ItemsByCategory(kind, id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if items == nil {
		items = []any{}
	}
	c.Set("item_count", len(items))
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) ListRuns(c *gin.Context) {
	if h.Runs == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []storage.LoadRun{}})
		return
	}
	limit, ok := queryInt(c, "limit", 10)
	if !ok {
		return
	}
	runs, err := h.Runs.Recent(c.Request.Context(), limit)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list load runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// Proxy godoc
// @Summary Fetch from the catalog REST API through the request queue
// @Tags remote
// @Produce json
// @Param endpoint path string true "API path, e.g. /parts/3001/"
// @Success 200 {object} map[string]interface{}
// @Failure 502 {object} map[string]string "Upstream failure"
// @Failure 504 {object} map[string]string "Timed out waiting in the queue"
// @Router /remote/{endpoint} [get]
func (h *Handler) Proxy(c *gin.Context) {
	endpoint := c.Param("endpoint")
	if raw := c.Request.URL.RawQuery; raw != "" {
		endpoint += "?" + raw
	}

	body, err := h.Remote.MakeRequest(c.Request.Context(), endpoint)
	if err != nil {
		c.Error(err)
		var httpErr *api.HTTPError
		switch {
		case errors.As(err, &httpErr) && httpErr.Status < 500:
			c.JSON(httpErr.Status, gin.H{"error": err.Error()})
		case errors.Is(err, api.ErrTimeout):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (h *Handler) ResetRemote(c *gin.Context) {
	h.Remote.Reset()
	c.JSON(http.StatusOK, h.Remote.Status())
}

func (h *Handler) GetCacheUsage(c *gin.Context) {
	bytes, err := h.Cache.Usage(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read cache usage"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bytes": bytes})
}

// CleanCache drops expired entries and trims the cache below its size cap
func (h *Handler) CleanCache(c *gin.Context) {
	removed, err := h.Cache.Clean(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clean cache"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *Handler) ClearCache(c *gin.Context) {
	if err := h.Cache.Clear(c.Request.Context()); err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear cache"})
		return
	}
	c.Status(http.StatusNoContent)
}
