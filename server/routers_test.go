package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"brick-catalog/api"
	"brick-catalog/catalog"
	"brick-catalog/loader"
	"brick-catalog/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dataFiles = map[string]string{
	"colors.csv":          "id,name,rgb,is_trans,num_parts,num_sets,y1,y2\n0,Black,05131D,False,1,1,1957,2024\n",
	"themes.csv":          "id,name,parent_id\n158,Star Wars,\n",
	"part_categories.csv": "id,name\n11,Bricks\n",
	"parts.csv":           "part_num,name,part_cat_id,part_material\n3001,Brick 2 x 4,11,Plastic\n3003,Brick 2 x 2,11,Plastic\n3020,Plate 2 x 4,14,Plastic\n",
	"sets.csv":            "set_num,name,year,theme_id,num_parts,img_url\n75192-1,\"Millennium Falcon, UCS\",2017,158,7541,\n",
	"minifigs.csv":        "fig_num,name,num_parts,img_url\nfig-000001,Han Solo,4,\n",
	"inventories.csv":     "id,version,set_num\n10,1,75192-1\n",
	"inventory_sets.csv":  "inventory_id,set_num,quantity\n",
	"inventory_minifigs.csv": "inventory_id,set_num,fig_num,quantity\n10,75192-1,fig-000001,1\n",
	"inventory_parts_split/inventory_parts_part_001.csv": "inventory_id,set_num,part_num,color_id,quantity,is_spare\n10,75192-1,3001,0,4,f\n",
}

type fakeRemote struct {
	endpoints []string
	body      json.RawMessage
	err       error
	resets    int
	imageURLs []string
	imageErr  error
}

func (f *fakeRemote) MakeRequest(_ context.Context, endpoint string, _ ...api.Option) (json.RawMessage, error) {
	f.endpoints = append(f.endpoints, endpoint)
	return f.body, f.err
}

func (f *fakeRemote) Status() api.Status { return api.Status{FailedProxies: []int{}, RateLimitDelayMs: 1000} }
func (f *fakeRemote) Reset()             { f.resets++ }

func (f *fakeRemote) PreloadImages(_ context.Context, urls []string, _ int) []api.ImageResult {
	f.imageURLs = append(f.imageURLs, urls...)
	out := make([]api.ImageResult, len(urls))
	for i, u := range urls {
		out[i] = api.ImageResult{URL: u, Err: f.imageErr}
		if f.imageErr == nil {
			out[i].Image = image.NewRGBA(image.Rect(0, 0, 8, 8))
			out[i].Thumbnail = image.NewRGBA(image.Rect(0, 0, 4, 4))
		}
	}
	return out
}

type fakeRuns struct{ runs []storage.LoadRun }

func (f *fakeRuns) Recent(_ context.Context, _ int) ([]storage.LoadRun, error) {
	return f.runs, nil
}

func writeData(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range dataFiles {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	}
	return dir
}

func setup(t *testing.T, load bool) (*gin.Engine, *fakeRemote) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := writeData(t)
	l := loader.New(catalog.NewStore(catalog.DefaultRules()), loader.DirSource{Root: dir}, loader.DefaultFiles(), 1)
	if load {
		require.True(t, l.LoadAll(context.Background()))
	}

	remote := &fakeRemote{body: json.RawMessage(`{"part_num":"3001"}`)}
	h := &Handler{Loader: l, Remote: remote, Images: remote, Runs: &fakeRuns{runs: []storage.LoadRun{{ID: "run-1", Status: storage.RunStatusIndexed}}}}
	return NewRouter(h, Options{DataDir: dir}), remote
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := setup(t, false)

	w := get(r, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"not_started"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCatalogUnavailableBeforeLoad(t *testing.T) {
	r, _ := setup(t, false)

	w := get(r, "/api/v1/catalog/parts")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = get(r, "/api/v1/catalog/status")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListItems(t *testing.T) {
	r, _ := setup(t, true)

	w := get(r, "/api/v1/catalog/parts?offset=1&limit=1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Total int            `json:"total"`
		Items []catalog.Part `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "3003", resp.Items[0].PartNum)

	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/catalog/bricks").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/catalog/parts?limit=-1").Code)
}

func TestGetItem(t *testing.T) {
	r, _ := setup(t, true)

	w := get(r, "/api/v1/catalog/sets/75192-1")
	require.Equal(t, http.StatusOK, w.Code)
	var set catalog.Set
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &set))
	assert.Equal(t, "Millennium Falcon, UCS", set.Name)
	assert.Equal(t, "https://cdn.rebrickable.com/media/sets/75192-1.jpg", set.ImageURL)

	w = get(r, "/api/v1/catalog/colors/0")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Black"`)

	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/catalog/sets/nope").Code)
}

func TestSearch(t *testing.T) {
	r, _ := setup(t, true)

	w := get(r, "/api/v1/search/parts?q=BRICK&limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Results []catalog.Part `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "3001", resp.Results[0].PartNum)

	w = get(r, "/api/v1/search/parts?q=")
	assert.JSONEq(t, `{"query":"","results":[]}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/search/colors?q=black").Code)
}

func TestInventoryAndRelatedSets(t *testing.T) {
	r, _ := setup(t, true)

	w := get(r, "/api/v1/sets/75192-1/inventory")
	require.Equal(t, http.StatusOK, w.Code)
	var inv catalog.SetInventory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inv))
	assert.Len(t, inv.Parts, 1)
	assert.Len(t, inv.Minifigs, 1)

	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/sets/0000-1/inventory").Code)

	w = get(r, "/api/v1/minifigs/fig-000001/sets")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "75192-1")

	w = get(r, "/api/v1/categories/parts/11")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "3003")
}

func TestStreamExport(t *testing.T) {
	r, _ := setup(t, true)

	w := get(r, "/api/v1/export/sets?format=csv")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "imageUrl,name,numParts,setNum,themeId,year", lines[0])
	assert.Equal(t, `https://cdn.rebrickable.com/media/sets/75192-1.jpg,"Millennium Falcon, UCS",7541,75192-1,158,2017`, lines[1])

	w = get(r, "/api/v1/export/parts?format=ndjson")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, strings.Split(strings.TrimSpace(w.Body.String()), "\n"), 3)

	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/export/parts?format=xml").Code)
}

func TestRemoteProxy(t *testing.T) {
	r, remote := setup(t, false)

	w := get(r, "/api/v1/remote/parts/?search=brick&page=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"part_num":"3001"}`, w.Body.String())
	assert.Equal(t, []string{"/parts/?search=brick&page=2"}, remote.endpoints)

	remote.err = &api.HTTPError{Status: 404}
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/remote/parts/nope/").Code)

	remote.err = fmt.Errorf("%w: %w", api.ErrRetriesExhausted, &api.HTTPError{Status: 503})
	assert.Equal(t, http.StatusBadGateway, get(r, "/api/v1/remote/sets/1-1/").Code)

	remote.err = api.ErrTimeout
	assert.Equal(t, http.StatusGatewayTimeout, get(r, "/api/v1/remote/sets/1-1/").Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/remote/reset", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, remote.resets)
}

func TestStaticDataAndRuns(t *testing.T) {
	r, _ := setup(t, false)

	w := get(r, "/data/colors.csv")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Black")

	w = get(r, "/api/v1/runs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "run-1")
}

func TestGetThumbnail(t *testing.T) {
	r, remote := setup(t, true)

	w := get(r, "/api/v1/images/sets/75192-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, []string{"https://cdn.rebrickable.com/media/sets/75192-1.jpg"}, remote.imageURLs)

	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/images/colors/0").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/images/parts/9999").Code)

	remote.imageErr = &api.HTTPError{Status: 404}
	assert.Equal(t, http.StatusBadGateway, get(r, "/api/v1/images/parts/3001").Code)
}

func post(r http.Handler, path, contentType, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestValidateFile_LeavesCatalogUntouched(t *testing.T) {
	r, _ := setup(t, true)

	body := "part_num,name,part_cat_id,part_material\n" +
		"3001,Brick 2 x 4 (updated),11,Plastic\n" +
		"3004,Brick 1 x 2,5000,Plastic\n" +
		",No Number,11,Plastic\n" +
		"bad,row\n"
	w := post(r, "/api/v1/validate/parts", "text/csv", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.ProcessedCount)
	assert.Equal(t, 2, resp.ValidCount)
	assert.Equal(t, 1, resp.RejectedCount)
	assert.Equal(t, 1, resp.WarningCount)
	assert.Equal(t, 1, resp.DroppedRows)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 3, resp.Results[0].RowNumber)
	assert.Equal(t, 4, resp.Results[1].RowNumber)

	w = get(r, "/api/v1/catalog/parts/3001")
	assert.NotContains(t, w.Body.String(), "(updated)")
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/catalog/parts/3004").Code)
	assert.Contains(t, get(r, "/api/v1/catalog/parts").Body.String(), `"total":3`)
	assert.NotContains(t, get(r, "/api/v1/search/parts?q=1%20x%202").Body.String(), "3004")
}

func TestValidateFile_InventoryRowsNotAppended(t *testing.T) {
	r, _ := setup(t, true)

	body := dataFiles["inventory_parts_split/inventory_parts_part_001.csv"]
	for range 2 {
		require.Equal(t, http.StatusOK, post(r, "/api/v1/validate/inventory-parts", "text/csv", body).Code)
	}

	var inv catalog.SetInventory
	require.NoError(t, json.Unmarshal(get(r, "/api/v1/sets/75192-1/inventory").Body.Bytes(), &inv))
	assert.Len(t, inv.Parts, 1)
}

func TestValidateFile_WorksBeforeLoad(t *testing.T) {
	r, _ := setup(t, false)

	w := post(r, "/api/v1/validate/sets", "", "set_num,name,year,theme_id,num_parts,img_url\n1-1,Old,1850,1,1,\n")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"warning_count":1`)

	assert.Equal(t, http.StatusNotFound, post(r, "/api/v1/validate/bricks", "", "a\n1\n").Code)
}

func TestReloadCatalog_RunsLoader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := writeData(t)
	l := loader.New(catalog.NewStore(catalog.DefaultRules()), loader.DirSource{Root: dir}, loader.DefaultFiles(), 1)
	r := NewRouter(&Handler{Loader: l}, Options{})

	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/api/v1/catalog/parts/3001").Code)

	require.Equal(t, http.StatusAccepted, post(r, "/api/v1/catalog/reload", "", "").Code)
	require.Eventually(t, func() bool {
		return l.State().Phase == loader.PhaseIndexed
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/catalog/parts/3001").Code)

	parts := "part_num,name,part_cat_id,part_material\n3001,Brick 2 x 4 Reloaded,11,Plastic\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parts.csv"), []byte(parts), 0644))

	require.Equal(t, http.StatusAccepted, post(r, "/api/v1/catalog/reload", "", "").Code)
	require.Eventually(t, func() bool {
		return l.State().Phase == loader.PhaseIndexed &&
			strings.Contains(get(r, "/api/v1/catalog/parts/3001").Body.String(), "Reloaded")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReloadCatalog_UsesHook(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := loader.New(catalog.NewStore(catalog.DefaultRules()), loader.DirSource{Root: t.TempDir()}, loader.DefaultFiles(), 1)
	calls := 0
	r := NewRouter(&Handler{Loader: l, Reload: func() { calls++ }}, Options{})

	w := post(r, "/api/v1/catalog/reload", "", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, calls)
	assert.Contains(t, w.Body.String(), `"not_started"`)
}

type fakeCache struct {
	bytes   int64
	cleaned int
	cleared bool
}

func (f *fakeCache) Usage(context.Context) (int64, error) { return f.bytes, nil }

func (f *fakeCache) Clean(context.Context) (int64, error) {
	f.cleaned++
	return 3, nil
}

func (f *fakeCache) Clear(context.Context) error {
	f.cleared = true
	f.bytes = 0
	return nil
}

func TestCacheRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := loader.New(catalog.NewStore(catalog.DefaultRules()), loader.DirSource{Root: t.TempDir()}, loader.DefaultFiles(), 1)
	cache := &fakeCache{bytes: 2048}
	r := NewRouter(&Handler{Loader: l, Cache: cache}, Options{})

	w := get(r, "/api/v1/cache")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"bytes":2048}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/cache/clean", nil))
	assert.JSONEq(t, `{"removed":3}`, w.Body.String())
	assert.Equal(t, 1, cache.cleaned)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, cache.cleared)

	// Remote routes are not mounted without an engine
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/remote/parts/").Code)
}
