package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a data file does not exist
var ErrNotFound = errors.New("data file not found")

// Source opens data files by slash-separated name
type Source interface {
	// Open returns the file body and its size, or -1 when the size is unknown
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
	// Exists checks for a file without reading it
	Exists(ctx context.Context, name string) (bool, error)
}

// DirSource reads data files from a local directory
type DirSource struct {
	Root string
}

func (d DirSource) path(name string) string {
	return filepath.Join(d.Root, filepath.FromSlash(name))
}

func (d DirSource) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(d.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, 0, err
	}
	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	return f, size, nil
}

func (d DirSource) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(d.path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// HTTPSource fetches data files from a static file host
type HTTPSource struct {
	baseURL *url.URL
	http    *http.Client
}

// NewHTTPSource creates a source rooted at baseURL. client may be nil.
func NewHTTPSource(baseURL string, client *http.Client) (*HTTPSource, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse data url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("data url must be http or https, got %q", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{baseURL: u, http: client}, nil
}

func (h *HTTPSource) url(name string) string {
	u := *h.baseURL
	u.Path = path.Join(u.Path, name)
	return u.String()
}

func (h *HTTPSource) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url(name), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("fetch %s returned status %d", name, resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

func (h *HTTPSource) Exists(ctx context.Context, name string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.url(name), nil)
	if err != nil {
		return false, err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// ByteProgress reports how much of one file has been read
type ByteProgress struct {
	File       string  `json:"file"`
	Loaded     int64   `json:"loaded"`
	Total      int64   `json:"total"`
	Percent    float64 `json:"percent"`
	HasPercent bool    `json:"hasPercent"`
}

type progressReader struct {
	r      io.Reader
	file   string
	total  int64
	loaded int64
	report func(ByteProgress)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		ev := ByteProgress{File: p.file, Loaded: p.loaded, Total: p.total}
		if p.total > 0 {
			ev.HasPercent = true
			ev.Percent = float64(p.loaded) * 100 / float64(p.total)
		}
		p.report(ev)
	}
	return n, err
}
