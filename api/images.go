package api

import (
	"context"
	"fmt"
	"image"
	"net/http"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

// DefaultPreloadConcurrency bounds parallel image fetches
const DefaultPreloadConcurrency = 5

// ImageResult is the outcome for one preloaded URL
type ImageResult struct {
	URL       string
	Image     image.Image
	Thumbnail image.Image
	Err       error
}

// PreloadImages fetches and decodes images, at most maxConcurrent at a
// time. Results are in input order; a failed URL carries its error and
// never stops the others.
func (e *Engine) PreloadImages(ctx context.Context, urls []string, maxConcurrent int) []ImageResult {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultPreloadConcurrency
	}
	results := make([]ImageResult, len(urls))

	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, u := range urls {
		g.Go(func() error {
			img, err := e.fetchImage(ctx, u)
			results[i] = ImageResult{URL: u, Image: img, Err: err}
			if err == nil && e.cfg.ThumbnailSize > 0 {
				results[i].Thumbnail = imaging.Thumbnail(img, e.cfg.ThumbnailSize, e.cfg.ThumbnailSize, imaging.Lanczos)
			}
			return nil
		})
	}
	g.Wait()
	return results
}

func (e *Engine) fetchImage(ctx context.Context, u string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode}
	}
	img, err := imaging.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", u, err)
	}
	return img, nil
}
