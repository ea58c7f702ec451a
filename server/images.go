package server

import (
	"context"
	"image"
	"net/http"

	"brick-catalog/api"
	"brick-catalog/catalog"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
)

// ImageFetcher loads catalog images, as the request engine does
type ImageFetcher interface {
	PreloadImages(ctx context.Context, urls []string, maxConcurrent int) []api.ImageResult
}

func imageURL(item any) (string, bool) {
	switch v := item.(type) {
	case catalog.Part:
		return v.ImageURL, true
	case catalog.Set:
		return v.ImageURL, true
	case catalog.Minifig:
		return v.ImageURL, true
	}
	return "", false
}

// GetThumbnail godoc
// @Summary Thumbnail of a part, set or minifig image
// @Tags catalog
// @Produce image/png
// @Param kind path string true "parts, sets or minifigs"
// @Param id path string true "Natural id"
// @Success 200 {file} file "PNG thumbnail"
// @Failure 404 {object} map[string]string "Not found"
// @Failure 502 {object} map[string]string "Image could not be fetched"
// @Router /images/{kind}/{id} [get]
func (h *Handler) GetThumbnail(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	item, found, err := h.store().Item(kind, c.Param("id"))
	if err != nil || !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}
	url, ok := imageURL(item)
	if !ok || url == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item has no image"})
		return
	}

	res := h.Images.PreloadImages(c.Request.Context(), []string{url}, 1)[0]
	if res.Err != nil {
		c.Error(res.Err)
		c.JSON(http.StatusBadGateway, gin.H{"error": res.Err.Error()})
		return
	}
	var img image.Image = res.Thumbnail
	if img == nil {
		img = res.Image
	}

	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	if err := imaging.Encode(c.Writer, img, imaging.PNG); err != nil {
		c.Error(err)
	}
}
