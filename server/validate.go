package server

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"brick-catalog/common"
	"brick-catalog/parsers"

	"github.com/gin-gonic/gin"
)

// MaxReportedResults caps the rejected or warned rows echoed back by a validation
const MaxReportedResults = 100

// ValidateResponse summarizes how a CSV file would load. Nothing is stored.
type ValidateResponse struct {
	Kind           string                          `json:"kind"`
	ProcessedCount int                             `json:"processed_count"`
	ValidCount     int                             `json:"valid_count"`
	RejectedCount  int                             `json:"rejected_count"`
	WarningCount   int                             `json:"warning_count"`
	DroppedRows    int                             `json:"dropped_rows"`
	Results        []common.RecordValidationResult `json:"results,omitempty"`
}

// ValidateFile godoc
// @Summary Dry-run a CSV file against the catalog rules
// @Description Parses and normalizes every row the way the loader would, without touching the catalog
// @Tags catalog
// @Accept multipart/form-data
// @Accept text/csv
// @Produce json
// @Param kind path string true "Entity kind"
// @Param file formData file false "CSV file to check"
// @Success 200 {object} ValidateResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Router /validate/{kind} [post]
func (h *Handler) ValidateFile(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}

	var body io.Reader
	if strings.HasPrefix(c.GetHeader("Content-Type"), "multipart/form-data") {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File is required"})
			return
		}
		defer file.Close()
		if filepath.Ext(header.Filename) != ".csv" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File must be .csv"})
			return
		}
		body = file
	} else {
		body = c.Request.Body
	}

	resp := ValidateResponse{Kind: string(kind)}
	recordCh, errCh := parsers.ParseCSV(body)

	var (
		readErr error
		done    = make(chan struct{})
	)
	go func() {
		defer close(done)
		for err := range errCh {
			var rowErr *parsers.RowError
			if errors.As(err, &rowErr) {
				resp.DroppedRows++
				continue
			}
			readErr = err
		}
	}()

	rules := h.store().Rules()
	var checkErr error
	for rec := range recordCh {
		resp.ProcessedCount++
		// Row 1 is the header
		result, err := rules.Check(kind, rec, resp.ProcessedCount+1)
		if err != nil {
			checkErr = err
			continue
		}
		switch {
		case !result.Valid:
			resp.RejectedCount++
		case result.HasWarnings():
			resp.ValidCount++
			resp.WarningCount++
		default:
			resp.ValidCount++
			continue
		}
		if len(resp.Results) < MaxReportedResults {
			resp.Results = append(resp.Results, *result)
		}
	}
	<-done

	if readErr == nil {
		readErr = checkErr
	}
	if readErr != nil {
		c.Error(readErr)
		c.JSON(http.StatusBadRequest, gin.H{"error": readErr.Error()})
		return
	}
	c.Set("item_count", resp.ProcessedCount)
	c.JSON(http.StatusOK, resp)
}
